package main

import (
	"log"

	"github.com/slant14/p2p-gossiping-app/internal/cli"
)

func main() {
	root := cli.NewRootCmd()
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
