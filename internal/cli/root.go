package cli

import (
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/slant14/p2p-gossiping-app/internal/metrics"
	"github.com/slant14/p2p-gossiping-app/internal/node"
)

var (
	flagPeriod      time.Duration
	flagPort        int
	flagConnect     string
	flagMetricsAddr string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "p2p-gossiping-app",
		Short: "Run a gossiping peer-to-peer node",
		RunE:  runNode,
	}

	root.Flags().DurationVar(&flagPeriod, "period", 5*time.Second, "messaging period")
	root.Flags().IntVar(&flagPort, "port", 8080, "TCP port to listen on")
	root.Flags().StringVar(&flagConnect, "connect", "", "peer address to connect to at startup")
	root.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled when empty)")

	root.AddCommand(newVersionCmd())

	return root
}

func runNode(cmd *cobra.Command, args []string) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(flagPort))

	n, err := node.New(node.Opts{
		ListenAddr:    addr,
		AdvertiseAddr: addr,
		Period:        flagPeriod,
		Bootstrap:     flagConnect,
	})
	if err != nil {
		return err
	}

	if err := n.Start(); err != nil {
		return err
	}

	if flagMetricsAddr != "" {
		srv := metrics.NewMetricsServer(flagMetricsAddr)
		srv.StartAsync()
		defer srv.Stop()
	}

	// Block until SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("signal: shutting down")
	n.Stop()

	return nil
}
