package node

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/slant14/p2p-gossiping-app/p2p"
)

// Direction says whether a message went to or came from a peer.
type Direction int

const (
	Sent Direction = iota
	Received
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}
	return "received"
}

// EventLogger receives one record per message sent or received. Calls
// must not block the node's loops.
type EventLogger interface {
	Record(dir Direction, peer string, msg p2p.Message, elapsed time.Duration)
}

// ConsoleLogger prints chat records as elapsed-time log lines:
//
//	00:00:07 - Received message [Random message 42] from "127.0.0.1:8080"
type ConsoleLogger struct {
	Out io.Writer
}

func NewConsoleLogger() *ConsoleLogger {
	return &ConsoleLogger{Out: os.Stdout}
}

func (l *ConsoleLogger) Record(dir Direction, peer string, msg p2p.Message, elapsed time.Duration) {
	chat, ok := msg.(p2p.Chat)
	if !ok {
		return
	}

	switch dir {
	case Sent:
		fmt.Fprintf(l.Out, "%s - Sending message [%s] to %q\n", formatElapsed(elapsed), chat.Text, peer)
	case Received:
		fmt.Fprintf(l.Out, "%s - Received message [%s] from %q\n", formatElapsed(elapsed), chat.Text, peer)
	}
}

// formatElapsed renders a duration since startup as HH:MM:SS.
func formatElapsed(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", s/3600%24, s/60%60, s%60)
}
