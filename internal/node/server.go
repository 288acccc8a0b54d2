package node

import (
	"fmt"
	"sync"
	"time"

	"github.com/slant14/p2p-gossiping-app/internal/metrics"
	"github.com/slant14/p2p-gossiping-app/p2p"
)

// Opts contains configuration options for a Node.
type Opts struct {
	ListenAddr    string        // Address to bind
	AdvertiseAddr string        // Address told to peers; defaults to the bound address
	Period        time.Duration // Broadcast interval, must be positive
	Bootstrap     string        // Optional peer address to dial at startup
	Generator     Generator     // Chat text source, defaults to RandomGenerator
	Logger        EventLogger   // Message event sink, defaults to ConsoleLogger
	Metrics       *metrics.Metrics
}

// Node ties the transport, the peer table and the broadcast scheduler
// together: it dials the bootstrap peer, consumes inbound chats, and
// pushes one freshly generated chat to every peer each period.
type Node struct {
	Opts

	table     *p2p.PeerTable
	transport *p2p.TCPTransport
	start     time.Time
	quitch    chan struct{}
	stopOnce  sync.Once
}

func New(opts Opts) (*Node, error) {
	if opts.Period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %s", opts.Period)
	}
	if opts.Generator == nil {
		opts.Generator = NewRandomGenerator()
	}
	if opts.Logger == nil {
		opts.Logger = NewConsoleLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default
	}

	n := &Node{
		Opts:   opts,
		table:  p2p.NewPeerTable(),
		quitch: make(chan struct{}),
	}
	n.transport = p2p.NewTCPTransport(p2p.TCPTransportOpts{
		ListenAddr:    opts.ListenAddr,
		AdvertiseAddr: opts.AdvertiseAddr,
		Table:         n.table,
		OnPeer:        n.onPeer,
		OnPeerDrop:    n.onPeerDrop,
		OnMerge:       n.onMerge,
		OnDialFailure: n.onDialFailure,
	})

	return n, nil
}

// Start binds the listener, dials the bootstrap peer if configured and
// launches the scheduler and consume loops. Non-blocking.
func (n *Node) Start() error {
	n.start = time.Now()

	if err := n.transport.ListenAndAccept(); err != nil {
		return err
	}
	n.logf("My address is %q", n.transport.Addr())

	if n.Bootstrap != "" {
		if err := n.transport.Dial(n.Bootstrap); err != nil {
			n.onDialFailure(n.Bootstrap, err)
		}
	}

	go n.broadcastLoop()
	go n.loop()

	return nil
}

// Stop closes the quit channel and every open transport; the loops and
// connections observe the close and terminate.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.quitch)
		n.transport.Close()
	})
}

// Addr returns the node's advertised address, available after Start.
func (n *Node) Addr() string {
	return n.transport.Addr()
}

// loop consumes inbound chats until shutdown.
func (n *Node) loop() {
	for {
		select {
		case in := <-n.transport.Consume():
			n.Metrics.MessagesReceived.Inc()
			n.Logger.Record(Received, in.From, in.Chat, n.elapsed())
		case <-n.quitch:
			return
		}
	}
}

// broadcastLoop fires the scheduler at the configured period.
func (n *Node) broadcastLoop() {
	ticker := time.NewTicker(n.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.broadcast()
		case <-n.quitch:
			return
		}
	}
}

// broadcast pushes one freshly generated chat to every connected peer,
// then re-gossips the current peer list. A failure for one peer never
// blocks or aborts sends to the others.
func (n *Node) broadcast() {
	chat := p2p.Chat{Text: n.Generator.Generate(), SentAt: n.elapsed()}
	info := p2p.PeerInfo{ListenAddr: n.transport.Addr(), Known: n.table.Addrs()}

	for _, entry := range n.table.Snapshot() {
		if err := entry.Peer.Send(chat); err != nil {
			n.logf("send to %q failed: %s", entry.Addr, err)
			continue
		}
		n.Metrics.MessagesSent.Inc()
		n.Logger.Record(Sent, entry.Addr, chat, n.elapsed())

		_ = entry.Peer.Send(info)
	}
}

func (n *Node) onPeer(addr string) {
	n.Metrics.ConnectedPeers.Set(float64(n.table.Len()))
	n.logf("Connected to the peer at %q", addr)
	n.logf("Known peers %v", n.table.Addrs())
}

func (n *Node) onPeerDrop(addr string) {
	n.Metrics.ConnectedPeers.Set(float64(n.table.Len()))
	n.logf("Disconnected from the peer at %q", addr)
}

func (n *Node) onMerge(addrs []string) {
	n.Metrics.PeerInfoMerges.Inc()
}

func (n *Node) onDialFailure(addr string, err error) {
	n.Metrics.DialFailures.Inc()
	n.logf("Failed to connect to %q: %s", addr, err)
}

func (n *Node) elapsed() time.Duration {
	return time.Since(n.start)
}

// logf prints an operational line in the elapsed-time format.
func (n *Node) logf(format string, args ...any) {
	fmt.Printf("%s - %s\n", formatElapsed(n.elapsed()), fmt.Sprintf(format, args...))
}
