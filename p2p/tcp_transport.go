package p2p

import (
	"errors"
	"log"
	"net"
	"sync"
)

var (
	ErrPeerClosed = errors.New("p2p: peer connection closed")
	ErrQueueFull  = errors.New("p2p: outbound queue full")
)

const sendQueueSize = 32

// TCPPeer represents a remote node over a TCP connection. It owns the
// socket; an outbound queue drained by a dedicated write loop keeps
// Send callers off the wire.
type TCPPeer struct {
	conn     net.Conn
	addr     string // Advertised listen address, set by the handshake
	outbound bool   // True if we dialed the connection, false if we accepted it
	sendch   chan Message
	quit     chan struct{}
	closing  sync.Once
}

func newTCPPeer(conn net.Conn, outbound bool) *TCPPeer {
	return &TCPPeer{
		conn:     conn,
		outbound: outbound,
		sendch:   make(chan Message, sendQueueSize),
		quit:     make(chan struct{}),
	}
}

func (p *TCPPeer) Addr() string { return p.addr }

// Send enqueues msg for the write loop, FIFO. It never blocks on I/O:
// a terminated peer fails with ErrPeerClosed, a full queue with
// ErrQueueFull (the message is dropped, best-effort).
func (p *TCPPeer) Send(msg Message) error {
	select {
	case <-p.quit:
		return ErrPeerClosed
	default:
	}

	select {
	case p.sendch <- msg:
		return nil
	case <-p.quit:
		return ErrPeerClosed
	default:
		return ErrQueueFull
	}
}

// Close shuts the underlying socket. Safe to call from either loop or
// externally; the close fires exactly once.
func (p *TCPPeer) Close() error {
	var err error
	p.closing.Do(func() {
		close(p.quit)
		err = p.conn.Close()
	})
	return err
}

// TCPTransportOpts contains configuration options for TCPTransport.
type TCPTransportOpts struct {
	ListenAddr    string     // Address to bind
	AdvertiseAddr string     // Address told to peers; defaults to the bound address
	Table         *PeerTable // Shared peer registry
	Decoder       Decoder    // Frame decoder, defaults to GobDecoder

	OnPeer        func(addr string)            // Called after a peer registers
	OnPeerDrop    func(addr string)            // Called after a peer deregisters
	OnMerge       func(addrs []string)         // Called after a peer info frame is merged
	OnDialFailure func(addr string, err error) // Called when an outbound attempt fails
}

// TCPTransport implements the Transport interface using TCP. It runs
// the accept loop, the per-connection read/write loops, and registers
// every handshaken connection into the peer table.
type TCPTransport struct {
	TCPTransportOpts
	listener net.Listener
	inch     chan Inbound
}

// NewTCPTransport creates a new TCPTransport instance. Merge-triggered
// dials from the peer table are wired back into this transport.
func NewTCPTransport(opts TCPTransportOpts) *TCPTransport {
	if opts.Decoder == nil {
		opts.Decoder = GobDecoder{}
	}
	if opts.Table == nil {
		opts.Table = NewPeerTable()
	}

	t := &TCPTransport{
		TCPTransportOpts: opts,
		inch:             make(chan Inbound, 1024),
	}
	t.Table.SetDialFunc(t.dialPeer)

	return t
}

// Addr returns the advertised address.
func (t *TCPTransport) Addr() string {
	return t.AdvertiseAddr
}

// Consume returns a read-only channel for incoming chat messages.
func (t *TCPTransport) Consume() <-chan Inbound {
	return t.inch
}

// Close shuts down the listener and every registered connection.
func (t *TCPTransport) Close() error {
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	for _, entry := range t.Table.Snapshot() {
		entry.Peer.Close()
	}
	return err
}

// ListenAndAccept starts listening for incoming connections.
func (t *TCPTransport) ListenAndAccept() error {
	ln, err := net.Listen("tcp", t.ListenAddr)
	if err != nil {
		return err
	}
	t.listener = ln

	if t.AdvertiseAddr == "" {
		t.AdvertiseAddr = ln.Addr().String()
	}
	t.Table.SetSelf(t.AdvertiseAddr)

	go t.startAcceptLoop()

	log.Printf("TCP transport listening on %s", t.AdvertiseAddr)

	return nil
}

// startAcceptLoop continuously accepts new connections.
func (t *TCPTransport) startAcceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			log.Printf("TCP accept error: %s", err)
			continue
		}

		go t.handleConn(conn, false)
	}
}

// Dial connects to a remote peer once. No retry, no backoff. Dialing
// our own advertised address or an address we already hold a
// connection to is a no-op.
func (t *TCPTransport) Dial(addr string) error {
	if addr == t.AdvertiseAddr || t.Table.Has(addr) {
		return nil
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	go t.handleConn(conn, true)

	return nil
}

// dialPeer is the fire-and-forget variant used for merge-triggered
// attempts; failures are reported and dropped.
func (t *TCPTransport) dialPeer(addr string) {
	if err := t.Dial(addr); err != nil {
		if t.OnDialFailure != nil {
			t.OnDialFailure(addr, err)
			return
		}
		log.Printf("dial %s: %s", addr, err)
	}
}

// handleConn manages an established connection: handshake, table
// registration, then the read and write loops. A registration race
// with an existing link to the same address discards this connection.
func (t *TCPTransport) handleConn(conn net.Conn, outbound bool) {
	peer := newTCPPeer(conn, outbound)

	if err := t.handshake(peer); err != nil {
		log.Printf("handshake with %s failed: %s", conn.RemoteAddr(), err)
		peer.Close()
		return
	}

	if err := t.Table.Insert(peer.addr, peer); err != nil {
		peer.Close()
		return
	}
	if t.OnPeer != nil {
		t.OnPeer(peer.addr)
	}

	go t.writeLoop(peer)
	t.readLoop(peer)
}

// readLoop decodes inbound frames until the transport errors or
// closes. PeerInfo frames update the table, chats go to the consumer.
func (t *TCPTransport) readLoop(p *TCPPeer) {
	defer t.teardown(p)

	for {
		msg, err := t.Decoder.Decode(p.conn)
		if err != nil {
			return
		}

		switch m := msg.(type) {
		case PeerInfo:
			t.merge(m.Known)
		case Chat:
			// The quit case keeps a backlogged dispatch from pinning
			// this loop after shutdown.
			select {
			case t.inch <- Inbound{From: p.addr, Chat: m}:
			case <-p.quit:
				return
			}
		}
	}
}

// merge folds a received known-peer list into the table and reports it.
func (t *TCPTransport) merge(addrs []string) {
	t.Table.MergeKnown(addrs)
	if t.OnMerge != nil {
		t.OnMerge(addrs)
	}
}

// writeLoop drains the outbound queue in FIFO order. A write failure
// terminates the connection identically to a read failure.
func (t *TCPTransport) writeLoop(p *TCPPeer) {
	for {
		select {
		case msg := <-p.sendch:
			frame, err := Encode(msg)
			if err != nil {
				log.Printf("encode for %s: %s", p.addr, err)
				continue
			}
			if _, err := p.conn.Write(frame); err != nil {
				t.teardown(p)
				return
			}
		case <-p.quit:
			return
		}
	}
}

// teardown closes the connection and deregisters it. Both loops may
// call it; the entry is removed and OnPeerDrop fires at most once, and
// a connection discarded during an insert race never evicts the entry
// that won.
func (t *TCPTransport) teardown(p *TCPPeer) {
	p.Close()
	if t.Table.removeConn(p.addr, p) && t.OnPeerDrop != nil {
		t.OnPeerDrop(p.addr)
	}
}
