package p2p

import "time"

const (
	KindPeerInfo = 0x1 // Peer address exchange
	KindChat     = 0x2 // Broadcast chat message
)

// Message is the payload of a single wire frame. Exactly two kinds
// exist: PeerInfo and Chat.
type Message interface {
	Kind() byte
}

// PeerInfo announces the sender's listen address together with the
// peers it currently knows about. It is the first frame sent in both
// directions on every new connection, and is re-gossiped periodically.
type PeerInfo struct {
	ListenAddr string   // Address the sender accepts connections on
	Known      []string // Snapshot of the sender's peer table
}

func (PeerInfo) Kind() byte { return KindPeerInfo }

// Chat carries broadcast text stamped with the sender's elapsed time
// since startup.
type Chat struct {
	Text   string
	SentAt time.Duration
}

func (Chat) Kind() byte { return KindChat }

// Inbound is a decoded chat handed to the transport consumer.
type Inbound struct {
	From string // Advertised address of the sending peer
	Chat Chat
}
