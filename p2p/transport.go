package p2p

// Peer is an interface that represents a remote node in the network.
type Peer interface {
	Addr() string       // Advertised listen address of the remote
	Send(Message) error // Enqueue a frame, never blocks on I/O
	Close() error
}

// Transport handles communication between nodes.
// Can be TCP, UDP, WebSockets.
type Transport interface {
	Addr() string            // Advertised listen address
	ListenAndAccept() error  // Start accepting connections
	Dial(string) error       // Connect to a remote address once
	Consume() <-chan Inbound // Channel for incoming chats
	Close() error            // Shutdown transport and all connections
}
