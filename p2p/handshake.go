package p2p

import "fmt"

// handshake runs the mandatory first exchange on a fresh connection:
// send our own PeerInfo, then require the remote's PeerInfo as the very
// first inbound frame. The remote's advertised address comes out of it
// and its known-peer list is merged into the table. No other traffic is
// accepted before this completes.
func (t *TCPTransport) handshake(p *TCPPeer) error {
	ours := PeerInfo{ListenAddr: t.AdvertiseAddr, Known: t.Table.Addrs()}
	frame, err := Encode(ours)
	if err != nil {
		return err
	}
	if _, err := p.conn.Write(frame); err != nil {
		return err
	}

	msg, err := t.Decoder.Decode(p.conn)
	if err != nil {
		return err
	}
	info, ok := msg.(PeerInfo)
	if !ok {
		return fmt.Errorf("expected peer info as first frame, got %T", msg)
	}
	if info.ListenAddr == "" || info.ListenAddr == t.AdvertiseAddr {
		return fmt.Errorf("invalid advertised address %q", info.ListenAddr)
	}

	p.addr = info.ListenAddr
	t.merge(info.Known)

	return nil
}
