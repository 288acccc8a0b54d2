package p2p

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrAlreadyPresent = errors.New("p2p: peer already present")

// PeerEntry associates an advertised address with its live connection.
type PeerEntry struct {
	Addr  string
	Peer  Peer
	Since time.Time // When the handshake completed
}

// PeerTable is the shared registry of connected peers, keyed by
// advertised listen address. All access goes through one lock; the
// table is the only source of truth for connection liveness.
type PeerTable struct {
	mu      sync.Mutex
	self    string
	entries map[string]PeerEntry
	dialing map[string]struct{}
	dial    func(addr string)
}

func NewPeerTable() *PeerTable {
	return &PeerTable{
		entries: make(map[string]PeerEntry),
		dialing: make(map[string]struct{}),
	}
}

// SetSelf records this node's own advertised address so merges can skip
// it. Called once the listener is bound.
func (t *PeerTable) SetSelf(addr string) {
	t.mu.Lock()
	t.self = addr
	t.mu.Unlock()
}

func (t *PeerTable) Self() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.self
}

// SetDialFunc installs the dialer triggered by MergeKnown.
func (t *PeerTable) SetDialFunc(fn func(addr string)) {
	t.mu.Lock()
	t.dial = fn
	t.mu.Unlock()
}

// Insert registers a connection under addr. A second live connection to
// the same address fails with ErrAlreadyPresent; the caller must
// discard it rather than replace the existing entry.
func (t *PeerTable) Insert(addr string, p Peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[addr]; ok {
		return ErrAlreadyPresent
	}
	t.entries[addr] = PeerEntry{Addr: addr, Peer: p, Since: time.Now()}

	return nil
}

// Remove deletes the entry for addr. Removing an absent address is a
// no-op.
func (t *PeerTable) Remove(addr string) {
	t.mu.Lock()
	delete(t.entries, addr)
	t.mu.Unlock()
}

// removeConn deletes the entry for addr only while it still maps to p,
// so a stale teardown can never evict a replacement connection.
func (t *PeerTable) removeConn(addr string, p Peer) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[addr]
	if !ok || entry.Peer != p {
		return false
	}
	delete(t.entries, addr)

	return true
}

func (t *PeerTable) Has(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[addr]
	return ok
}

func (t *PeerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Snapshot returns the current entries ordered by address. Mutating the
// result does not touch the table.
func (t *PeerTable) Snapshot() []PeerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]PeerEntry, 0, len(t.entries))
	for _, entry := range t.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Addr < entries[j].Addr })

	return entries
}

// Addrs returns the known peer addresses in order.
func (t *PeerTable) Addrs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	addrs := make([]string, 0, len(t.entries))
	for addr := range t.entries {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	return addrs
}

// MergeKnown fires one dial attempt for every address that is not our
// own, not connected and not already being dialed. Best-effort and
// fire-and-forget: each attempt runs in its own goroutine, failures are
// dropped without retry.
func (t *PeerTable) MergeKnown(addrs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn := t.dial
	if fn == nil {
		return
	}

	for _, addr := range addrs {
		if addr == "" || addr == t.self {
			continue
		}
		if _, ok := t.entries[addr]; ok {
			continue
		}
		if _, ok := t.dialing[addr]; ok {
			continue
		}

		t.dialing[addr] = struct{}{}
		go func(addr string) {
			defer t.doneDialing(addr)
			fn(addr)
		}(addr)
	}
}

func (t *PeerTable) doneDialing(addr string) {
	t.mu.Lock()
	delete(t.dialing, addr)
	t.mu.Unlock()
}
