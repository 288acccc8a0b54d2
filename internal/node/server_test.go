package node

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slant14/p2p-gossiping-app/internal/metrics"
	"github.com/slant14/p2p-gossiping-app/p2p"
)

type stubGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *stubGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("msg-%d", g.n)
}

type recordedEvent struct {
	dir     Direction
	peer    string
	msg     p2p.Message
	elapsed time.Duration
}

type recordingLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *recordingLogger) Record(dir Direction, peer string, msg p2p.Message, elapsed time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{dir, peer, msg, elapsed})
}

func (l *recordingLogger) chats(dir Direction) []recordedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []recordedEvent
	for _, ev := range l.events {
		if ev.dir != dir {
			continue
		}
		if _, ok := ev.msg.(p2p.Chat); ok {
			out = append(out, ev)
		}
	}
	return out
}

func newTestNode(t *testing.T, period time.Duration, bootstrap string) (*Node, *recordingLogger) {
	t.Helper()

	logger := &recordingLogger{}
	n, err := New(Opts{
		ListenAddr: "127.0.0.1:0",
		Period:     period,
		Bootstrap:  bootstrap,
		Generator:  &stubGenerator{},
		Logger:     logger,
	})
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(n.Stop)

	return n, logger
}

func waitForPeerCount(t *testing.T, n *Node, count int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if n.table.Len() >= count {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s has %d peers, wanted %d", n.Addr(), n.table.Len(), count)
}

func waitForChats(t *testing.T, l *recordingLogger, dir Direction, count int) []recordedEvent {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if evs := l.chats(dir); len(evs) >= count {
			return evs
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("recorded %d %s chats, wanted %d", len(l.chats(dir)), dir, count)
	return nil
}

func TestNewRejectsNonPositivePeriod(t *testing.T) {
	_, err := New(Opts{ListenAddr: "127.0.0.1:0"})
	assert.Error(t, err)

	_, err = New(Opts{ListenAddr: "127.0.0.1:0", Period: -time.Second})
	assert.Error(t, err)
}

func TestBroadcastReachesPeer(t *testing.T) {
	// A ticks fast; B stays quiet and listens.
	a, aLog := newTestNode(t, 50*time.Millisecond, "")
	b, bLog := newTestNode(t, time.Hour, a.Addr())

	waitForPeerCount(t, a, 1)
	waitForPeerCount(t, b, 1)

	received := waitForChats(t, bLog, Received, 2)
	for _, ev := range received {
		assert.Equal(t, a.Addr(), ev.peer)
	}

	// One freshly generated message per tick: texts never repeat.
	seen := map[string]bool{}
	for _, ev := range received {
		text := ev.msg.(p2p.Chat).Text
		assert.False(t, seen[text], "duplicate broadcast %q", text)
		seen[text] = true
	}

	sent := waitForChats(t, aLog, Sent, 2)
	for _, ev := range sent {
		assert.Equal(t, b.Addr(), ev.peer)
	}
}

func TestHandshakeCountsPeerInfoMerge(t *testing.T) {
	// Nodes share the process-wide metrics; measure the delta.
	before := testutil.ToFloat64(metrics.Default.PeerInfoMerges)

	a, _ := newTestNode(t, time.Hour, "")
	b, _ := newTestNode(t, time.Hour, a.Addr())

	waitForPeerCount(t, a, 1)
	waitForPeerCount(t, b, 1)

	// Both sides merge the other's known list during the handshake.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(metrics.Default.PeerInfoMerges) >= before+2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("peer info merge count never rose above %v", before)
}

func TestGossipDiscoversIndirectPeers(t *testing.T) {
	a, _ := newTestNode(t, time.Hour, "")
	b, _ := newTestNode(t, time.Hour, a.Addr())

	waitForPeerCount(t, a, 1)
	waitForPeerCount(t, b, 1)

	// C is only told about A; it must learn B through A's handshake
	// and dial it on its own.
	c, _ := newTestNode(t, time.Hour, a.Addr())

	waitForPeerCount(t, c, 2)
	waitForPeerCount(t, b, 2)
	waitForPeerCount(t, a, 2)

	assert.ElementsMatch(t, []string{a.Addr(), b.Addr()}, c.table.Addrs())
}

func TestBroadcastSurvivesDeadPeer(t *testing.T) {
	a, _ := newTestNode(t, 50*time.Millisecond, "")
	b, _ := newTestNode(t, time.Hour, a.Addr())
	_, cLog := newTestNode(t, time.Hour, a.Addr())

	waitForPeerCount(t, a, 2)

	b.Stop()

	// Within one read loop iteration the dead entry is gone and later
	// ticks keep reaching C.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && a.table.Has(b.Addr()) {
		time.Sleep(20 * time.Millisecond)
	}
	assert.False(t, a.table.Has(b.Addr()))

	before := len(cLog.chats(Received))
	waitForChats(t, cLog, Received, before+2)
}
