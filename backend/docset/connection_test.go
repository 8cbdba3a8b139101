package docset

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crdtweave/backend/config"
	"crdtweave/backend/frontend"
	"crdtweave/backend/transport"
	"crdtweave/backend/types"
)

// wireMsg is one in-flight delivery on the fake network below.
type wireMsg struct {
	data []byte
	from string
}

// fakeNetwork is an in-memory switchboard standing in for a real transport,
// so these tests exercise Connection's listen/handle/send wiring without
// touching a UDP socket.
type fakeNetwork struct {
	mu    sync.Mutex
	socks map[string]*fakeSocket
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{socks: make(map[string]*fakeSocket)}
}

func (n *fakeNetwork) newSocket(addr string) *fakeSocket {
	s := &fakeSocket{addr: addr, net: n, inbox: make(chan wireMsg, 64)}
	n.mu.Lock()
	n.socks[addr] = s
	n.mu.Unlock()
	return s
}

type fakeSocket struct {
	addr  string
	net   *fakeNetwork
	inbox chan wireMsg
}

func (s *fakeSocket) GetAddress() string { return s.addr }

func (s *fakeSocket) Send(dest string, b []byte, _ time.Duration) error {
	s.net.mu.Lock()
	target, ok := s.net.socks[dest]
	s.net.mu.Unlock()
	if !ok {
		return nil
	}
	target.inbox <- wireMsg{data: b, from: s.addr}
	return nil
}

func (s *fakeSocket) Recv(timeout time.Duration) ([]byte, string, error) {
	select {
	case m := <-s.inbox:
		return m.data, m.from, nil
	case <-time.After(timeout):
		return nil, "", transport.TimeoutError(timeout)
	}
}

func (s *fakeSocket) Close() error { return nil }

func TestConnectionSyncsLocalChangeToPeer(t *testing.T) {
	net := newFakeNetwork()
	sockA := net.newSocket("a:1")
	sockB := net.newSocket("b:1")

	docA := frontend.New(types.ActorId("A"))
	docsA := New()
	docsA.Put("doc-1", docA)

	docB := frontend.New(types.ActorId("B"))
	docsB := New()
	docsB.Put("doc-1", docB)

	confA := config.Configuration{ActorId: "A", Socket: sockA, RecvTimeout: 20 * time.Millisecond, BloomFalsePositiveRate: 0.01}
	confB := config.Configuration{ActorId: "B", Socket: sockB, RecvTimeout: 20 * time.Millisecond, BloomFalsePositiveRate: 0.01}

	connA := NewConnection(confA, docsA)
	connB := NewConnection(confB, docsB)
	connA.AddPeer("b:1")
	connB.AddPeer("a:1")

	require.NoError(t, connA.Start())
	require.NoError(t, connB.Start())
	defer connA.Stop()
	defer connB.Stop()

	_, _, err := docA.Change("A sets x", func(r *frontend.Recorder) {
		r.SetKey(types.RootId, "x", types.IntValue(99))
	})
	require.NoError(t, err)
	connA.NotifyLocalChange("doc-1")

	require.Eventually(t, func() bool {
		val, ok := docB.OpSet().GetValue(types.RootId, "x")
		return ok && val.I == 99
	}, 2*time.Second, 10*time.Millisecond, "peer B should receive A's change via the sync loop")
}

func TestConnectionIgnoresMessageForUnknownDoc(t *testing.T) {
	net := newFakeNetwork()
	sockA := net.newSocket("a:2")
	sockB := net.newSocket("b:2")

	docsA := New()
	docsA.Put("doc-1", frontend.New(types.ActorId("A")))
	docsB := New() // B holds no documents at all

	confA := config.Configuration{ActorId: "A", Socket: sockA, RecvTimeout: 20 * time.Millisecond}
	confB := config.Configuration{ActorId: "B", Socket: sockB, RecvTimeout: 20 * time.Millisecond}

	connA := NewConnection(confA, docsA)
	connB := NewConnection(confB, docsB)
	connA.AddPeer("b:2")

	require.NoError(t, connA.Start())
	require.NoError(t, connB.Start())
	defer connA.Stop()
	defer connB.Stop()

	headsBefore := append([]string{}, mustDoc(t, docsA, "doc-1").Heads()...)
	connA.NotifyLocalChange("doc-1")

	// B has no such document; it must not panic or register spurious state,
	// and A's own heads must remain stable since nothing came back.
	time.Sleep(50 * time.Millisecond)
	require.ElementsMatch(t, headsBefore, mustDoc(t, docsA, "doc-1").Heads())
}

func mustDoc(t *testing.T, ds *DocSet, docId string) *frontend.Doc {
	t.Helper()
	d, ok := ds.Get(docId)
	require.True(t, ok)
	return d
}

func TestDocSetPutGetAndDocIds(t *testing.T) {
	ds := New()
	_, ok := ds.Get("missing")
	require.False(t, ok)

	doc := frontend.New(types.ActorId("A"))
	ds.Put("doc-1", doc)
	got, ok := ds.Get("doc-1")
	require.True(t, ok)
	require.Equal(t, doc, got)
	require.Equal(t, []string{"doc-1"}, ds.DocIds())
}
