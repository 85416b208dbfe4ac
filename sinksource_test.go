package abd

import (
	"sync"
	"testing"
)

// stubConnection records every packet it's handed in sent instead of
// transmitting it, standing in for a real
// physical link in tests that only care about the credit/pairing state
// machine above the Connection boundary. Send is called concurrently by
// background pump goroutines in some tests, so it guards sent with its own
// mutex rather than relying on the Transport's.
type stubConnection struct {
	mu   sync.Mutex
	sent []Packet
}

func (s *stubConnection) Start(onRead func(Packet), onError func(error)) {}
func (s *stubConnection) Send(p Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, p)
	return nil
}
func (s *stubConnection) Stop() {}

func (s *stubConnection) snapshot() []Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Packet(nil), s.sent...)
}

// creditHarness wires a Transport to a stubConnection so SendPacket succeeds,
// letting these tests exercise SendOutbound's credit gate directly.
type creditHarness struct {
	t        *Transport
	registry *Registry
	conn     *stubConnection
}

func newCreditHarness() *creditHarness {
	r := NewRegistry()
	tr := NewTransport("serial", r, nil, false, nil, nil)
	conn := &stubConnection{}
	tr.SetConnection(conn)
	return &creditHarness{t: tr, registry: r, conn: conn}
}

func TestSinkDiscardsThenCloses(t *testing.T) {
	sink := newSink(5, DefaultMaxPayload)
	if err := sink.Enqueue([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if sink.IsClosing() {
		t.Fatal("sink should not be closing before its byte budget is exhausted")
	}
	if err := sink.Enqueue([]byte("de")); err != nil {
		t.Fatal(err)
	}
	if !sink.IsClosing() {
		t.Fatal("sink should close once its byte budget is exhausted")
	}
}

func TestSourceStopsWithoutCreditThenResumes(t *testing.T) {
	h := newCreditHarness()
	source := newSource(10, 4) // maxPayload=4 forces multiple chunks
	h.registry.Install(source)
	remote := &RemoteSocket{remoteID: 99, transport: h.t}
	pairSockets(source, remote)
	h.t.bindSocket(source) // triggers sourceOps.start(), consuming the starting credit

	// Without a further OKAY it must not produce a second chunk.
	if source.IsClosing() {
		t.Fatal("source should still have bytes left")
	}

	// Granting credit lets it push the next chunk; repeat until done.
	for i := 0; i < 10 && !source.IsClosing(); i++ {
		source.grantCredit()
	}
	if !source.IsClosing() {
		t.Fatal("source should have closed after emitting all its filler bytes")
	}
}

func TestSocketSendOutboundRespectsCredit(t *testing.T) {
	h := newCreditHarness()
	sock := newSink(0, DefaultMaxPayload) // sinkOps, but we only use the embedded Socket's SendOutbound
	h.registry.Install(sock)
	sock.setTransport(h.t)
	remote := &RemoteSocket{remoteID: 1, transport: h.t}
	pairSockets(sock, remote)

	if err := sock.SendOutbound([]byte("first")); err != nil {
		t.Fatalf("first send should succeed with starting credit: %v", err)
	}
	if err := sock.SendOutbound([]byte("second")); err != ErrNoCredit {
		t.Fatalf("expected ErrNoCredit before any OKAY, got %v", err)
	}
	sock.grantCredit()
	if err := sock.SendOutbound([]byte("third")); err != nil {
		t.Fatalf("send after grantCredit should succeed, got %v", err)
	}
}

func TestPairSocketsSymmetricInvariant(t *testing.T) {
	local := newSink(0, DefaultMaxPayload)
	remote := &RemoteSocket{remoteID: 42}
	pairSockets(local, remote)

	if local.Peer() != remote {
		t.Fatal("local.Peer() should be the paired remote")
	}
	if remote.Peer() != LocalSocket(local) {
		t.Fatal("remote.Peer() should be the paired local, violating the symmetric invariant")
	}
}
