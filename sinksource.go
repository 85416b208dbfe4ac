package abd

// sink:<n> and source:<n> are the two test services named directly in the
// OPEN grammar (SPEC_FULL.md §4.6); they exist to make the credit/flow
// control invariants in SPEC_FULL.md §8 mechanically testable without a
// real shell or pty underneath. Both are implemented straight against
// SocketOps — no file descriptor at all — the same "plain struct, no I/O
// underneath" shape as the teacher's in-process Agent (agent/agent.go).

func registerSinkSource(d *ServiceDispatcher) {
	// A dispatch with no transport yet uses the package default payload size.
	maxPayload := func(t *Transport) uint32 {
		if t == nil {
			return DefaultMaxPayload
		}
		return t.MaxPayload()
	}
	d.RegisterSocket("sink", func(req ServiceRequest, t *Transport) (LocalSocket, error) {
		n, err := req.Int()
		if err != nil {
			return nil, err
		}
		return newSink(n, maxPayload(t)), nil
	})
	d.RegisterSocket("source", func(req ServiceRequest, t *Transport) (LocalSocket, error) {
		n, err := req.Int()
		if err != nil {
			return nil, err
		}
		return newSource(n, maxPayload(t)), nil
	})
}

// sinkOps discards up to n bytes total, then closes — it never produces
// outbound data. Like Socket, it carries no lock: Enqueue only ever runs on
// the owning transport's loop goroutine (or single-threaded, before the
// socket is bound).
type sinkOps struct {
	remaining int
	sock      *Socket
}

func newSink(n int, maxPayload uint32) *Socket {
	ops := &sinkOps{remaining: n}
	sock := NewSocket(ops, maxPayload)
	ops.sock = sock
	return sock
}

func (s *sinkOps) Enqueue(payload []byte) error {
	if s.remaining <= 0 {
		return nil
	}
	n := len(payload)
	if n > s.remaining {
		n = s.remaining
	}
	s.remaining -= n
	if s.remaining <= 0 {
		s.sock.Close()
	}
	return nil
}

func (s *sinkOps) Ready() {}
func (s *sinkOps) Close() {}

// sourceOps emits n bytes of deterministic filler, chunked to the
// transport's max_payload and gated by credit, then closes. advance/Ready
// only ever run on the owning transport's loop goroutine, so no lock is
// needed here either.
type sourceOps struct {
	remaining int
	pending   []byte
	sock      *Socket
}

func newSource(n int, maxPayload uint32) *Socket {
	ops := &sourceOps{remaining: n}
	sock := NewSocket(ops, maxPayload)
	ops.sock = sock
	return sock
}

// start implements the optional starter interface: bindSocket calls this
// once the socket has a transport (handleOPEN pairs it first), which is the
// earliest point SendOutbound can succeed — any earlier call just returns
// ErrSocketClosed, leaving the starting credit untouched.
func (s *sourceOps) start() { s.advance() }

func fillerBytes(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}

// advance sends the next outstanding chunk if credit allows, stopping
// (without error) when it doesn't — Ready() will call it again once the
// peer returns credit.
func (s *sourceOps) advance() {
	if len(s.pending) == 0 {
		if s.remaining <= 0 {
			s.sock.Close()
			return
		}
		n := s.remaining
		if maxPay := int(s.sock.MaxPayload()); n > maxPay {
			n = maxPay
		}
		s.pending = fillerBytes(n)
	}
	chunk := s.pending

	err := s.sock.SendOutbound(chunk)
	if err == nil {
		s.remaining -= len(chunk)
		s.pending = nil
		s.advance()
		return
	}
	// ErrNoCredit: Ready() retries this same pending chunk later. Any other
	// error means the pair is already gone; nothing further to do.
}

func (s *sourceOps) Enqueue(payload []byte) error {
	return newServiceError("source: does not accept input")
}

func (s *sourceOps) Ready() { s.advance() }
func (s *sourceOps) Close() {}
