package abd

// SocketOps is the small per-stream behavior interface the design notes in
// SPEC_FULL.md §9 call for: a tagged variant (fd-backed, service-backed,
// in-process-paired) implements just these three methods, while Socket
// itself owns every transport/credit/pairing detail common to all of them.
// All methods are invoked from the owning EventLoop goroutine.
type SocketOps interface {
	// Enqueue must fully consume payload before returning — blocking on the
	// backing resource if that's what it takes — and report any failure as
	// fatal: a non-nil return closes the socket (see handleWRTE). There is
	// no backpressure/retry contract; a variant that cannot accept more
	// data right now closes rather than asking to be called again later.
	Enqueue(payload []byte) error
	// Ready is invoked once the peer has returned credit (an OKAY); the
	// implementation may now produce more outbound data.
	Ready()
	// Close disposes of whatever local resource this variant wraps (a file
	// descriptor, a goroutine, nothing). It must not itself talk to the
	// peer — Socket handles the CLSE cascade.
	Close()
}

// LocalSocket is the registry- and transport-facing contract every stream
// endpoint satisfies, regardless of which SocketOps backs it.
type LocalSocket interface {
	LocalID() uint32
	setLocalID(id uint32)
	Peer() *RemoteSocket
	setPeer(r *RemoteSocket)
	Transport() *Transport
	setTransport(t *Transport)
	MaxPayload() uint32
	IsClosing() bool

	// Enqueue is how the transport's WRTE handler feeds inbound data in.
	Enqueue(payload []byte) error
	// Close tears the pair down, cascading a CLSE to the peer unless one
	// was already sent or received.
	Close()
	// receivePeerClose handles an inbound CLSE: mark closing, dispose
	// locally, but do not cascade another CLSE back.
	receivePeerClose()
	// grantCredit handles an inbound OKAY once this socket is paired.
	grantCredit()
}

// RemoteSocket shadows the peer half of one logical stream. It exists only
// while the pairing is live; CLSE (from either side) or transport teardown
// reaps it along with its local counterpart.
type RemoteSocket struct {
	remoteID  uint32
	transport *Transport
	local     LocalSocket
}

// Peer returns the local socket paired with this remote shadow, satisfying
// the symmetric invariant local.Peer().Peer() == local.
func (r *RemoteSocket) Peer() LocalSocket { return r.local }

func (r *RemoteSocket) RemoteID() uint32 { return r.remoteID }

// Socket is the concrete LocalSocket implementation shared by every
// variant in this package (fd-backed, in-process pair, sink/source). It
// owns id/peer/transport bookkeeping and the credit-flow state machine;
// SocketOps supplies only what's specific to the endpoint.
//
// No field here is guarded by a lock: every method is reached either from
// the owning Transport's EventLoop goroutine (onPacket's handlers, always
// posted there — see Transport.dispatchPacket) or, before a socket is ever
// bound to a transport, from a single caller in isolation (tests, or a
// SocketOps variant constructing its own Socket). A background goroutine
// that needs to touch a bound Socket (fdOps's pump, in particular) crosses
// over by posting onto that transport's loop instead of calling in
// directly — the same rule Connection's reader goroutine follows.
type Socket struct {
	id          uint32
	peer        *RemoteSocket
	transport   *Transport
	ops         SocketOps
	maxPayload  uint32
	closing     bool
	readyToSend bool
}

// NewSocket allocates a Socket around ops. It starts with credit (so the
// first outbound SendOutbound is always permitted) — mirroring real local
// sockets, which may write before any OKAY arrives for a brand new pair.
func NewSocket(ops SocketOps, maxPayload uint32) *Socket {
	return &Socket{
		ops:         ops,
		maxPayload:  maxPayload,
		readyToSend: true,
	}
}

func (s *Socket) LocalID() uint32           { return s.id }
func (s *Socket) setLocalID(id uint32)      { s.id = id }
func (s *Socket) MaxPayload() uint32        { return s.maxPayload }
func (s *Socket) Transport() *Transport     { return s.transport }
func (s *Socket) setTransport(t *Transport) { s.transport = t }

func (s *Socket) Peer() *RemoteSocket { return s.peer }

func (s *Socket) setPeer(r *RemoteSocket) { s.peer = r }

func (s *Socket) IsClosing() bool { return s.closing }

// pairSockets wires local and remote together so both halves of the
// symmetric invariant hold: local.Peer().Peer() == local.
func pairSockets(local LocalSocket, remote *RemoteSocket) {
	remote.local = local
	local.setPeer(remote)
}

// Enqueue accepts inbound payload from the peer (via a WRTE). The caller
// (transport.go) is responsible for emitting the OKAY credit return once
// ops.Enqueue reports success.
func (s *Socket) Enqueue(payload []byte) error {
	if s.IsClosing() {
		return ErrSocketClosed
	}
	return s.ops.Enqueue(payload)
}

// SendOutbound is how a socket variant pushes data toward its peer. It is
// gated by the credit flag: enqueueing toggles it false until the peer
// returns an OKAY for this transfer. Must be called on the owning
// transport's loop goroutine (a background SocketOps goroutine that needs
// to send crosses over by posting — see fdOps.sendOutboundOnLoop).
func (s *Socket) SendOutbound(payload []byte) error {
	if s.closing {
		return ErrSocketClosed
	}
	if s.transport == nil || s.peer == nil {
		return ErrSocketClosed
	}
	if !s.readyToSend {
		return ErrNoCredit
	}
	s.readyToSend = false
	t := s.transport
	remoteID := s.peer.remoteID
	id := s.id

	return t.SendPacket(NewPacket(CmdWRTE, id, remoteID, payload))
}

// grantCredit handles an inbound OKAY once paired: return the credit and
// let the variant produce more outbound data.
func (s *Socket) grantCredit() {
	s.readyToSend = true
	s.ops.Ready()
}

// Close tears the pair down from our side: dispose locally, then cascade a
// CLSE to the peer if the pair wasn't already closing.
func (s *Socket) Close() {
	if s.closing {
		return
	}
	s.closing = true
	t := s.transport
	peer := s.peer
	id := s.id

	s.ops.Close()

	if t != nil {
		if peer != nil {
			t.SendPacket(NewPacket(CmdCLSE, id, peer.remoteID, nil))
		}
		t.reapSocket(s)
	}
}

// receivePeerClose handles an inbound CLSE: dispose locally without
// cascading another CLSE back (the peer already knows it's closed).
func (s *Socket) receivePeerClose() {
	if s.closing {
		return
	}
	s.closing = true
	t := s.transport

	s.ops.Close()

	if t != nil {
		t.reapSocket(s)
	}
}
