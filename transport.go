package abd

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	uuid "github.com/satori/go.uuid"
)

// ConnectionState is the transport's externally-visible lifecycle state.
// String values match SPEC_FULL.md §6 exactly (used on the device-listing
// admin channel).
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateAuthorizing
	StateUnauthorized
	StateNoPermission
	StateDetached
	StateOffline
	StateBootloader
	StateDevice
	StateHost
	StateRecovery
	StateSideload
	StateRescue
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateUnauthorized:
		return "unauthorized"
	case StateNoPermission:
		return "noperm"
	case StateDetached:
		return "detached"
	case StateOffline:
		return "offline"
	case StateBootloader:
		return "bootloader"
	case StateDevice:
		return "device"
	case StateHost:
		return "host"
	case StateRecovery:
		return "recovery"
	case StateSideload:
		return "sideload"
	case StateRescue:
		return "rescue"
	default:
		return "offline"
	}
}

// DisconnectHook is a callable registered to fire exactly once when its
// transport is kicked or gracefully shut down. Register returns a handle
// that Remove consumes, avoiding the reentrancy hazard the design notes
// call out (a hook trying to unregister itself mid-fire).
type DisconnectHook func()

type hookHandle struct {
	fn   DisconnectHook
	fired bool
}

// Transport wraps a single Connection: it runs the handshake, tracks
// negotiated features, and owns every LocalSocket bound to this link.
type Transport struct {
	mu sync.Mutex

	id       uint64
	serial   string
	devpath  string
	product  string
	model    string
	device   string
	isLocal  bool // true for TCP/UDP-style transports, matched by host:port

	state    ConnectionState
	proto    ProtocolVersion
	maxPay   uint32
	features map[string]struct{}

	authRequired bool
	authorizer   *Authorizer
	pendingToken []byte

	conn       Connection
	registry   *Registry
	metrics    *Metrics
	dispatcher *ServiceDispatcher

	hooks   []*hookHandle
	sockets map[uint32]LocalSocket

	// loop is the single goroutine that owns every LocalSocket bound to
	// this transport (SPEC_FULL.md §5): onPacket's handlers, and anything
	// a SocketOps variant does to a bound Socket, run here. Created live
	// so handleLink-style setup code can bindSocket/onPacket before a
	// Connection ever calls back.
	loop *EventLoop
}

// NewTransport constructs a transport in its initial Connecting state. The
// registry is where OPENs this transport accepts get installed; metrics
// may be nil (a nil Metrics is a no-op — see metrics.go). dispatcher may
// also be nil, in which case every OPEN is answered with CLSE(0, remote_id).
func NewTransport(serial string, registry *Registry, authorizer *Authorizer, authRequired bool, metrics *Metrics, dispatcher *ServiceDispatcher) *Transport {
	t := &Transport{
		id:           deriveTransportID(serial),
		serial:       serial,
		state:        StateConnecting,
		proto:        ProtocolV2,
		maxPay:       DefaultMaxPayload,
		features:     make(map[string]struct{}),
		authRequired: authRequired,
		authorizer:   authorizer,
		registry:     registry,
		metrics:      metrics,
		dispatcher:   dispatcher,
		sockets:      make(map[uint32]LocalSocket),
		loop:         NewEventLoop(),
	}
	go t.loop.Run()
	return t
}

// deriveTransportID turns a serial into a stable opaque 64-bit id the same
// way the teacher derives a pairing UUID: hash the identity, fold it down.
// Grounded on teacher pair.go's PairingSecret.DeriveUUID.
func deriveTransportID(serial string) uint64 {
	digest := sha256.Sum256([]byte(serial))
	id, _ := uuid.FromBytes(digest[0:16])
	b := id.Bytes()
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (t *Transport) ID() uint64       { return t.id }
func (t *Transport) Serial() string   { return t.serial }
func (t *Transport) Devpath() string  { return t.devpath }
func (t *Transport) Product() string  { return t.product }
func (t *Transport) Model() string    { return t.model }
func (t *Transport) Device() string   { return t.device }
func (t *Transport) MaxPayload() uint32 { return t.maxPay }

func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) setState(s ConnectionState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// SetDevpath records the physical-link identity used by matches_target;
// concrete USB/vsock drivers would call this once the link is known.
func (t *Transport) SetDevpath(devpath string) {
	t.mu.Lock()
	t.devpath = devpath
	t.mu.Unlock()
}

// SetLocal marks a transport as carried over a TCP/UDP-style link, which
// changes matches_target's grammar (SPEC_FULL.md §6).
func (t *Transport) SetLocal(isLocal bool) {
	t.mu.Lock()
	t.isLocal = isLocal
	t.mu.Unlock()
}

// SetConnection installs and starts conn, moving the transport out of its
// zero state into Connecting.
func (t *Transport) SetConnection(conn Connection) {
	t.mu.Lock()
	t.conn = conn
	t.state = StateConnecting
	t.mu.Unlock()

	conn.Start(t.dispatchPacket, t.onConnectionError)
}

// dispatchPacket is conn's on_read callback. It crosses over from the
// Connection's reader goroutine onto this transport's EventLoop, which is
// the only goroutine allowed to mutate local sockets and the registry
// (SPEC_FULL.md §5) — onPacket and everything it calls (handleOPEN/WRTE/
// OKAY/CLSE, bindSocket, reapSocket) run here instead of directly on the
// reader goroutine.
func (t *Transport) dispatchPacket(p Packet) {
	t.loop.Post(func() { t.onPacket(p) })
}

// SendPacket enqueues p via the underlying Connection. A send failure
// triggers kick (the non-blocking form), matching the teacher's "errors at the Connection surface
// always result in a kick, never a retry" rule (SPEC_FULL.md §7).
func (t *Transport) SendPacket(p Packet) error {
	t.mu.Lock()
	if t.state == StateOffline {
		t.mu.Unlock()
		return ErrTransportOffline
	}
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrTransportOffline
	}
	if err := conn.Send(p); err != nil {
		t.kick()
		return err
	}
	if t.metrics != nil {
		t.metrics.PacketsSent.Inc()
		t.metrics.PayloadSize.Update(float64(len(p.Payload)))
	}
	return nil
}

func (t *Transport) onConnectionError(err error) {
	log.Error("transport", t.serial, "connection error:", err)
	t.kick()
}

// kickSocketsOnLoop runs on this transport's EventLoop: it closes every
// bound local socket with a synthetic CLSE locally (no wire traffic, since
// the link is already gone).
func (t *Transport) kickSocketsOnLoop() {
	t.mu.Lock()
	socks := make([]LocalSocket, 0, len(t.sockets))
	for _, s := range t.sockets {
		socks = append(socks, s)
	}
	t.mu.Unlock()
	for _, s := range socks {
		s.receivePeerClose()
	}
}

// kick is the cross-thread-safe cancellation primitive: safe to call from
// any goroutine, including a handler already running on this transport's
// own loop (a malformed banner, a failed SendPacket, and similar internal
// faults all kick from there) or the Connection's own reader/writer
// goroutine (onConnectionError). It never blocks — the Connection is stopped
// on a separate goroutine, and the socket teardown and disconnect hooks it
// triggers are posted to the loop and run afterward.
// Kick, below, is the synchronous form for callers outside the loop.
func (t *Transport) kick() {
	t.mu.Lock()
	if t.state == StateOffline {
		t.mu.Unlock()
		return
	}
	t.state = StateOffline
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		go conn.Stop()
	}
	t.loop.Post(func() {
		t.kickSocketsOnLoop()
		if t.metrics != nil {
			t.metrics.Kicks.Inc()
		}
		t.RunDisconnects()
	})
}

// Kick is the canonical cancellation primitive for callers outside this
// transport's own event loop (tests, the admin control server, signal
// handling on shutdown): it stops the Connection, then waits for every
// bound local socket to actually finish closing and every disconnect hook
// to fire before returning. Never call Kick from within a handler running
// on this transport's loop — use kick, which is always safe there.
func (t *Transport) Kick() {
	t.mu.Lock()
	if t.state == StateOffline {
		t.mu.Unlock()
		return
	}
	t.state = StateOffline
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.Stop()
	}
	done := make(chan struct{})
	t.loop.Post(func() {
		t.kickSocketsOnLoop()
		if t.metrics != nil {
			t.metrics.Kicks.Inc()
		}
		t.RunDisconnects()
		close(done)
	})
	<-done
}

// AddDisconnect registers hook and returns a handle for RemoveDisconnect.
// Legal both before and after the transport has fired its hooks once
// (firing is exactly-once regardless of how many times RunDisconnects is
// invoked).
func (t *Transport) AddDisconnect(hook DisconnectHook) *hookHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := &hookHandle{fn: hook}
	t.hooks = append(t.hooks, h)
	return h
}

// RemoveDisconnect unregisters h if still present; a no-op if it already
// fired or was never registered.
func (t *Transport) RemoveDisconnect(h *hookHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.hooks {
		if cur == h {
			t.hooks = append(t.hooks[:i], t.hooks[i+1:]...)
			return
		}
	}
}

// RunDisconnects invokes every still-pending hook in registration order,
// then clears the list. Calling it twice in a row fires each hook at most
// once across both calls, satisfying SPEC_FULL.md §8's quantified
// invariant. Hooks run without any lock held, so a hook may itself call
// AddDisconnect/RemoveDisconnect without deadlocking.
func (t *Transport) RunDisconnects() {
	t.mu.Lock()
	pending := t.hooks
	t.hooks = nil
	t.mu.Unlock()

	for _, h := range pending {
		h.fn()
	}
}

// SetFeatures replaces the negotiated feature set outright — it is not a
// merge. Passing the same csv twice is therefore idempotent.
func (t *Transport) SetFeatures(csv string) {
	set := parseFeatures(csv)
	t.mu.Lock()
	t.features = set
	t.mu.Unlock()
}

func (t *Transport) HasFeature(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.features[name]
	return ok
}

// Features returns the current negotiated set as a sorted slice.
func (t *Transport) Features() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.features))
	for f := range t.features {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func parseFeatures(csv string) map[string]struct{} {
	set := make(map[string]struct{})
	if csv == "" {
		return set
	}
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				set[csv[start:i]] = struct{}{}
			}
			start = i + 1
		}
	}
	return set
}

// bindSocket registers sock as bound to this transport. Once bound, a
// Kick will reach it; the transport stays alive as long as at least one
// socket remains bound (SPEC_FULL.md §5).
// starter is optionally implemented by a SocketOps variant that runs
// background I/O (fdOps's pump, sourceOps's filler) and needs to wait until
// its Socket is actually bound/paired before that I/O can produce anything
// useful — see fdsocket.go's start() and sinksource.go's start().
type starter interface{ start() }

func (t *Transport) bindSocket(sock LocalSocket) {
	sock.setTransport(t)
	t.mu.Lock()
	t.sockets[sock.LocalID()] = sock
	t.mu.Unlock()
	if s, ok := sock.(*Socket); ok {
		if st, ok := s.ops.(starter); ok {
			st.start()
		}
	}
}

// reapSocket removes sock from both this transport's bound set and the
// shared registry once its CLSE handshake (in either direction) completes.
func (t *Transport) reapSocket(sock LocalSocket) {
	t.registry.Remove(sock)
	t.mu.Lock()
	delete(t.sockets, sock.LocalID())
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.OpenSockets.Dec()
	}
}

// onPacket is the Connection's on_read callback: classify as handshake
// control traffic or forward to the addressed local socket.
func (t *Transport) onPacket(p Packet) {
	if t.metrics != nil {
		t.metrics.PacketsReceived.Inc()
	}
	switch p.Command {
	case CmdCNXN:
		t.handleCNXN(p)
	case CmdAUTH:
		t.handleAUTH(p)
	case CmdOPEN:
		t.handleOPEN(p)
	case CmdWRTE:
		t.handleWRTE(p)
	case CmdOKAY:
		t.handleOKAY(p)
	case CmdCLSE:
		t.handleCLSE(p)
	default:
		log.Warning("transport", t.serial, "unhandled command", p.Command)
	}
}

func (t *Transport) handleCNXN(p Packet) {
	side, product, model, device, features, err := parseBanner(string(p.Payload))
	if err != nil {
		// Open Question (a): malformed banners go offline rather than crash.
		log.Warning("transport", t.serial, "malformed banner:", err)
		t.kick()
		return
	}

	t.mu.Lock()
	t.product, t.model, t.device = product, model, device
	needsAuth := t.authRequired && t.authorizer != nil
	t.mu.Unlock()
	t.SetFeatures(joinFeatures(features))

	if needsAuth {
		token := make([]byte, 20)
		if _, err := rand.Read(token); err != nil {
			t.kick()
			return
		}
		t.mu.Lock()
		t.pendingToken = token
		t.state = StateUnauthorized
		t.mu.Unlock()
		t.authorizer.rememberPending(t.id, token)
		t.SendPacket(NewPacket(CmdAUTH, AuthToken, 0, token))
		return
	}

	t.completeHandshake(side)
}

func (t *Transport) completeHandshake(side string) {
	switch side {
	case "host":
		t.setState(StateHost)
	case "bootloader":
		t.setState(StateBootloader)
	case "recovery":
		t.setState(StateRecovery)
	case "rescue":
		t.setState(StateRescue)
	case "sideload":
		t.setState(StateSideload)
	default:
		t.setState(StateDevice)
	}
}

func (t *Transport) handleAUTH(p Packet) {
	if t.authorizer == nil {
		t.kick()
		return
	}
	switch p.Arg0 {
	case AuthSignature:
		// SPEC_FULL.md §4.3: Unauthorized -> Authorizing while the
		// signature is checked, even though verification is synchronous
		// here — the state is real and externally observable (§6), not
		// just a label that's skipped straight past.
		t.setState(StateAuthorizing)
		token := t.authorizer.pendingFor(t.id)
		if token == nil || !t.authorizer.VerifySignature(token, p.Payload) {
			authErr := newAuthError("transport %s: signature verification failed", t.serial)
			log.Warning("transport", t.serial, "auth failed, resending token:", authErr)
			t.setState(StateUnauthorized)
			// resend a fresh token rather than fail outright.
			newToken := make([]byte, 20)
			rand.Read(newToken)
			t.mu.Lock()
			t.pendingToken = newToken
			t.mu.Unlock()
			t.authorizer.rememberPending(t.id, newToken)
			t.SendPacket(NewPacket(CmdAUTH, AuthToken, 0, newToken))
			return
		}
		t.completeHandshake("device")
		t.SendPacket(NewPacket(CmdCNXN, 0, 0, []byte(fmt.Sprintf("device::features=%s", joinFeatures(t.sortedFeatures())))))
	case AuthRSAPublicKey:
		t.setState(StateAuthorizing)
		if !t.authorizer.Offer(t.id, p.Payload) {
			authErr := newAuthError("transport %s: RSA public key offer rejected", t.serial)
			log.Warning("transport", t.serial, "auth failed:", authErr)
			t.setState(StateUnauthorized)
			return
		}
		t.completeHandshake("device")
		t.SendPacket(NewPacket(CmdCNXN, 0, 0, []byte(fmt.Sprintf("device::features=%s", joinFeatures(t.sortedFeatures())))))
	default:
		log.Warning("transport", t.serial, "unknown AUTH sub-type", p.Arg0)
	}
}

func (t *Transport) sortedFeatures() []string { return t.Features() }

func joinFeatures(fs []string) string {
	out := ""
	for i, f := range fs {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
