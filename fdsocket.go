package abd

import (
	"io"
	"sync"
)

// fdOps is the SocketOps variant backing a real file descriptor (or any
// io.ReadWriteCloser standing in for one): a pty, a pipe to a subprocess,
// a plain file. The read loop starts when the socket is bound (start),
// using the socket's starting credit, and keeps reading after each send. A
// chunk read while no credit is available is held in pending rather than
// dropped and the read loop stops; Ready() sends it before resuming the
// read loop. Reads are therefore not strictly gated by Ready(): up to one
// chunk is read ahead of the peer's credit.
type fdOps struct {
	mu      sync.Mutex
	rwc     io.ReadWriteCloser
	sock    *Socket
	pending []byte
	pumping bool
	closed  bool
}

// NewFDSocket wraps rwc in a Socket, wiring inbound WRTEs to Write and
// outbound reads (gated by credit) to Read. maxPayload bounds how much is
// read per pump iteration. The read loop does not start until the socket is
// bound to a transport (see start()) — starting it eagerly would let pump
// race SendOutbound against pairSockets/bindSocket and stall_pending the
// socket closed before it ever had a peer.
func NewFDSocket(rwc io.ReadWriteCloser, maxPayload uint32) *Socket {
	ops := &fdOps{rwc: rwc}
	sock := NewSocket(ops, maxPayload)
	ops.sock = sock
	return sock
}

// start implements the optional starter interface: bindSocket calls this
// once the socket has a transport, which is also the earliest point pump's
// first SendOutbound can possibly succeed.
func (o *fdOps) start() {
	o.mu.Lock()
	if o.pumping || o.closed {
		o.mu.Unlock()
		return
	}
	o.pumping = true
	o.mu.Unlock()
	go o.pump()
}

func (o *fdOps) Enqueue(payload []byte) error {
	_, err := o.rwc.Write(payload)
	return err
}

// Ready fires once the peer has returned credit, on the owning transport's
// loop goroutine (via Socket.grantCredit, itself called from handleOKAY) —
// so it mutates Socket state directly, the same as every other handler
// reached through onPacket. If a read was stalled waiting for credit,
// flush it first; otherwise resume the blocking read loop on a fresh
// goroutine.
func (o *fdOps) Ready() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if len(o.pending) > 0 {
		chunk := o.pending
		o.pending = nil
		o.mu.Unlock()
		if err := o.sock.SendOutbound(chunk); err != nil {
			o.stallOrClose(chunk, err)
			return
		}
		o.Ready()
		return
	}
	if o.pumping {
		o.mu.Unlock()
		return
	}
	o.pumping = true
	o.mu.Unlock()
	go o.pump()
}

// stallOrClose runs on the loop (called either directly from Ready, or
// posted there from pump): hold the chunk for the next Ready() on
// ErrNoCredit, otherwise close the socket.
func (o *fdOps) stallOrClose(chunk []byte, err error) {
	if err == ErrNoCredit {
		o.mu.Lock()
		o.pending = chunk
		o.mu.Unlock()
		return
	}
	o.sock.Close()
}

// pump blocks on Read and forwards each chunk as outbound WRTE traffic,
// living on its own goroutine because Read may block indefinitely — the
// one concession this variant makes to running off the loop goroutine.
// Every mutation of Socket state it triggers crosses over onto the owning
// transport's loop instead of touching the socket directly, the same rule
// a Connection reader goroutine follows when handing packets to onPacket.
func (o *fdOps) pump() {
	buf := make([]byte, o.sock.MaxPayload())
	for {
		n, err := o.rwc.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if sendErr := o.sendOutboundOnLoop(chunk); sendErr != nil {
				o.mu.Lock()
				o.pumping = false
				o.mu.Unlock()
				o.onLoop(func() { o.stallOrClose(chunk, sendErr) })
				return
			}
		}
		if err != nil {
			o.mu.Lock()
			o.pumping = false
			o.mu.Unlock()
			o.onLoop(func() { o.sock.Close() })
			return
		}
	}
}

// sendOutboundOnLoop posts chunk's delivery onto the owning transport's
// loop and waits for the result. pump is a dedicated background goroutine,
// never the loop goroutine itself, so blocking here cannot deadlock it. A
// socket with no transport yet (never bound) has no loop to cross to.
func (o *fdOps) sendOutboundOnLoop(chunk []byte) error {
	t := o.sock.Transport()
	if t == nil {
		return o.sock.SendOutbound(chunk)
	}
	result := make(chan error, 1)
	t.loop.Post(func() { result <- o.sock.SendOutbound(chunk) })
	return <-result
}

// onLoop runs fn on the owning transport's loop, fire-and-forget; if the
// socket has no transport it runs fn immediately instead.
func (o *fdOps) onLoop(fn func()) {
	t := o.sock.Transport()
	if t == nil {
		fn()
		return
	}
	t.loop.Post(fn)
}

func (o *fdOps) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.rwc.Close()
}
