package abd

import (
	"io"
	"sync"
)

// Connection owns a single physical link. Concrete drivers (USB bulk
// endpoints, vsock) are out of scope; this package ships the generic
// stream variant, which works unmodified over any io.ReadWriteCloser
// (in particular a net.Conn, covering the TCP case directly).
type Connection interface {
	// Start begins reading in the background. Every well-formed Packet is
	// delivered to onRead; an unrecoverable I/O or framing failure invokes
	// onError exactly once and moves the Connection to its terminal state.
	Start(onRead func(Packet), onError func(error))
	// Send may block briefly on backpressure. After a prior onError, Send
	// always fails.
	Send(p Packet) error
	// Stop is idempotent: it aborts in-flight reads/writes, and once it
	// returns no further callback will fire.
	Stop()
}

// StreamConnection is the "stream variant" from SPEC_FULL.md §4.2: a
// reader goroutine and a writer goroutine around a bounded outbound queue,
// suitable for TCP or any other byte-pipe transport (USB bulk endpoints
// would plug in behind the same io.ReadWriteCloser).
type StreamConnection struct {
	rwc      io.ReadWriteCloser
	proto    ProtocolVersion
	maxPay   uint32
	sendCh   chan sendRequest
	stopCh   chan struct{}
	stopOnce sync.Once
	errOnce  sync.Once
	wg       sync.WaitGroup
}

type sendRequest struct {
	packet Packet
	result chan error
}

// NewStreamConnection wraps rwc. proto and maxPayload govern framing on
// both read and write sides until a later CNXN/feature negotiation changes
// them (callers construct a fresh StreamConnection after renegotiation).
func NewStreamConnection(rwc io.ReadWriteCloser, proto ProtocolVersion, maxPayload uint32) *StreamConnection {
	return &StreamConnection{
		rwc:    rwc,
		proto:  proto,
		maxPay: maxPayload,
		sendCh: make(chan sendRequest, 64),
		stopCh: make(chan struct{}),
	}
}

func (c *StreamConnection) Start(onRead func(Packet), onError func(error)) {
	fireErr := func(err error) {
		c.errOnce.Do(func() {
			onError(err)
		})
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			p, err := ReadPacket(c.rwc, c.proto, c.maxPay)
			if err != nil {
				select {
				case <-c.stopCh:
				default:
					fireErr(err)
				}
				return
			}
			onRead(p)
		}
	}()

	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.stopCh:
				return
			case req := <-c.sendCh:
				err := WritePacket(c.rwc, req.packet, c.proto)
				if err != nil {
					fireErr(err)
				}
				req.result <- err
			}
		}
	}()
}

func (c *StreamConnection) Send(p Packet) error {
	req := sendRequest{packet: p, result: make(chan error, 1)}
	select {
	case <-c.stopCh:
		return newTransientIOError(io.ErrClosedPipe)
	case c.sendCh <- req:
	}
	select {
	case <-c.stopCh:
		return newTransientIOError(io.ErrClosedPipe)
	case err := <-req.result:
		return err
	}
}

func (c *StreamConnection) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.rwc.Close()
	})
	c.wg.Wait()
}
