package abd

import "net"

// NewLocalPair wires two local sockets directly to each other within this
// process, with no Transport or wire packet involved — SPEC_FULL.md §4.4's
// "local pair helper", used to feed an internal service from a byte pipe.
// Built on net.Pipe (a fully in-memory net.Conn), each end is wrapped as an
// ordinary file-descriptor-backed socket, so the same credit/backpressure
// machinery in fdsocket.go applies symmetrically to both halves.
func NewLocalPair(maxPayload uint32) (a, b *Socket) {
	connA, connB := net.Pipe()
	return NewFDSocket(connA, maxPayload), NewFDSocket(connB, maxPayload)
}
