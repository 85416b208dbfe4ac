package abd

// This file is the protocol mapping from SPEC_FULL.md §4.4: how inbound
// OPEN/WRTE/OKAY/CLSE packets drive the registry and local sockets. It is
// split out from transport.go (handshake) and match.go/banner.go purely for
// readability — all three operate on the same *Transport.

// handleOPEN implements: look up the named service; if it starts, allocate
// a fresh local_id, pair it with a RemoteSocket shadowing the peer's
// remote_id, and answer OKAY(local_id, remote_id). If the service is
// unknown, forbidden, or fails to start, answer CLSE(0, remote_id) instead.
func (t *Transport) handleOPEN(p Packet) {
	remoteID := p.Arg0
	name := trimNUL(p.Payload)

	if t.dispatcher == nil {
		t.SendPacket(NewPacket(CmdCLSE, 0, remoteID, nil))
		return
	}

	sock, err := t.dispatcher.Dispatch(name, t, t.maxPay)
	if err != nil {
		log.Notice("transport", t.serial, "OPEN", name, "failed:", err)
		t.SendPacket(NewPacket(CmdCLSE, 0, remoteID, nil))
		return
	}

	localID := t.registry.Install(sock)
	remote := &RemoteSocket{remoteID: remoteID, transport: t}
	pairSockets(sock, remote)
	t.bindSocket(sock)

	if t.metrics != nil {
		t.metrics.OpenSockets.Inc()
	}

	t.SendPacket(NewPacket(CmdOKAY, localID, remoteID, nil))
}

// handleWRTE implements: find the local socket addressed by arg1 (the
// receiver's local_id), hand the payload to its Enqueue, and once that
// succeeds emit the OKAY credit return. A WRTE for an unknown local_id is a
// StateError and is silently dropped (the peer will eventually time out or
// the transport will be kicked for other reasons). Enqueue has no
// backpressure contract (see SocketOps.Enqueue) — any error it returns is
// fatal to the pair, so the socket is closed, cascading a CLSE to the peer,
// instead of withholding the OKAY and hoping a retry helps.
func (t *Transport) handleWRTE(p Packet) {
	localID := p.Arg1
	remoteID := p.Arg0

	sock := t.registry.Lookup(localID)
	if sock == nil {
		return
	}
	if err := sock.Enqueue(p.Payload); err != nil {
		log.Notice("transport", t.serial, "WRTE", localID, "enqueue failed, closing:", err)
		sock.Close()
		return
	}
	t.SendPacket(NewPacket(CmdOKAY, localID, remoteID, nil))
}

// handleOKAY implements the dual credit/pairing effect called out in
// SPEC_FULL.md §9: on the first OKAY of a stream the remote_id is learned
// (if not already paired), and on every OKAY the local socket's credit is
// returned.
func (t *Transport) handleOKAY(p Packet) {
	localID := p.Arg1
	remoteID := p.Arg0

	sock := t.registry.Lookup(localID)
	if sock == nil {
		return
	}
	if sock.Peer() == nil {
		remote := &RemoteSocket{remoteID: remoteID, transport: t}
		pairSockets(sock, remote)
	}
	sock.grantCredit()
}

// handleCLSE implements: mark the pair closing and invoke the local
// socket's close, without responding — the peer already knows the pair is
// done, so no CLSE is sent back.
func (t *Transport) handleCLSE(p Packet) {
	localID := p.Arg1
	sock := t.registry.Lookup(localID)
	if sock == nil {
		return
	}
	sock.receivePeerClose()
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
