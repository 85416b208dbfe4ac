package abd

import "testing"

func newProtocolTransport() (*Transport, *stubConnection) {
	r := NewRegistry()
	policy := NewPolicy()
	d := NewServiceDispatcher(policy)
	registerSinkSource(d)
	tr := NewTransport("serial", r, nil, false, nil, d)
	conn := &stubConnection{}
	tr.SetConnection(conn)
	return tr, conn
}

func TestHandleOPENKnownServiceRepliesOKAY(t *testing.T) {
	tr, conn := newProtocolTransport()
	tr.onPacket(NewPacket(CmdOPEN, 7, 0, append([]byte("sink:10"), 0)))

	sent := conn.snapshot()
	if len(sent) != 1 || sent[0].Command != CmdOKAY {
		t.Fatalf("expected a single OKAY reply, got %+v", sent)
	}
	if sent[0].Arg1 != 7 {
		t.Fatalf("expected OKAY to echo the peer's remote_id 7, got %d", sent[0].Arg1)
	}
	localID := sent[0].Arg0
	if localID == 0 {
		t.Fatal("expected a nonzero allocated local_id")
	}
	if tr.registry.Lookup(localID) == nil {
		t.Fatal("expected the new socket to be registered under its local_id")
	}
}

func TestHandleOPENUnknownServiceRepliesCLSE(t *testing.T) {
	tr, conn := newProtocolTransport()
	tr.onPacket(NewPacket(CmdOPEN, 3, 0, []byte("made-up-service:")))

	sent := conn.snapshot()
	if len(sent) != 1 || sent[0].Command != CmdCLSE {
		t.Fatalf("expected a single CLSE reply, got %+v", sent)
	}
	if sent[0].Arg1 != 3 {
		t.Fatalf("expected CLSE to echo the peer's remote_id 3, got %d", sent[0].Arg1)
	}
}

func TestHandleWRTEDeliversAndReturnsCredit(t *testing.T) {
	tr, conn := newProtocolTransport()
	tr.onPacket(NewPacket(CmdOPEN, 1, 0, []byte("sink:100")))
	opened := conn.snapshot()
	localID := opened[0].Arg0

	tr.onPacket(NewPacket(CmdWRTE, 1, localID, []byte("hello")))

	sent := conn.snapshot()
	if len(sent) != 2 || sent[1].Command != CmdOKAY {
		t.Fatalf("expected OPEN's OKAY followed by WRTE's OKAY, got %+v", sent)
	}
}

func TestHandleWRTEUnknownLocalIDIsSilentlyDropped(t *testing.T) {
	tr, conn := newProtocolTransport()
	tr.onPacket(NewPacket(CmdWRTE, 1, 999, []byte("hello")))
	if sent := conn.snapshot(); len(sent) != 0 {
		t.Fatalf("expected no reply for an unknown local_id, got %+v", sent)
	}
}

func TestHandleOKAYLearnsPeerAndGrantsCredit(t *testing.T) {
	tr, _ := newProtocolTransport()
	sock := newSink(100, DefaultMaxPayload)
	localID := tr.registry.Install(sock)
	tr.bindSocket(sock)

	if sock.Peer() != nil {
		t.Fatal("socket should be unpaired before its first OKAY")
	}
	tr.onPacket(NewPacket(CmdOKAY, 55, localID, nil))
	if sock.Peer() == nil || sock.Peer().RemoteID() != 55 {
		t.Fatalf("expected OKAY to pair the socket to remote_id 55, got %+v", sock.Peer())
	}
}

func TestHandleCLSEClosesLocallyWithoutReplying(t *testing.T) {
	tr, conn := newProtocolTransport()
	sock := newSink(100, DefaultMaxPayload)
	localID := tr.registry.Install(sock)
	remote := &RemoteSocket{remoteID: 9, transport: tr}
	pairSockets(sock, remote)
	tr.bindSocket(sock)

	tr.onPacket(NewPacket(CmdCLSE, 9, localID, nil))

	if !sock.IsClosing() {
		t.Fatal("expected the socket to be marked closing after an inbound CLSE")
	}
	if sent := conn.snapshot(); len(sent) != 0 {
		t.Fatalf("expected no reply to an inbound CLSE, got %+v", sent)
	}
	if tr.registry.Lookup(localID) != nil {
		t.Fatal("expected the socket to be reaped from the registry")
	}
}
