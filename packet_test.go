package abd

import (
	"bytes"
	"testing"
)

func TestCommandConstants(t *testing.T) {
	cases := []struct {
		cmd  Command
		want string
	}{
		{CmdCNXN, "CNXN"},
		{CmdAUTH, "AUTH"},
		{CmdOPEN, "OPEN"},
		{CmdOKAY, "OKAY"},
		{CmdCLSE, "CLSE"},
		{CmdWRTE, "WRTE"},
		{CmdSYNC, "SYNC"},
		{CmdSTLS, "STLS"},
	}
	for _, c := range cases {
		if got := c.cmd.String(); got != c.want {
			t.Errorf("Command(%#x).String() = %q, want %q", uint32(c.cmd), got, c.want)
		}
		p := Packet{Command: c.cmd}
		if uint32(c.cmd)^0xffffffff != p.magic() {
			t.Errorf("magic for %s did not round-trip", c.want)
		}
	}
}

func TestWriteReadPacketRoundTripV2(t *testing.T) {
	p := NewPacket(CmdWRTE, 7, 9, []byte("hello"))
	var buf bytes.Buffer
	if err := WritePacket(&buf, p, ProtocolV2); err != nil {
		t.Fatal(err)
	}
	got, err := ReadPacket(&buf, ProtocolV2, DefaultMaxPayload)
	if err != nil {
		t.Fatal(err)
	}
	if got.Command != p.Command || got.Arg0 != p.Arg0 || got.Arg1 != p.Arg1 {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Fatalf("payload mismatch: got %q, want %q", got.Payload, p.Payload)
	}
}

func TestWriteZeroesChecksumOnV2(t *testing.T) {
	p := NewPacket(CmdWRTE, 0, 0, []byte("payload"))
	var buf bytes.Buffer
	if err := WritePacket(&buf, p, ProtocolV2); err != nil {
		t.Fatal(err)
	}
	hdr := buf.Bytes()[:headerSize]
	if hdr[16] != 0 || hdr[17] != 0 || hdr[18] != 0 || hdr[19] != 0 {
		t.Fatal("v2 checksum field should be zeroed on the wire")
	}
}

func TestReadPacketRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, NewPacket(CmdOPEN, 0, 0, nil), ProtocolV2); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[20] ^= 0xff // corrupt the magic field
	if _, err := ReadPacket(bytes.NewReader(raw), ProtocolV2, DefaultMaxPayload); err == nil {
		t.Fatal("expected a ProtocolError for corrupted magic")
	} else if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %T", err)
	}
}

func TestReadPacketRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, NewPacket(CmdWRTE, 0, 0, make([]byte, 128)), ProtocolV1); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPacket(&buf, ProtocolV1, 64); err == nil {
		t.Fatal("expected a ProtocolError for oversize payload")
	}
}

func TestReadPacketV1ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, NewPacket(CmdWRTE, 0, 0, []byte("abc")), ProtocolV1); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff // flip a payload byte after the checksum was computed
	if _, err := ReadPacket(bytes.NewReader(raw), ProtocolV1, DefaultMaxPayload); err == nil {
		t.Fatal("expected a checksum mismatch ProtocolError on v1")
	}
}

func TestReadPacketV2IgnoresChecksum(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, NewPacket(CmdWRTE, 0, 0, []byte("abc")), ProtocolV1); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[16] = 0xff // corrupt the checksum field itself
	if _, err := ReadPacket(bytes.NewReader(raw), ProtocolV2, DefaultMaxPayload); err != nil {
		t.Fatalf("v2 should ignore a bad checksum field, got %v", err)
	}
}
