package abd

import "testing"

func newTestTransport(serial string, isLocal bool, product, model, device string) *Transport {
	tr := NewTransport(serial, NewRegistry(), nil, false, nil, nil)
	tr.SetLocal(isLocal)
	tr.product, tr.model, tr.device = product, model, device
	return tr
}

func TestMatchesTargetBareSerial(t *testing.T) {
	tr := newTestTransport("ABC123", false, "", "", "")
	if !tr.MatchesTarget("ABC123") {
		t.Fatal("expected bare serial match")
	}
	if tr.MatchesTarget("other") {
		t.Fatal("expected no match for a different serial")
	}
}

func TestMatchesTargetProductModelDevice(t *testing.T) {
	tr := newTestTransport("ABC123", false, "walleye", "Pixel2", "walleye")
	if !tr.MatchesTarget("product:walleye") {
		t.Fatal("expected product: match")
	}
	if !tr.MatchesTarget("model:Pixel2") {
		t.Fatal("expected model: match")
	}
	if !tr.MatchesTarget("device:walleye") {
		t.Fatal("expected device: match")
	}
	if tr.MatchesTarget("model:Pixel3") {
		t.Fatal("expected no match for a wrong model")
	}
}

func TestMatchesTargetTCPHostPort(t *testing.T) {
	tr := newTestTransport("127.0.0.1:5555", true, "", "", "")
	if !tr.MatchesTarget("tcp:127.0.0.1:5555") {
		t.Fatal("expected exact host:port match")
	}
	if !tr.MatchesTarget("tcp:127.0.0.1") {
		t.Fatal("expected host-only match when query omits the port")
	}
	if tr.MatchesTarget("tcp:127.0.0.1:9999") {
		t.Fatal("expected no match for a wrong port")
	}
	// matchesHostPort only looks at host:port, not the tcp/udp prefix itself,
	// so a udp: query against the same serial matches too.
	if !tr.MatchesTarget("udp:127.0.0.1:5555") {
		t.Fatal("expected udp: query to match the same host:port serial")
	}
}

func TestMatchesTargetNonLocalNeverMatchesBareHost(t *testing.T) {
	tr := newTestTransport("serial-not-hostport", false, "", "", "")
	if tr.MatchesTarget("serial-not-hostport-other") {
		t.Fatal("expected no match")
	}
	// A non-local transport's bare query path only matches full serial/devpath,
	// never falls back to a host-only comparison.
	if tr.MatchesTarget("serial-not-hostport-o") {
		t.Fatal("expected no partial match")
	}
}
