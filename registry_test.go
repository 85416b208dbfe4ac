package abd

import "testing"

func TestRegistryInstallAssignsDistinctIDsSkippingZero(t *testing.T) {
	r := NewRegistry()
	a := newSink(0, DefaultMaxPayload)
	b := newSink(0, DefaultMaxPayload)

	idA := r.Install(a)
	idB := r.Install(b)
	if idA == 0 || idB == 0 {
		t.Fatal("local_id 0 is reserved and must never be allocated")
	}
	if idA == idB {
		t.Fatal("expected distinct ids")
	}
	if r.Lookup(idA) != LocalSocket(a) {
		t.Fatal("Lookup did not return the installed socket")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 installed sockets, got %d", r.Len())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	a := newSink(0, DefaultMaxPayload)
	id := r.Install(a)
	r.Remove(a)
	if r.Lookup(id) != nil {
		t.Fatal("expected Lookup to return nil after Remove")
	}
	if r.Len() != 0 {
		t.Fatalf("expected 0 installed sockets, got %d", r.Len())
	}
}

func TestRegistryAllocationWrapsPastZero(t *testing.T) {
	r := NewRegistry()
	r.next = ^uint32(0) // wrap around on the very next allocation

	a := newSink(0, DefaultMaxPayload)
	idA := r.Install(a) // consumes 0xffffffff
	if idA != ^uint32(0) {
		t.Fatalf("expected first id to be 0xffffffff, got %#x", idA)
	}

	b := newSink(0, DefaultMaxPayload)
	idB := r.Install(b) // must wrap and skip 0
	if idB == 0 {
		t.Fatal("wraparound allocation must still skip reserved id 0")
	}
	if idB != 1 {
		t.Fatalf("expected wraparound to land on 1, got %d", idB)
	}
}

func TestRegistryEnumerateForTransport(t *testing.T) {
	r := NewRegistry()
	tr := NewTransport("serial", r, nil, false, nil, nil)

	a := newSink(0, DefaultMaxPayload)
	r.Install(a)
	a.setTransport(tr)

	b := newSink(0, DefaultMaxPayload)
	r.Install(b)
	// b is left unbound (no transport).

	got := r.EnumerateForTransport(tr)
	if len(got) != 1 || got[0] != LocalSocket(a) {
		t.Fatalf("expected exactly [a], got %v", got)
	}
}
