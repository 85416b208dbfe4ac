package abd

import (
	"testing"
	"time"
)

func TestNewLocalPairShuttlesBytesBetweenEnds(t *testing.T) {
	a, b := NewLocalPair(DefaultMaxPayload)
	defer a.Close()
	defer b.Close()

	done := make(chan error, 1)
	go func() { done <- a.Enqueue([]byte("ping")) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out writing into side a")
	}

	// b's underlying net.Pipe end should now have "ping" available to read
	// directly, independent of any transport/credit machinery — NewLocalPair
	// is a raw in-process byte pipe, not a paired transport stream.
	bufCh := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		n, _ := b.ops.(*fdOps).rwc.Read(buf)
		bufCh <- buf[:n]
	}()

	select {
	case got := <-bufCh:
		if string(got) != "ping" {
			t.Fatalf("got %q, want %q", got, "ping")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out reading from side b")
	}
}
