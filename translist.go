package abd

import "sync"

// TransportList is the process-wide set of live transports. Grounded on the
// teacher's single global EnclaveClient ownership in krd/control_server.go,
// generalized from "exactly one remote" to "however many concurrently
// connected links this process is bridging".
type TransportList struct {
	mu         sync.Mutex
	transports map[uint64]*Transport
}

// NewTransportList builds an empty list.
func NewTransportList() *TransportList {
	return &TransportList{transports: make(map[uint64]*Transport)}
}

// Add registers t under its transport_id, replacing any prior transport that
// shared the same id (the id is derived from the serial alone, so two
// transports with the same serial collide — the newer one wins).
func (l *TransportList) Add(t *Transport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transports[t.ID()] = t
}

// Remove drops t from the list. Safe to call more than once.
func (l *TransportList) Remove(t *Transport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.transports, t.ID())
}

// Get looks up a transport by id.
func (l *TransportList) Get(id uint64) *Transport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transports[id]
}

// Snapshot returns a stable copy of the currently-registered transports, safe
// to range over without the list lock held.
func (l *TransportList) Snapshot() []*Transport {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Transport, 0, len(l.transports))
	for _, t := range l.transports {
		out = append(out, t)
	}
	return out
}

// FindMatching returns every transport whose banner/serial satisfies query,
// per the target-match grammar in match.go.
func (l *TransportList) FindMatching(query string) []*Transport {
	var out []*Transport
	for _, t := range l.Snapshot() {
		if t.MatchesTarget(query) {
			out = append(out, t)
		}
	}
	return out
}

// Len reports how many transports are currently registered.
func (l *TransportList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.transports)
}
