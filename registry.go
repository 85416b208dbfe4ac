package abd

import "sync"

// Registry is the process-wide local_id -> LocalSocket map, shared by every
// transport this process is bridging. Unlike Socket (owned by exactly one
// transport's EventLoop) the registry is reached concurrently from however
// many transport loop goroutines are live, so it keeps its own lock — the
// same single-lock-guarded-struct idiom the teacher uses for its one global
// EnclaveClient, generalized to an arbitrary number of entries.
type Registry struct {
	mu      sync.Mutex
	sockets map[uint32]LocalSocket
	next    uint32
}

// NewRegistry returns an empty registry. Id allocation starts at 1; 0 is
// reserved for unpaired OPEN targets.
func NewRegistry() *Registry {
	return &Registry{
		sockets: make(map[uint32]LocalSocket),
		next:    1,
	}
}

// Install assigns a fresh local_id to sock and adds it to the registry.
// Allocation is monotonic, wrapping past the uint32 range while skipping 0
// and any id currently in use.
func (r *Registry) Install(sock LocalSocket) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.allocateLocked()
	sock.setLocalID(id)
	r.sockets[id] = sock
	return id
}

func (r *Registry) allocateLocked() uint32 {
	for {
		if r.next == 0 {
			r.next = 1
		}
		id := r.next
		r.next++
		if _, inUse := r.sockets[id]; !inUse {
			return id
		}
	}
}

// Lookup returns the socket bound to id, or nil if none is registered.
func (r *Registry) Lookup(id uint32) LocalSocket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sockets[id]
}

// Remove drops sock from the registry by its local_id.
func (r *Registry) Remove(sock LocalSocket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sockets, sock.LocalID())
}

// EnumerateForTransport returns a snapshot (taken under the registry lock)
// of every socket currently bound to t.
func (r *Registry) EnumerateForTransport(t *Transport) []LocalSocket {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LocalSocket
	for _, s := range r.sockets {
		if s.Transport() == t {
			out = append(out, s)
		}
	}
	return out
}

// Len reports how many sockets are currently registered; used by the admin
// surface and tests, not by the protocol itself.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sockets)
}
