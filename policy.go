package abd

// Policy gates which services the dispatcher will start, independent of
// auth. Grounded on the teacher's typed-sentinel-error access gating in
// krd/control_server.go (ErrNotPaired short-circuiting a handler before it
// touches the enclave).
type Policy struct {
	locked   bool
	allowed  map[string]struct{}
}

// NewPolicy builds an always-allow policy. Call Lock to switch into
// restricted ("locked" / trade-in) mode.
func NewPolicy() *Policy {
	return &Policy{}
}

// Lock restricts the dispatcher to exactly the services named in allow;
// everything else is refused with a PolicyError. Passing no names still
// locks the daemon down to nothing, which is the trade-in-mode default.
func (p *Policy) Lock(allow ...string) {
	p.locked = true
	p.allowed = make(map[string]struct{}, len(allow))
	for _, name := range allow {
		p.allowed[name] = struct{}{}
	}
}

// Unlock returns the policy to always-allow.
func (p *Policy) Unlock() {
	p.locked = false
	p.allowed = nil
}

// Allows reports whether service name may be started under the current
// policy.
func (p *Policy) Allows(name string) bool {
	if !p.locked {
		return true
	}
	_, ok := p.allowed[name]
	return ok
}
