package abd

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/ssh"
)

// Authorizer is the pluggable auth step from SPEC_FULL.md §1/§4.3: the core
// only needs "verify a signature over the token I issued" and "decide
// whether to trust a newly offered public key" — TLS negotiation and
// concrete key storage are the caller's concern.
//
// Grounded on the teacher's krd/ssh_agent.go signature-verification block
// and protocol.go's SSH-wire public key parsing, generalized from "verify
// one cached signer" to "verify against a small authorized-keys list".
type Authorizer struct {
	mu             sync.Mutex
	authorizedKeys []ssh.PublicKey
	acceptUnknown  func(ssh.PublicKey) bool

	// pending maps transport_id -> the 20-byte token most recently issued
	// to it. Bounded by an LRU so a peer that opens many connections and
	// never completes AUTH can't pin unbounded memory — grounded on the
	// teacher's hostAuthCallback LRU of in-flight challenges.
	pending *lru.Cache
}

// NewAuthorizer builds an Authorizer around a starting set of trusted keys.
// acceptUnknown decides whether to trust a key offered via
// AUTH(RSAPUBLICKEY, ...); passing nil rejects every unknown key (the
// out-of-process "ask the user" policy step is left to the caller).
func NewAuthorizer(authorizedKeys []ssh.PublicKey, acceptUnknown func(ssh.PublicKey) bool) (*Authorizer, error) {
	cache, err := lru.New(256)
	if err != nil {
		return nil, err
	}
	return &Authorizer{
		authorizedKeys: authorizedKeys,
		acceptUnknown:  acceptUnknown,
		pending:        cache,
	}, nil
}

func (a *Authorizer) rememberPending(transportID uint64, token []byte) {
	a.pending.Add(transportID, token)
}

func (a *Authorizer) pendingFor(transportID uint64) []byte {
	v, ok := a.pending.Get(transportID)
	if !ok {
		return nil
	}
	return v.([]byte)
}

// VerifySignature checks sig (a wire-marshaled ssh.Signature) against token
// for every currently-authorized key, succeeding if any one matches.
func (a *Authorizer) VerifySignature(token, sig []byte) bool {
	var parsed ssh.Signature
	if err := ssh.Unmarshal(sig, &parsed); err != nil {
		return false
	}

	a.mu.Lock()
	keys := append([]ssh.PublicKey(nil), a.authorizedKeys...)
	a.mu.Unlock()

	for _, key := range keys {
		if key.Verify(token, &parsed) == nil {
			return true
		}
	}
	return false
}

// Offer handles AUTH(RSAPUBLICKEY, ...): parse the SSH-wire key and ask the
// configured policy whether to trust it. On acceptance the key is added to
// the authorized set so future signatures from it verify.
func (a *Authorizer) Offer(transportID uint64, keyWire []byte) bool {
	key, err := ssh.ParsePublicKey(keyWire)
	if err != nil {
		return false
	}
	if a.acceptUnknown == nil || !a.acceptUnknown(key) {
		return false
	}

	a.mu.Lock()
	a.authorizedKeys = append(a.authorizedKeys, key)
	a.mu.Unlock()
	return true
}
