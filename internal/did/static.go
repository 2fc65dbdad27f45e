package did

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
)

// StaticResolver serves keys from a fixed DID -> key map. It backs methods
// whose real resolution infrastructure lives outside this process (ledger
// lookups for did:ebsi run against a trust registry we only mirror) and
// doubles as the offline fallback and the test resolver.
type StaticResolver struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey

	// fallback, when set, answers for DIDs absent from the map. This mirrors
	// trusting the local issuer key for every identity anchored to this
	// deployment.
	fallback *rsa.PublicKey
}

// StaticOption configures a StaticResolver.
type StaticOption func(*StaticResolver)

// WithFallbackKey answers unknown DIDs with the given key instead of failing.
func WithFallbackKey(key *rsa.PublicKey) StaticOption {
	return func(r *StaticResolver) {
		r.fallback = key
	}
}

// NewStaticResolver builds an empty static resolver.
func NewStaticResolver(opts ...StaticOption) *StaticResolver {
	r := &StaticResolver{keys: make(map[string]*rsa.PublicKey)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers the verification key for a DID.
func (r *StaticResolver) Add(did string, key *rsa.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[did] = key
}

// Resolve returns the registered key, the fallback key, or ErrUnresolvable.
func (r *StaticResolver) Resolve(_ context.Context, did string) (*rsa.PublicKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key, ok := r.keys[did]; ok {
		return key, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("did %q not registered: %w", did, ErrUnresolvable)
}
