package did

import (
	"context"
	"crypto/rsa"
	"log/slog"
	"sync"
	"time"

	"racepass/pkg/platform/circuit"
)

// ResilientResolver wraps a Resolver with circuit breaker protection and a
// short-lived key cache. When the remote DID host degrades and the circuit
// opens, recently resolved issuers keep verifying from cache instead of
// failing every request; the delegate is still probed so the circuit can
// close again once the host recovers.
type ResilientResolver struct {
	delegate Resolver
	cb       *circuit.Breaker
	cache    *keyCache
	logger   *slog.Logger
}

// ResilientOption configures a ResilientResolver.
type ResilientOption func(*ResilientResolver)

// WithResolverBreaker overrides the default circuit breaker.
func WithResolverBreaker(cb *circuit.Breaker) ResilientOption {
	return func(r *ResilientResolver) {
		if cb != nil {
			r.cb = cb
		}
	}
}

// WithKeyCacheTTL sets how long resolved keys stay usable as fallback.
func WithKeyCacheTTL(ttl time.Duration) ResilientOption {
	return func(r *ResilientResolver) {
		r.cache = newKeyCache(ttl)
	}
}

// NewResilientResolver creates a circuit-breaker-protected resolver around
// delegate. Defaults: 5-minute key cache, open after 5 consecutive failures.
func NewResilientResolver(delegate Resolver, logger *slog.Logger, opts ...ResilientOption) *ResilientResolver {
	r := &ResilientResolver{
		delegate: delegate,
		cb:       circuit.New("did_resolver"),
		cache:    newKeyCache(5 * time.Minute),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve resolves through the delegate, falling back to cached keys when the
// circuit is open or the delegate fails while open.
func (r *ResilientResolver) Resolve(ctx context.Context, did string) (*rsa.PublicKey, error) {
	if r.cb.IsOpen() {
		if key, ok := r.cache.Get(did); ok {
			r.logger.WarnContext(ctx, "circuit open, using cached verification key",
				"did", did,
				"circuit", r.cb.Name(),
			)
			return key, nil
		}
		// No cached key; still probe the delegate so the circuit can close.
	}

	key, err := r.delegate.Resolve(ctx, did)
	if err != nil {
		useFallback, change := r.cb.RecordFailure()
		if change.Opened {
			r.logger.ErrorContext(ctx, "did resolver circuit opened",
				"circuit", r.cb.Name(),
				"error", err,
			)
		}
		if useFallback {
			if cached, ok := r.cache.Get(did); ok {
				r.logger.WarnContext(ctx, "using cached verification key after resolve failure",
					"did", did,
					"circuit", r.cb.Name(),
				)
				return cached, nil
			}
		}
		return nil, err
	}

	if _, change := r.cb.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "did resolver circuit closed",
			"circuit", r.cb.Name(),
		)
	}

	r.cache.Set(did, key)
	return key, nil
}

// keyCache is a TTL cache of resolved verification keys.
type keyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]keyEntry
}

type keyEntry struct {
	key       *rsa.PublicKey
	expiresAt time.Time
}

func newKeyCache(ttl time.Duration) *keyCache {
	return &keyCache{
		ttl:     ttl,
		entries: make(map[string]keyEntry),
	}
}

func (c *keyCache) Get(did string) (*rsa.PublicKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[did]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, did)
		return nil, false
	}
	return e.key, true
}

func (c *keyCache) Set(did string, key *rsa.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[did] = keyEntry{key: key, expiresAt: time.Now().Add(c.ttl)}
}
