// Package revocation maintains the credential revocation registry.
//
// The credential store's status column is the canonical revocation
// state. The store-backed registry delegates to it directly; the Redis
// cache layers a positive-hit cache on top for distributed
// deployments, writing through on revoke so a revoked credential is
// never served as valid from a stale cache entry.
package revocation

import (
	"context"

	"racepass/internal/vc/store"
)

// Registry answers revocation questions about issued credentials.
type Registry interface {
	// Revoke marks the credential revoked. Unknown jti fails with
	// sentinel.ErrNotFound; repeated revocation is a no-op success.
	Revoke(ctx context.Context, jti string) error

	// IsRevoked reports the credential's revocation status, or
	// sentinel.ErrNotFound for an unknown jti.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// StoreRegistry is the canonical registry backed by the credential
// ledger.
type StoreRegistry struct {
	store store.Store
}

// NewStoreRegistry builds a registry over the credential store.
func NewStoreRegistry(s store.Store) *StoreRegistry {
	return &StoreRegistry{store: s}
}

func (r *StoreRegistry) Revoke(ctx context.Context, jti string) error {
	return r.store.Revoke(ctx, jti)
}

func (r *StoreRegistry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return r.store.IsRevoked(ctx, jti)
}
