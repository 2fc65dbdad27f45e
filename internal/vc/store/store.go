// Package store persists issued credential records.
package store

import (
	"context"

	"racepass/internal/vc/models"
)

// Store is the credential ledger. The status column on the record is
// the canonical revocation state; the revocation registry reads and
// writes it through this interface.
type Store interface {
	// Save inserts a freshly issued record. Duplicate jti fails with
	// sentinel.ErrConflict.
	Save(ctx context.Context, rec models.CredentialRecord) error

	// FindByJTI loads one record or sentinel.ErrNotFound.
	FindByJTI(ctx context.Context, jti string) (*models.CredentialRecord, error)

	// Revoke flips the record's status to revoked. Unknown jti fails
	// with sentinel.ErrNotFound; revoking an already revoked record is
	// a no-op success.
	Revoke(ctx context.Context, jti string) error

	// IsRevoked reports the revocation status of a known record, or
	// sentinel.ErrNotFound for an unknown jti.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// List returns every stored record ordered by creation time.
	List(ctx context.Context) ([]models.CredentialRecord, error)
}
