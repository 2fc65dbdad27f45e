// Package nonce issues and consumes single-use verification challenges.
//
// A nonce is handed to a verifier ahead of presentation and must be
// consumed exactly once. Consumption is a compare-and-set on the
// backing store so that concurrent presentations of the same challenge
// admit a single winner.
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// valueBytes is the entropy of a challenge before encoding.
const valueBytes = 32

// Nonce is a single-use verification challenge.
type Nonce struct {
	Value      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Expired reports whether the nonce is past its expiry at the given instant.
func (n Nonce) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// Store persists challenges. Implementations must make Consume atomic:
// of any number of concurrent Consume calls for the same value, exactly
// one succeeds and the rest fail with sentinel.ErrAlreadyUsed (or
// sentinel.ErrNotFound / sentinel.ErrExpired as appropriate).
type Store interface {
	// Save persists a freshly issued nonce.
	Save(ctx context.Context, n Nonce) error

	// Consume marks the nonce used. It fails with sentinel.ErrNotFound
	// for unknown values, sentinel.ErrExpired for expired ones and
	// sentinel.ErrAlreadyUsed when another caller won the race.
	Consume(ctx context.Context, value string, now time.Time) error

	// DeleteExpired removes nonces whose expiry is at or before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// List returns the currently stored nonces in issuance order. It
	// backs the admin state dump only.
	List(ctx context.Context) ([]Nonce, error)
}

// NewValue generates a fresh challenge value from crypto/rand.
func NewValue() (string, error) {
	buf := make([]byte, valueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue generates a nonce valid for ttl from now and saves it.
func Issue(ctx context.Context, store Store, now time.Time, ttl time.Duration) (Nonce, error) {
	value, err := NewValue()
	if err != nil {
		return Nonce{}, err
	}
	n := Nonce{
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := store.Save(ctx, n); err != nil {
		return Nonce{}, fmt.Errorf("saving nonce: %w", err)
	}
	return n, nil
}
