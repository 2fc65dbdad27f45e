package nonce

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"racepass/pkg/platform/sentinel"
)

// PostgresStore persists nonces in the nonces table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, n Nonce) error {
	const query = `
		INSERT INTO nonces (value, issued_at, expires_at)
		VALUES ($1, $2, $3)`

	if _, err := s.db.ExecContext(ctx, query, n.Value, n.IssuedAt, n.ExpiresAt); err != nil {
		return fmt.Errorf("inserting nonce: %w", err)
	}
	return nil
}

// Consume claims the nonce with a conditional UPDATE. The guarded
// update is the atomicity point: only one caller can flip consumed_at
// from NULL. On a miss a follow-up SELECT classifies the failure.
func (s *PostgresStore) Consume(ctx context.Context, value string, now time.Time) error {
	const claim = `
		UPDATE nonces
		SET consumed_at = $2
		WHERE value = $1
		  AND consumed_at IS NULL
		  AND expires_at > $2`

	res, err := s.db.ExecContext(ctx, claim, value, now)
	if err != nil {
		return fmt.Errorf("consuming nonce: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consuming nonce: %w", err)
	}
	if affected == 1 {
		return nil
	}

	const classify = `
		SELECT consumed_at, expires_at
		FROM nonces
		WHERE value = $1`

	var consumedAt sql.NullTime
	var expiresAt time.Time
	err = s.db.QueryRowContext(ctx, classify, value).Scan(&consumedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("classifying nonce: %w", err)
	}
	if consumedAt.Valid {
		return sentinel.ErrAlreadyUsed
	}
	return sentinel.ErrExpired
}

func (s *PostgresStore) List(ctx context.Context) ([]Nonce, error) {
	const query = `
		SELECT value, issued_at, expires_at, consumed_at
		FROM nonces
		ORDER BY issued_at, value`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing nonces: %w", err)
	}
	defer rows.Close()

	var out []Nonce
	for rows.Next() {
		var n Nonce
		var consumedAt sql.NullTime
		if err := rows.Scan(&n.Value, &n.IssuedAt, &n.ExpiresAt, &consumedAt); err != nil {
			return nil, fmt.Errorf("scanning nonce: %w", err)
		}
		if consumedAt.Valid {
			t := consumedAt.Time
			n.ConsumedAt = &t
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing nonces: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM nonces WHERE expires_at <= $1`

	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired nonces: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting expired nonces: %w", err)
	}
	return removed, nil
}
