package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"racepass/internal/vc/models"
	"racepass/pkg/platform/sentinel"
)

// PostgresStore persists credential records in the credentials table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, rec models.CredentialRecord) error {
	const query = `
		INSERT INTO credentials (jti, issuer_did, subject_did, token, status, issued_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		rec.JTI, rec.IssuerDID, rec.SubjectDID, rec.Token,
		string(rec.Status), rec.IssuedAt, rec.ExpiresAt, rec.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByJTI(ctx context.Context, jti string) (*models.CredentialRecord, error) {
	const query = `
		SELECT jti, issuer_did, subject_did, token, status, issued_at, expires_at, created_at
		FROM credentials
		WHERE jti = $1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, jti))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, jti string) error {
	const query = `
		UPDATE credentials
		SET status = $2
		WHERE jti = $1`

	res, err := s.db.ExecContext(ctx, query, jti, string(models.StatusRevoked))
	if err != nil {
		return fmt.Errorf("revoking credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoking credential: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const query = `SELECT status FROM credentials WHERE jti = $1`

	var status string
	err := s.db.QueryRowContext(ctx, query, jti).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, sentinel.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("loading credential status: %w", err)
	}
	return models.Status(status) == models.StatusRevoked, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.CredentialRecord, error) {
	const query = `
		SELECT jti, issuer_did, subject_did, token, status, issued_at, expires_at, created_at
		FROM credentials
		ORDER BY created_at, jti`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []models.CredentialRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("listing credentials: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.CredentialRecord, error) {
	var rec models.CredentialRecord
	var status string
	err := row.Scan(
		&rec.JTI, &rec.IssuerDID, &rec.SubjectDID, &rec.Token,
		&status, &rec.IssuedAt, &rec.ExpiresAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = models.Status(status)
	return &rec, nil
}
