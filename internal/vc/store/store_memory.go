package store

import (
	"context"
	"sort"
	"sync"

	"racepass/internal/vc/models"
	"racepass/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for tests and single-node runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.CredentialRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.CredentialRecord)}
}

func (s *MemoryStore) Save(_ context.Context, rec models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.JTI]; exists {
		return sentinel.ErrConflict
	}
	s.records[rec.JTI] = rec
	return nil
}

func (s *MemoryStore) FindByJTI(_ context.Context, jti string) (*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[jti]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jti]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Status = models.StatusRevoked
	s.records[jti] = rec
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[jti]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	return rec.Revoked(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CredentialRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JTI < out[j].JTI
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
