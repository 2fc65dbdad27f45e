package nonce

import (
	"context"
	"sort"
	"sync"
	"time"

	"racepass/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for tests and single-node runs.
type MemoryStore struct {
	mu     sync.Mutex
	nonces map[string]Nonce
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nonces: make(map[string]Nonce)}
}

func (s *MemoryStore) Save(_ context.Context, n Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[n.Value] = n
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, value string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nonces[value]
	if !ok {
		return sentinel.ErrNotFound
	}
	if n.ConsumedAt != nil {
		return sentinel.ErrAlreadyUsed
	}
	if n.Expired(now) {
		return sentinel.ErrExpired
	}

	consumed := now
	n.ConsumedAt = &consumed
	s.nonces[value] = n
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for value, n := range s.nonces {
		if n.Expired(now) {
			delete(s.nonces, value)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Nonce, 0, len(s.nonces))
	for _, n := range s.nonces {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}

// Get returns a copy of the stored nonce, for tests.
func (s *MemoryStore) Get(value string) (Nonce, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[value]
	return n, ok
}
