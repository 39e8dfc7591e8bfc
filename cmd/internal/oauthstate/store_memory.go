package oauthstate

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev/test fallback used when no database is configured.
type InMemoryStore struct {
	mu   sync.Mutex
	rows map[string]Record
}

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string]Record)}
}

func (s *InMemoryStore) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(rec.KeyHash) == "" || rec.ExpiresAt.IsZero() {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[rec.KeyHash]; ok {
		return ErrInvalidInput
	}
	s.rows[rec.KeyHash] = rec
	return nil
}

func (s *InMemoryStore) Take(ctx context.Context, keyHash string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[keyHash]
	if !ok {
		return Record{}, ErrInvalidState
	}
	delete(s.rows, keyHash)
	return rec, nil
}

func (s *InMemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.rows {
		if rec.ExpiresAt.Before(now) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
