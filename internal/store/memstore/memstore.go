// Package memstore is the in-memory reference Store. It is safe for
// concurrent use and loses its contents when the process exits.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

var errNotFound = errors.New("mapping not found")

// Store keeps mappings in a map guarded by a single mutex. Keys start at 1
// and are never reused, even after deletion.
type Store struct {
	mu       sync.Mutex
	lastKey  uint64
	mappings map[uint64]shortener.Mapping
}

// New returns an empty Store.
func New() *Store {
	return &Store{mappings: make(map[uint64]shortener.Mapping)}
}

var _ shortener.Store = (*Store)(nil)

func (s *Store) Insert(ctx context.Context, nm shortener.NewMapping) (shortener.Mapping, error) {
	const op = "memstore.Insert"
	if err := ctx.Err(); err != nil {
		return shortener.Mapping{}, errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastKey++
	m := shortener.Mapping{
		Key:         s.lastKey,
		OriginalURL: nm.OriginalURL,
		ExpiresAt:   copyTime(nm.ExpiresAt),
		CreatedAt:   nm.CreatedAt,
	}
	s.mappings[m.Key] = m
	return clone(m), nil
}

func (s *Store) Get(ctx context.Context, key uint64) (shortener.Mapping, error) {
	const op = "memstore.Get"
	if err := ctx.Err(); err != nil {
		return shortener.Mapping{}, errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[key]
	if !ok {
		return shortener.Mapping{}, errx.E(op, errx.NotFound, errNotFound)
	}
	return clone(m), nil
}

func (s *Store) RecordAccess(ctx context.Context, key uint64, at time.Time) (shortener.Mapping, error) {
	const op = "memstore.RecordAccess"
	if err := ctx.Err(); err != nil {
		return shortener.Mapping{}, errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[key]
	if !ok {
		return shortener.Mapping{}, errx.E(op, errx.NotFound, errNotFound)
	}
	m.AccessCount++
	m.LastAccessedAt = &at
	s.mappings[key] = m
	return clone(m), nil
}

func (s *Store) Delete(ctx context.Context, key uint64) error {
	const op = "memstore.Delete"
	if err := ctx.Err(); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mappings[key]; !ok {
		return errx.E(op, errx.NotFound, errNotFound)
	}
	delete(s.mappings, key)
	return nil
}

// DeleteExpiredBefore removes every mapping whose expiry is strictly before cutoff.
func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "memstore.DeleteExpiredBefore"
	if err := ctx.Err(); err != nil {
		return 0, errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, m := range s.mappings {
		if m.ExpiresAt != nil && m.ExpiresAt.Before(cutoff) {
			delete(s.mappings, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored mappings, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mappings)
}

func clone(m shortener.Mapping) shortener.Mapping {
	m.ExpiresAt = copyTime(m.ExpiresAt)
	m.LastAccessedAt = copyTime(m.LastAccessedAt)
	return m
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
