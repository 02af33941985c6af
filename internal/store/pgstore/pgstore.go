// Package pgstore implements shortener.Store on PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sundayezeilo/shortlink/internal/db"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

var errNotFound = errors.New("mapping not found")

// querier is an internal interface that abstracts *db.Queries
type querier interface {
	CreateMapping(ctx context.Context, arg db.CreateMappingParams) (db.UrlMapping, error)
	GetMapping(ctx context.Context, id int64) (db.UrlMapping, error)
	TrackMappingAccess(ctx context.Context, arg db.TrackMappingAccessParams) (db.UrlMapping, error)
	DeleteMapping(ctx context.Context, id int64) (int64, error)
	DeleteExpiredMappings(ctx context.Context, cutoff pgtype.Timestamptz) (int64, error)
}

type store struct {
	q querier
}

// New returns a Store backed by q, usually db.New(pool).
func New(q querier) shortener.Store {
	return &store{q: q}
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func nullableTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return timestamptz(*t)
}

func mustTime(ts pgtype.Timestamptz, field string) (time.Time, error) {
	if !ts.Valid {
		return time.Time{}, fmt.Errorf("%s unexpectedly NULL", field)
	}
	return ts.Time, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func toDomainMapping(x db.UrlMapping) (shortener.Mapping, error) {
	createdAt, err := mustTime(x.CreatedAt, "created_at")
	if err != nil {
		return shortener.Mapping{}, err
	}
	if x.ID < 0 {
		return shortener.Mapping{}, fmt.Errorf("negative id %d", x.ID)
	}

	return shortener.Mapping{
		Key:            uint64(x.ID),
		OriginalURL:    x.OriginalUrl,
		AccessCount:    x.AccessCount,
		LastAccessedAt: timePtr(x.LastAccessedAt),
		ExpiresAt:      timePtr(x.ExpiresAt),
		CreatedAt:      createdAt,
	}, nil
}

// toID converts a key to a BIGINT id. Keys beyond the column range cannot
// exist, so they are reported as not found.
func toID(op string, key uint64) (int64, error) {
	if key > math.MaxInt64 {
		return 0, errx.E(op, errx.NotFound, errNotFound)
	}
	return int64(key), nil
}

func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)
	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

func (s *store) Insert(ctx context.Context, nm shortener.NewMapping) (shortener.Mapping, error) {
	const op = "pgstore.Insert"

	row, err := s.q.CreateMapping(ctx, db.CreateMappingParams{
		OriginalUrl: nm.OriginalURL,
		ExpiresAt:   nullableTimestamptz(nm.ExpiresAt),
		CreatedAt:   timestamptz(nm.CreatedAt),
	})
	if err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}

	m, err := toDomainMapping(row)
	if err != nil {
		return shortener.Mapping{}, errx.E(op, errx.Internal, err)
	}
	return m, nil
}

func (s *store) Get(ctx context.Context, key uint64) (shortener.Mapping, error) {
	const op = "pgstore.Get"

	id, err := toID(op, key)
	if err != nil {
		return shortener.Mapping{}, err
	}

	row, err := s.q.GetMapping(ctx, id)
	if err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}

	m, err := toDomainMapping(row)
	if err != nil {
		return shortener.Mapping{}, errx.E(op, errx.Internal, err)
	}
	return m, nil
}

// RecordAccess increments the counter in a single UPDATE, so concurrent
// calls serialize on the row lock.
func (s *store) RecordAccess(ctx context.Context, key uint64, at time.Time) (shortener.Mapping, error) {
	const op = "pgstore.RecordAccess"

	id, err := toID(op, key)
	if err != nil {
		return shortener.Mapping{}, err
	}

	row, err := s.q.TrackMappingAccess(ctx, db.TrackMappingAccessParams{
		ID:             id,
		LastAccessedAt: timestamptz(at),
	})
	if err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}

	m, err := toDomainMapping(row)
	if err != nil {
		return shortener.Mapping{}, errx.E(op, errx.Internal, err)
	}
	return m, nil
}

func (s *store) Delete(ctx context.Context, key uint64) error {
	const op = "pgstore.Delete"

	id, err := toID(op, key)
	if err != nil {
		return err
	}

	n, err := s.q.DeleteMapping(ctx, id)
	if err != nil {
		return mapStoreError(op, err)
	}
	if n == 0 {
		return errx.E(op, errx.NotFound, errNotFound)
	}
	return nil
}

func (s *store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "pgstore.DeleteExpiredBefore"

	n, err := s.q.DeleteExpiredMappings(ctx, timestamptz(cutoff))
	if err != nil {
		return 0, mapStoreError(op, err)
	}
	return n, nil
}
