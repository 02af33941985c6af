package shortener

import (
	"context"
	"time"
)

// Store defines the persistence operations for mappings.
//
// Implementations report a missing key as errx.NotFound and backend failures
// as errx.Unavailable. RecordAccess must be atomic with respect to concurrent
// calls for the same key so that no increment is lost.
type Store interface {
	Insert(ctx context.Context, m NewMapping) (Mapping, error)
	Get(ctx context.Context, key uint64) (Mapping, error)
	RecordAccess(ctx context.Context, key uint64, at time.Time) (Mapping, error)
	Delete(ctx context.Context, key uint64) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
