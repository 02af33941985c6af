// Package storetest holds the behavioural suite every shortener.Store
// implementation must pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

// Factory returns an empty store. Cleanup should be registered with t.Cleanup.
type Factory func(t *testing.T) shortener.Store

// precision absorbs backends that persist timestamps at microsecond resolution.
const precision = time.Millisecond

// base is a fixed reference time so results do not depend on the wall clock.
var base = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("insert assigns increasing keys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var prev uint64
		for i := range 5 {
			m, err := s.Insert(ctx, shortener.NewMapping{OriginalURL: "https://example.com", CreatedAt: base})
			require.NoError(t, err)
			if i > 0 {
				assert.Greater(t, m.Key, prev, "keys must increase")
			}
			prev = m.Key
		}
	})

	t.Run("insert persists fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		exp := base.Add(24 * time.Hour)
		created, err := s.Insert(ctx, shortener.NewMapping{
			OriginalURL: "https://example.com/some/long/path?q=1",
			ExpiresAt:   &exp,
			CreatedAt:   base,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), created.AccessCount)
		assert.Nil(t, created.LastAccessedAt)

		got, err := s.Get(ctx, created.Key)
		require.NoError(t, err)
		assert.Equal(t, created.Key, got.Key)
		assert.Equal(t, "https://example.com/some/long/path?q=1", got.OriginalURL)
		assert.Equal(t, int64(0), got.AccessCount)
		assert.Nil(t, got.LastAccessedAt)
		require.NotNil(t, got.ExpiresAt)
		assert.WithinDuration(t, exp, *got.ExpiresAt, precision)
		assert.WithinDuration(t, base, got.CreatedAt, precision)
	})

	t.Run("insert without expiry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Insert(ctx, shortener.NewMapping{OriginalURL: "https://example.com", CreatedAt: base})
		require.NoError(t, err)

		got, err := s.Get(ctx, created.Key)
		require.NoError(t, err)
		assert.Nil(t, got.ExpiresAt)
	})

	t.Run("get missing key is NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, key := range []uint64{0, 42, math.MaxInt64, math.MaxUint64} {
			_, err := s.Get(ctx, key)
			require.Error(t, err)
			assert.Equal(t, errx.NotFound, errx.KindOf(err), "key %d", key)
		}
	})

	t.Run("record access increments and stamps", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Insert(ctx, shortener.NewMapping{OriginalURL: "https://example.com", CreatedAt: base})
		require.NoError(t, err)

		var last time.Time
		for i := 1; i <= 3; i++ {
			last = base.Add(time.Duration(i) * time.Minute)
			m, err := s.RecordAccess(ctx, created.Key, last)
			require.NoError(t, err)
			assert.Equal(t, int64(i), m.AccessCount)
			assert.Equal(t, "https://example.com", m.OriginalURL)
		}

		got, err := s.Get(ctx, created.Key)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.AccessCount)
		require.NotNil(t, got.LastAccessedAt)
		assert.WithinDuration(t, last, *got.LastAccessedAt, precision)
	})

	t.Run("record access on missing key is NotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.RecordAccess(context.Background(), 9999, base)
		require.Error(t, err)
		assert.Equal(t, errx.NotFound, errx.KindOf(err))
	})

	t.Run("concurrent record access loses no updates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Insert(ctx, shortener.NewMapping{OriginalURL: "https://example.com", CreatedAt: base})
		require.NoError(t, err)

		const workers, perWorker = 8, 25
		var g errgroup.Group
		for range workers {
			g.Go(func() error {
				for range perWorker {
					if _, err := s.RecordAccess(ctx, created.Key, base); err != nil {
						return err
					}
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		got, err := s.Get(ctx, created.Key)
		require.NoError(t, err)
		assert.Equal(t, int64(workers*perWorker), got.AccessCount)
	})

	t.Run("delete is permanent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Insert(ctx, shortener.NewMapping{OriginalURL: "https://example.com", CreatedAt: base})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, created.Key))

		_, err = s.Get(ctx, created.Key)
		assert.Equal(t, errx.NotFound, errx.KindOf(err))

		err = s.Delete(ctx, created.Key)
		require.Error(t, err)
		assert.Equal(t, errx.NotFound, errx.KindOf(err))
	})

	t.Run("keys are not reused after delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.Insert(ctx, shortener.NewMapping{OriginalURL: "https://a.example", CreatedAt: base})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, first.Key))

		second, err := s.Insert(ctx, shortener.NewMapping{OriginalURL: "https://b.example", CreatedAt: base})
		require.NoError(t, err)
		assert.Greater(t, second.Key, first.Key)
	})

	t.Run("delete expired before removes only strictly older expiries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		insert := func(exp *time.Time) uint64 {
			m, err := s.Insert(ctx, shortener.NewMapping{OriginalURL: "https://example.com", ExpiresAt: exp, CreatedAt: base.Add(-48 * time.Hour)})
			require.NoError(t, err)
			return m.Key
		}

		expired := insert(ptr(base.Add(-time.Hour)))
		alsoExpired := insert(ptr(base.Add(-time.Second)))
		boundary := insert(ptr(base))
		future := insert(ptr(base.Add(time.Hour)))
		permanent := insert(nil)

		n, err := s.DeleteExpiredBefore(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		for _, key := range []uint64{expired, alsoExpired} {
			_, err := s.Get(ctx, key)
			assert.Equal(t, errx.NotFound, errx.KindOf(err), "key %d should be swept", key)
		}
		for _, key := range []uint64{boundary, future, permanent} {
			_, err := s.Get(ctx, key)
			assert.NoError(t, err, "key %d should survive", key)
		}

		n, err = s.DeleteExpiredBefore(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n, "second sweep has nothing to do")
	})
}
