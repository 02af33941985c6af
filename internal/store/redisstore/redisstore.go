// Package redisstore implements shortener.Store on Redis.
//
// Layout, all under a configurable prefix:
//
//	{prefix}seq          INCR counter that hands out keys
//	{prefix}m:{key}      hash with fields url, count, last, exp, created
//	{prefix}expiries     sorted set of keys scored by expiry (unix micros)
//
// Timestamps are stored as unix microseconds.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

const (
	DefaultPrefix = "shortlink:"

	fieldURL     = "url"
	fieldCount   = "count"
	fieldLast    = "last"
	fieldExpires = "exp"
	fieldCreated = "created"

	sweepBatch = 500
)

var errNotFound = errors.New("mapping not found")

// recordAccess bumps the counter and stamps the access time in one step.
// A nil reply means the hash does not exist.
var recordAccess = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'last', ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

// Store keeps mappings in Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// New returns a Store using client. An empty prefix selects DefaultPrefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

var _ shortener.Store = (*Store)(nil)

func (s *Store) seqKey() string      { return s.prefix + "seq" }
func (s *Store) expiriesKey() string { return s.prefix + "expiries" }
func (s *Store) mappingKey(key uint64) string {
	return s.prefix + "m:" + strconv.FormatUint(key, 10)
}

func micros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func mapStoreError(op string, err error) error {
	if errors.Is(err, redis.Nil) {
		return errx.E(op, errx.NotFound, err)
	}
	return errx.E(op, errx.Unavailable, err)
}

func (s *Store) Insert(ctx context.Context, nm shortener.NewMapping) (shortener.Mapping, error) {
	const op = "redisstore.Insert"

	key, err := s.client.Incr(ctx, s.seqKey()).Uint64()
	if err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}

	fields := map[string]any{
		fieldURL:     nm.OriginalURL,
		fieldCount:   0,
		fieldCreated: micros(nm.CreatedAt),
	}
	if nm.ExpiresAt != nil {
		fields[fieldExpires] = micros(*nm.ExpiresAt)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.mappingKey(key), fields)
		if nm.ExpiresAt != nil {
			pipe.ZAdd(ctx, s.expiriesKey(), redis.Z{
				Score:  float64(micros(*nm.ExpiresAt)),
				Member: strconv.FormatUint(key, 10),
			})
		}
		return nil
	})
	if err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}

	m := shortener.Mapping{
		Key:         key,
		OriginalURL: nm.OriginalURL,
		CreatedAt:   fromMicros(micros(nm.CreatedAt)),
	}
	if nm.ExpiresAt != nil {
		exp := fromMicros(micros(*nm.ExpiresAt))
		m.ExpiresAt = &exp
	}
	return m, nil
}

func (s *Store) Get(ctx context.Context, key uint64) (shortener.Mapping, error) {
	const op = "redisstore.Get"

	fields, err := s.client.HGetAll(ctx, s.mappingKey(key)).Result()
	if err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}
	if len(fields) == 0 {
		return shortener.Mapping{}, errx.E(op, errx.NotFound, errNotFound)
	}

	m, err := decodeMapping(key, fields)
	if err != nil {
		return shortener.Mapping{}, errx.E(op, errx.Internal, err)
	}
	return m, nil
}

func (s *Store) RecordAccess(ctx context.Context, key uint64, at time.Time) (shortener.Mapping, error) {
	const op = "redisstore.RecordAccess"

	reply, err := recordAccess.Run(ctx, s.client, []string{s.mappingKey(key)}, micros(at)).Slice()
	if err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}

	fields, err := pairsToMap(reply)
	if err != nil {
		return shortener.Mapping{}, errx.E(op, errx.Internal, err)
	}
	m, err := decodeMapping(key, fields)
	if err != nil {
		return shortener.Mapping{}, errx.E(op, errx.Internal, err)
	}
	return m, nil
}

func (s *Store) Delete(ctx context.Context, key uint64) error {
	const op = "redisstore.Delete"

	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.mappingKey(key))
		pipe.ZRem(ctx, s.expiriesKey(), strconv.FormatUint(key, 10))
		return nil
	})
	if err != nil {
		return mapStoreError(op, err)
	}
	if del.Val() == 0 {
		return errx.E(op, errx.NotFound, errNotFound)
	}
	return nil
}

// DeleteExpiredBefore removes mappings whose expiry is strictly before cutoff,
// in batches read from the expiries index.
func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "redisstore.DeleteExpiredBefore"

	var deleted int64
	for {
		members, err := s.client.ZRangeByScore(ctx, s.expiriesKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   "(" + strconv.FormatInt(micros(cutoff), 10),
			Count: sweepBatch,
		}).Result()
		if err != nil {
			return deleted, mapStoreError(op, err)
		}
		if len(members) == 0 {
			return deleted, nil
		}

		dels := make([]*redis.IntCmd, 0, len(members))
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, member := range members {
				dels = append(dels, pipe.Del(ctx, s.prefix+"m:"+member))
			}
			args := make([]any, len(members))
			for i, member := range members {
				args[i] = member
			}
			pipe.ZRem(ctx, s.expiriesKey(), args...)
			return nil
		})
		if err != nil {
			return deleted, mapStoreError(op, err)
		}
		for _, d := range dels {
			deleted += d.Val()
		}
	}
}

func decodeMapping(key uint64, fields map[string]string) (shortener.Mapping, error) {
	m := shortener.Mapping{
		Key:         key,
		OriginalURL: fields[fieldURL],
	}

	count, err := strconv.ParseInt(fields[fieldCount], 10, 64)
	if err != nil {
		return shortener.Mapping{}, fmt.Errorf("field %s: %w", fieldCount, err)
	}
	m.AccessCount = count

	created, err := strconv.ParseInt(fields[fieldCreated], 10, 64)
	if err != nil {
		return shortener.Mapping{}, fmt.Errorf("field %s: %w", fieldCreated, err)
	}
	m.CreatedAt = fromMicros(created)

	if m.LastAccessedAt, err = optionalTime(fields, fieldLast); err != nil {
		return shortener.Mapping{}, err
	}
	if m.ExpiresAt, err = optionalTime(fields, fieldExpires); err != nil {
		return shortener.Mapping{}, err
	}
	return m, nil
}

func optionalTime(fields map[string]string, name string) (*time.Time, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}
	t := fromMicros(v)
	return &t, nil
}

// pairsToMap converts a flat HGETALL reply into a map.
func pairsToMap(reply []any) (map[string]string, error) {
	if len(reply)%2 != 0 {
		return nil, fmt.Errorf("odd HGETALL reply length %d", len(reply))
	}
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i < len(reply); i += 2 {
		k, ok1 := reply[i].(string)
		v, ok2 := reply[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("unexpected HGETALL reply element types %T, %T", reply[i], reply[i+1])
		}
		fields[k] = v
	}
	return fields, nil
}
