package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type UrlMapping struct {
	ID             int64
	OriginalUrl    string
	AccessCount    int64
	LastAccessedAt pgtype.Timestamptz
	ExpiresAt      pgtype.Timestamptz
	CreatedAt      pgtype.Timestamptz
}

const mappingColumns = `id, original_url, access_count, last_accessed_at, expires_at, created_at`

func scanMapping(row interface{ Scan(...any) error }) (UrlMapping, error) {
	var i UrlMapping
	err := row.Scan(
		&i.ID,
		&i.OriginalUrl,
		&i.AccessCount,
		&i.LastAccessedAt,
		&i.ExpiresAt,
		&i.CreatedAt,
	)
	return i, err
}

const createMapping = `-- name: CreateMapping :one
INSERT INTO url_mappings (original_url, expires_at, created_at)
VALUES ($1, $2, $3)
RETURNING ` + mappingColumns

type CreateMappingParams struct {
	OriginalUrl string
	ExpiresAt   pgtype.Timestamptz
	CreatedAt   pgtype.Timestamptz
}

func (q *Queries) CreateMapping(ctx context.Context, arg CreateMappingParams) (UrlMapping, error) {
	row := q.db.QueryRow(ctx, createMapping, arg.OriginalUrl, arg.ExpiresAt, arg.CreatedAt)
	return scanMapping(row)
}

const getMapping = `-- name: GetMapping :one
SELECT ` + mappingColumns + `
FROM url_mappings
WHERE id = $1`

func (q *Queries) GetMapping(ctx context.Context, id int64) (UrlMapping, error) {
	row := q.db.QueryRow(ctx, getMapping, id)
	return scanMapping(row)
}

const trackMappingAccess = `-- name: TrackMappingAccess :one
UPDATE url_mappings
SET access_count     = access_count + 1,
    last_accessed_at = $2
WHERE id = $1
RETURNING ` + mappingColumns

type TrackMappingAccessParams struct {
	ID             int64
	LastAccessedAt pgtype.Timestamptz
}

func (q *Queries) TrackMappingAccess(ctx context.Context, arg TrackMappingAccessParams) (UrlMapping, error) {
	row := q.db.QueryRow(ctx, trackMappingAccess, arg.ID, arg.LastAccessedAt)
	return scanMapping(row)
}

const deleteMapping = `-- name: DeleteMapping :execrows
DELETE FROM url_mappings
WHERE id = $1`

func (q *Queries) DeleteMapping(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.Exec(ctx, deleteMapping, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteExpiredMappings = `-- name: DeleteExpiredMappings :execrows
DELETE FROM url_mappings
WHERE expires_at IS NOT NULL
  AND expires_at < $1`

func (q *Queries) DeleteExpiredMappings(ctx context.Context, cutoff pgtype.Timestamptz) (int64, error) {
	result, err := q.db.Exec(ctx, deleteExpiredMappings, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
