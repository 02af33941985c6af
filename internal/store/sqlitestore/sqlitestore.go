// Package sqlitestore implements shortener.Store on SQLite through GORM.
// It is intended for single-node deployments and local development.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

var errNotFound = errors.New("mapping not found")

// mappingRecord is the row layout. Times are unix microseconds so that
// range comparisons are plain integer comparisons.
type mappingRecord struct {
	ID          int64  `gorm:"primaryKey"`
	OriginalURL string `gorm:"column:original_url;not null"`
	AccessCount int64  `gorm:"column:access_count;not null;default:0"`
	LastAccess  *int64 `gorm:"column:last_accessed_at"`
	Expires     *int64 `gorm:"column:expires_at;index"`
	Created     int64  `gorm:"column:created_at;not null"`
}

func (mappingRecord) TableName() string { return "url_mappings" }

// Open opens the database at path and applies the schema. The pool is
// limited to one connection since SQLite serializes writers anyway.
func Open(path string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the url_mappings table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&mappingRecord{}); err != nil {
		return fmt.Errorf("migrate url_mappings: %w", err)
	}
	return nil
}

type store struct {
	db *gorm.DB
}

// New returns a Store backed by db. The schema must already exist.
func New(db *gorm.DB) shortener.Store {
	return &store{db: db}
}

func micros(t time.Time) int64 { return t.UnixMicro() }

func optionalMicros(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := micros(*t)
	return &v
}

func fromMicros(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.UnixMicro(*v).UTC()
	return &t
}

func toDomainMapping(r mappingRecord) shortener.Mapping {
	return shortener.Mapping{
		Key:            uint64(r.ID),
		OriginalURL:    r.OriginalURL,
		AccessCount:    r.AccessCount,
		LastAccessedAt: fromMicros(r.LastAccess),
		ExpiresAt:      fromMicros(r.Expires),
		CreatedAt:      time.UnixMicro(r.Created).UTC(),
	}
}

func toID(op string, key uint64) (int64, error) {
	if key > math.MaxInt64 {
		return 0, errx.E(op, errx.NotFound, errNotFound)
	}
	return int64(key), nil
}

func mapStoreError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errx.E(op, errx.NotFound, err)
	}
	return errx.E(op, errx.Unavailable, err)
}

func (s *store) Insert(ctx context.Context, nm shortener.NewMapping) (shortener.Mapping, error) {
	const op = "sqlitestore.Insert"

	rec := mappingRecord{
		OriginalURL: nm.OriginalURL,
		Expires:     optionalMicros(nm.ExpiresAt),
		Created:     micros(nm.CreatedAt),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}
	return toDomainMapping(rec), nil
}

func (s *store) Get(ctx context.Context, key uint64) (shortener.Mapping, error) {
	const op = "sqlitestore.Get"

	id, err := toID(op, key)
	if err != nil {
		return shortener.Mapping{}, err
	}

	var rec mappingRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}
	return toDomainMapping(rec), nil
}

func (s *store) RecordAccess(ctx context.Context, key uint64, at time.Time) (shortener.Mapping, error) {
	const op = "sqlitestore.RecordAccess"

	id, err := toID(op, key)
	if err != nil {
		return shortener.Mapping{}, err
	}

	var rec mappingRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&mappingRecord{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"access_count":     gorm.Expr("access_count + ?", 1),
				"last_accessed_at": micros(at),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&rec, id).Error
	})
	if err != nil {
		return shortener.Mapping{}, mapStoreError(op, err)
	}
	return toDomainMapping(rec), nil
}

func (s *store) Delete(ctx context.Context, key uint64) error {
	const op = "sqlitestore.Delete"

	id, err := toID(op, key)
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Delete(&mappingRecord{}, id)
	if res.Error != nil {
		return mapStoreError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return errx.E(op, errx.NotFound, errNotFound)
	}
	return nil
}

func (s *store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "sqlitestore.DeleteExpiredBefore"

	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", micros(cutoff)).
		Delete(&mappingRecord{})
	if res.Error != nil {
		return 0, mapStoreError(op, res.Error)
	}
	return res.RowsAffected, nil
}
