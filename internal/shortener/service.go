package shortener

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/sundayezeilo/shortlink/codec"
	"github.com/sundayezeilo/shortlink/internal/errx"
)

const (
	// MaxTTLHours bounds a TTL to roughly a century so expiry arithmetic cannot overflow.
	MaxTTLHours = 876_000
)

var (
	errUnknownCode = errors.New("no mapping for short code")
	errExpired     = errors.New("mapping has expired")
)

// Service defines the lifecycle operations on mappings.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (Created, error)
	Resolve(ctx context.Context, code string) (string, error)
	Stats(ctx context.Context, code string) (Stats, error)
	Delete(ctx context.Context, code string) error
}

// service implements the Service interface. It holds no mutable state;
// consistency is delegated to the Store.
type service struct {
	store           Store
	defaultTTLHours int
	now             func() time.Time
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	DefaultTTLHours int              // applied when a create request has no TTL; 0 means never expire
	Clock           func() time.Time // defaults to time.Now
}

// NewService creates a new service instance.
func NewService(store Store, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	ttl := config.DefaultTTLHours
	if ttl < 0 || ttl > MaxTTLHours {
		ttl = 0
	}

	return &service{
		store:           store,
		defaultTTLHours: ttl,
		now:             clock,
	}
}

// Create persists a new mapping and returns its short code.
func (s *service) Create(ctx context.Context, req CreateRequest) (Created, error) {
	const op = "shortener.service.Create"

	if err := ValidateURL(req.OriginalURL); err != nil {
		return Created{}, errx.E(op, errx.Invalid, err)
	}

	ttl := s.defaultTTLHours
	if req.TTLHours != nil {
		ttl = *req.TTLHours
	}
	if err := ValidateTTL(ttl); err != nil {
		return Created{}, errx.E(op, errx.Invalid, err)
	}

	now := s.now()
	var expiresAt *time.Time
	if ttl > 0 {
		t := now.Add(time.Duration(ttl) * time.Hour)
		expiresAt = &t
	}

	m, err := s.store.Insert(ctx, NewMapping{
		OriginalURL: req.OriginalURL,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	})
	if err != nil {
		return Created{}, errx.Wrap(op, err)
	}

	return Created{
		ShortCode:   codec.Encode(m.Key),
		OriginalURL: m.OriginalURL,
		ExpiresAt:   m.ExpiresAt,
	}, nil
}

// Resolve returns the original URL for code and records the access.
// An expired mapping yields errx.Gone and its statistics are left untouched.
func (s *service) Resolve(ctx context.Context, code string) (string, error) {
	const op = "shortener.service.Resolve"

	key, err := decodeKey(op, code)
	if err != nil {
		return "", err
	}

	m, err := s.store.Get(ctx, key)
	if err != nil {
		return "", errx.Wrap(op, err)
	}

	now := s.now()
	if m.ExpiredAt(now) {
		return "", errx.E(op, errx.Gone, errExpired)
	}

	m, err = s.store.RecordAccess(ctx, key, now)
	if err != nil {
		return "", errx.Wrap(op, err)
	}
	return m.OriginalURL, nil
}

// Stats returns the mapping's statistics without modifying them. Expired
// mappings remain visible here until they are swept.
func (s *service) Stats(ctx context.Context, code string) (Stats, error) {
	const op = "shortener.service.Stats"

	key, err := decodeKey(op, code)
	if err != nil {
		return Stats{}, err
	}

	m, err := s.store.Get(ctx, key)
	if err != nil {
		return Stats{}, errx.Wrap(op, err)
	}

	return Stats{
		ShortCode:      codec.Encode(m.Key),
		OriginalURL:    m.OriginalURL,
		AccessCount:    m.AccessCount,
		LastAccessedAt: m.LastAccessedAt,
		ExpiresAt:      m.ExpiresAt,
		IsExpired:      m.ExpiredAt(s.now()),
	}, nil
}

// Delete removes the mapping. Deleting a missing mapping, including one that
// was already deleted, yields errx.NotFound.
func (s *service) Delete(ctx context.Context, code string) error {
	const op = "shortener.service.Delete"

	key, err := decodeKey(op, code)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return errx.Wrap(op, err)
	}
	return nil
}

// decodeKey maps a malformed code to NotFound so callers cannot tell it
// apart from an unknown one.
func decodeKey(op, code string) (uint64, error) {
	key, err := codec.Decode(code)
	if err != nil {
		return 0, errx.E(op, errx.NotFound, errUnknownCode)
	}
	return key, nil
}

// ValidateURL checks that rawURL is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid url format")
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must include scheme (http or https)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}
	if parsedURL.Host == "" {
		return errors.New("url must include host")
	}
	return nil
}

// ValidateTTL checks a TTL in hours.
func ValidateTTL(hours int) error {
	if hours < 0 {
		return errors.New("ttl_hours cannot be negative")
	}
	if hours > MaxTTLHours {
		return errors.New("ttl_hours too large (maximum 876000)")
	}
	return nil
}
