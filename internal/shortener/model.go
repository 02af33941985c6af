package shortener

import "time"

// Mapping is the persisted unit: one original URL under a store-assigned key.
type Mapping struct {
	Key            uint64
	OriginalURL    string
	AccessCount    int64
	LastAccessedAt *time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// ExpiredAt reports whether the mapping is expired at now. A mapping without
// an expiry never expires; otherwise it expires once now is strictly after it.
func (m Mapping) ExpiredAt(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// NewMapping is what the service hands to a Store on create. The store
// assigns the key and starts the access count at zero.
type NewMapping struct {
	OriginalURL string
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// CreateRequest holds the parameters for creating a mapping. A nil TTLHours
// means the configured default applies; zero means the mapping never expires.
type CreateRequest struct {
	OriginalURL string
	TTLHours    *int
}

// Created is the result of a successful create.
type Created struct {
	ShortCode   string
	OriginalURL string
	ExpiresAt   *time.Time
}

// Stats is a read-only view of a mapping.
type Stats struct {
	ShortCode      string
	OriginalURL    string
	AccessCount    int64
	LastAccessedAt *time.Time
	ExpiresAt      *time.Time
	IsExpired      bool
}
