package models

import "time"

// CacheEntry stores a serialized value until an absolute expiry
type CacheEntry struct {
	Key       string    `json:"key" badgerhold:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at" badgerhold:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the entry is no longer readable at now
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
