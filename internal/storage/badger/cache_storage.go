package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/grantpost/internal/models"
)

// CacheStorage is a TTL key/value cache. Expired entries read as misses
// and are reclaimed lazily on read or by SweepExpired.
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) *CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the value for key, with ok false on a miss or expiry
func (s *CacheStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry models.CacheEntry
	err := s.db.Store().Get(key, &entry)
	if err == badgerhold.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if entry.IsExpired(s.now()) {
		if err := s.db.Store().Delete(key, &models.CacheEntry{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Debug().Err(err).Str("key", key).Msg("Failed to drop expired cache entry")
		}
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Put upserts value under key until now+ttl
func (s *CacheStorage) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	entry := &models.CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.db.Store().Upsert(key, entry); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes key; a missing key is not an error
func (s *CacheStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(key, &models.CacheEntry{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// SweepExpired deletes every expired entry and returns how many were removed
func (s *CacheStorage) SweepExpired(ctx context.Context) (int, error) {
	query := badgerhold.Where("ExpiresAt").Le(s.now())

	count, err := s.db.Store().Count(&models.CacheEntry{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired cache entries: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.db.Store().DeleteMatching(&models.CacheEntry{}, query); err != nil {
		return 0, fmt.Errorf("failed to sweep expired cache entries: %w", err)
	}

	s.logger.Debug().Int("removed", int(count)).Msg("Expired cache entries swept")
	return int(count), nil
}

// Count returns the number of stored entries, expired or not
func (s *CacheStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.CacheEntry{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
