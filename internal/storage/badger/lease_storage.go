package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

// LeaseStorage is a named TTL lock held in a single badger row.
// Acquire and Release run inside one transaction so concurrent callers
// in the same process see a consistent holder.
type LeaseStorage struct {
	db     *BadgerDB
	name   string
	logger arbor.ILogger
	now    func() time.Time
}

// NewLeaseStorage creates a lease named name
func NewLeaseStorage(db *BadgerDB, name string, logger arbor.ILogger) *LeaseStorage {
	return &LeaseStorage{
		db:     db,
		name:   name,
		logger: logger,
		now:    time.Now,
	}
}

func (s *LeaseStorage) key() string {
	return "lease:" + s.name
}

// Acquire grants the lease unless an unexpired one is held
func (s *LeaseStorage) Acquire(ctx context.Context, ttl time.Duration) (*models.Lease, error) {
	now := s.now()
	granted := &models.Lease{
		Name:       s.name,
		Token:      common.NewLeaseToken(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		var current models.Lease
		err := s.db.Store().TxGet(tx, s.key(), &current)
		if err != nil && err != badgerhold.ErrNotFound {
			return err
		}
		if err == nil && !current.IsExpired(now) {
			return interfaces.ErrLeaseHeld
		}
		return s.db.Store().TxUpsert(tx, s.key(), granted)
	})
	if err == interfaces.ErrLeaseHeld {
		return nil, err
	}
	if err == badger.ErrConflict {
		return nil, interfaces.ErrLeaseHeld
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", s.name, err)
	}

	s.logger.Debug().
		Str("lease", s.name).
		Str("expires_at", granted.ExpiresAt.Format(time.RFC3339)).
		Msg("Lease acquired")
	return granted, nil
}

// Release frees the lease when the stored token still matches
func (s *LeaseStorage) Release(ctx context.Context, lease *models.Lease) error {
	if lease == nil {
		return nil
	}

	return s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		var current models.Lease
		err := s.db.Store().TxGet(tx, s.key(), &current)
		if err == badgerhold.ErrNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read lease %s: %w", s.name, err)
		}
		if current.Token != lease.Token {
			s.logger.Debug().Str("lease", s.name).Msg("Lease already taken over, release skipped")
			return nil
		}
		return s.db.Store().TxDelete(tx, s.key(), &models.Lease{})
	})
}

// ForceRelease removes the lease regardless of holder
func (s *LeaseStorage) ForceRelease(ctx context.Context) error {
	err := s.db.Store().Delete(s.key(), &models.Lease{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to force release lease %s: %w", s.name, err)
	}
	return nil
}

// Current returns the unexpired lease or nil
func (s *LeaseStorage) Current(ctx context.Context) (*models.Lease, error) {
	var current models.Lease
	err := s.db.Store().Get(s.key(), &current)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lease %s: %w", s.name, err)
	}
	if current.IsExpired(s.now()) {
		return nil, nil
	}
	return &current, nil
}
