package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/grantpost/internal/models"
)

// ErrLeaseHeld is returned by Lease.Acquire while another holder owns an unexpired lease
var ErrLeaseHeld = errors.New("lease is held by another owner")

// ErrQueueItemNotFound is returned when a queue item does not exist
var ErrQueueItemNotFound = errors.New("queue item not found")

// DetailCache is a key/value store with per-entry TTL.
// A read of an expired entry is a miss.
type DetailCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	SweepExpired(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

// QueueStorage is the durable processing queue
type QueueStorage interface {
	// Enqueue upserts by externalID, resetting status, priority and timestamps
	Enqueue(ctx context.Context, recordRef, externalID string, priority int) (*models.QueueItem, error)

	// DequeueBatch returns pending items by priority desc, then oldest first
	DequeueBatch(ctx context.Context, limit int) ([]*models.QueueItem, error)

	// SetStatus transitions an item; processed_at is stamped on completed or failed
	SetStatus(ctx context.Context, id string, status models.QueueStatus, errorMessage string) error

	Get(ctx context.Context, externalID string) (*models.QueueItem, error)
	RemoveByExternalID(ctx context.Context, externalID string) error
	Count(ctx context.Context) (int, error)
	PendingCount(ctx context.Context) (int, error)
	CountCompletedSince(ctx context.Context, since time.Time) (int, error)

	// ResetProcessingToPending moves in-flight items back to pending
	ResetProcessingToPending(ctx context.Context) (int, error)
}

// LogStorage persists fetch and performance audit records
type LogStorage interface {
	AppendFetchLog(ctx context.Context, entry *models.FetchLogEntry) error
	AppendPerformanceLog(ctx context.Context, entry *models.PerformanceLogEntry) error
	ListFetchLogs(ctx context.Context, since time.Time) ([]models.FetchLogEntry, error)
	ListPerformanceLogs(ctx context.Context, since time.Time) ([]models.PerformanceLogEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Lease is the single-flight lock shared by every pipeline entry point.
// A held lease is reclaimable once its TTL elapses.
type Lease interface {
	// Acquire returns ErrLeaseHeld while an unexpired lease exists
	Acquire(ctx context.Context, ttl time.Duration) (*models.Lease, error)

	// Release frees the lease only if the token still matches
	Release(ctx context.Context, lease *models.Lease) error

	// ForceRelease frees the lease regardless of holder
	ForceRelease(ctx context.Context) error

	// Current returns the unexpired lease or nil
	Current(ctx context.Context) (*models.Lease, error)
}

// StorageManager exposes the badger-backed storages
type StorageManager interface {
	CacheStorage() DetailCache
	QueueStorage() QueueStorage
	LogStorage() LogStorage
	KeyValueStorage() KeyValueStorage
	ContentStorage() ContentStore
	LeaseStorage() Lease
	Close() error
}
