package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

var queueSequenceKey = []byte("grantpost:queue:sequence")

// QueueStorage is the durable processing queue, keyed by external ID.
// Writes are serialised so read-modify-write transitions stay consistent.
type QueueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	seq    *badger.Sequence
	mu     sync.Mutex
	now    func() time.Time
}

// NewQueueStorage creates a new QueueStorage instance
func NewQueueStorage(db *BadgerDB, logger arbor.ILogger) (*QueueStorage, error) {
	seq, err := db.Store().Badger().GetSequence(queueSequenceKey, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue sequence: %w", err)
	}

	return &QueueStorage{
		db:     db,
		logger: logger,
		seq:    seq,
		now:    time.Now,
	}, nil
}

// Close returns unused sequence leases to the database
func (s *QueueStorage) Close() {
	if s.seq != nil {
		if err := s.seq.Release(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release queue sequence")
		}
	}
}

// Enqueue upserts the item for externalID as a fresh pending generation
func (s *QueueStorage) Enqueue(ctx context.Context, recordRef, externalID string, priority int) (*models.QueueItem, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate queue sequence: %w", err)
	}

	item := &models.QueueItem{
		ExternalID: externalID,
		ID:         common.NewQueueItemID(),
		RecordRef:  recordRef,
		Status:     models.QueueStatusPending,
		Priority:   priority,
		Sequence:   next,
		CreatedAt:  s.now(),
	}

	if err := s.db.Store().Upsert(externalID, item); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", externalID, err)
	}

	s.logger.Debug().
		Str("grant_id", externalID).
		Str("record_ref", recordRef).
		Int("priority", priority).
		Msg("Queue item enqueued")

	return item, nil
}

// DequeueBatch returns up to limit pending items ordered by priority
// descending, then creation time and sequence ascending. Items are not
// transitioned; callers mark them processing.
func (s *QueueStorage) DequeueBatch(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	if limit <= 0 {
		return []*models.QueueItem{}, nil
	}

	var items []models.QueueItem
	if err := s.db.Store().Find(&items, badgerhold.Where("Status").Eq(models.QueueStatusPending)); err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Sequence < b.Sequence
	})

	if len(items) > limit {
		items = items[:limit]
	}

	result := make([]*models.QueueItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

// SetStatus transitions the item with the given ID. processed_at is
// stamped on completed or failed; failed also increments the retry count.
func (s *QueueStorage) SetStatus(ctx context.Context, id string, status models.QueueStatus, errorMessage string) error {
	if err := status.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var items []models.QueueItem
	if err := s.db.Store().Find(&items, badgerhold.Where("ID").Eq(id)); err != nil {
		return fmt.Errorf("failed to find queue item %s: %w", id, err)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: %s", interfaces.ErrQueueItemNotFound, id)
	}

	item := items[0]
	item.Status = status
	item.ErrorMessage = errorMessage
	if status.IsTerminal() {
		processedAt := s.now()
		item.ProcessedAt = &processedAt
	} else {
		item.ProcessedAt = nil
	}
	if status == models.QueueStatusFailed {
		item.RetryCount++
	}

	if err := s.db.Store().Upsert(item.ExternalID, &item); err != nil {
		return fmt.Errorf("failed to update queue item %s: %w", id, err)
	}
	return nil
}

// Get returns the queue item for an external ID
func (s *QueueStorage) Get(ctx context.Context, externalID string) (*models.QueueItem, error) {
	var item models.QueueItem
	err := s.db.Store().Get(externalID, &item)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrQueueItemNotFound, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return &item, nil
}

// RemoveByExternalID deletes the item; a missing item is not an error
func (s *QueueStorage) RemoveByExternalID(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Store().Delete(externalID, &models.QueueItem{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to remove queue item %s: %w", externalID, err)
	}
	return nil
}

func (s *QueueStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.QueueItem{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *QueueStorage) PendingCount(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.QueueItem{}, badgerhold.Where("Status").Eq(models.QueueStatusPending))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountCompletedSince counts completed items whose processed_at is at or after since
func (s *QueueStorage) CountCompletedSince(ctx context.Context, since time.Time) (int, error) {
	var items []models.QueueItem
	if err := s.db.Store().Find(&items, badgerhold.Where("Status").Eq(models.QueueStatusCompleted)); err != nil {
		return 0, err
	}

	count := 0
	for _, item := range items {
		if item.ProcessedAt != nil && !item.ProcessedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ResetProcessingToPending moves every processing item back to pending
func (s *QueueStorage) ResetProcessingToPending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []models.QueueItem
	if err := s.db.Store().Find(&items, badgerhold.Where("Status").Eq(models.QueueStatusProcessing)); err != nil {
		return 0, fmt.Errorf("failed to list processing items: %w", err)
	}

	for i := range items {
		items[i].Status = models.QueueStatusPending
		items[i].ProcessedAt = nil
		if err := s.db.Store().Upsert(items[i].ExternalID, &items[i]); err != nil {
			return i, fmt.Errorf("failed to reset queue item %s: %w", items[i].ExternalID, err)
		}
	}

	if len(items) > 0 {
		s.logger.Info().Int("count", len(items)).Msg("Reset processing queue items to pending")
	}
	return len(items), nil
}
