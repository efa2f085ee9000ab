package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/models"
)

// LogStorage persists fetch and performance audit entries
type LogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLogStorage creates a new LogStorage instance
func NewLogStorage(db *BadgerDB, logger arbor.ILogger) *LogStorage {
	return &LogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LogStorage) AppendFetchLog(ctx context.Context, entry *models.FetchLogEntry) error {
	if entry.ID == "" {
		entry.ID = common.NewLogID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to append fetch log: %w", err)
	}
	return nil
}

func (s *LogStorage) AppendPerformanceLog(ctx context.Context, entry *models.PerformanceLogEntry) error {
	if entry.ID == "" {
		entry.ID = common.NewLogID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to append performance log: %w", err)
	}
	return nil
}

// ListFetchLogs returns fetch entries created at or after since, oldest first
func (s *LogStorage) ListFetchLogs(ctx context.Context, since time.Time) ([]models.FetchLogEntry, error) {
	var entries []models.FetchLogEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("CreatedAt").Ge(since)); err != nil {
		return nil, fmt.Errorf("failed to list fetch logs: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// ListPerformanceLogs returns performance entries created at or after since, oldest first
func (s *LogStorage) ListPerformanceLogs(ctx context.Context, since time.Time) ([]models.PerformanceLogEntry, error) {
	var entries []models.PerformanceLogEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("CreatedAt").Ge(since)); err != nil {
		return nil, fmt.Errorf("failed to list performance logs: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// DeleteOlderThan removes fetch and performance entries created before cutoff
func (s *LogStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := badgerhold.Where("CreatedAt").Lt(cutoff)

	fetchCount, err := s.db.Store().Count(&models.FetchLogEntry{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count fetch logs: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.FetchLogEntry{}, query); err != nil {
		return 0, fmt.Errorf("failed to delete fetch logs: %w", err)
	}

	perfCount, err := s.db.Store().Count(&models.PerformanceLogEntry{}, query)
	if err != nil {
		return int(fetchCount), fmt.Errorf("failed to count performance logs: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.PerformanceLogEntry{}, query); err != nil {
		return int(fetchCount), fmt.Errorf("failed to delete performance logs: %w", err)
	}

	removed := int(fetchCount + perfCount)
	if removed > 0 {
		s.logger.Info().
			Int("fetch_logs", int(fetchCount)).
			Int("performance_logs", int(perfCount)).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("Old log entries deleted")
	}
	return removed, nil
}
