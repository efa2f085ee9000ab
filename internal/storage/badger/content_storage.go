package badger

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

// ContentStorage is the local content store for imported grant records
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) *ContentStorage {
	return &ContentStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// FindByExternalID returns the record carrying externalID
func (s *ContentStorage) FindByExternalID(ctx context.Context, externalID string) (*models.ContentRecord, error) {
	var records []models.ContentRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("ExternalID").Eq(externalID).Index("ExternalID").Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find record for %s: %w", externalID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: grant %s", interfaces.ErrRecordNotFound, externalID)
	}
	return &records[0], nil
}

func (s *ContentStorage) Get(ctx context.Context, recordRef string) (*models.ContentRecord, error) {
	var record models.ContentRecord
	err := s.db.Store().Get(recordRef, &record)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, recordRef)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &record, nil
}

// Create stores a new record and returns its reference
func (s *ContentStorage) Create(ctx context.Context, fields *models.ContentFields) (string, error) {
	now := s.now()
	record := &models.ContentRecord{
		ID:         common.NewRecordID(),
		ExternalID: fields.ExternalID,
		Title:      fields.Title,
		Body:       fields.Body,
		Excerpt:    fields.Excerpt,
		Status:     fields.Status,
		Meta:       maps.Clone(fields.Meta),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if record.Meta == nil {
		record.Meta = map[string]string{}
	}

	if err := s.db.Store().Insert(record.ID, record); err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}

	s.logger.Debug().Str("record_ref", record.ID).Str("grant_id", record.ExternalID).Msg("Content record created")
	return record.ID, nil
}

// Update overwrites the record's fields. Meta keys are merged; empty
// top-level fields keep their stored value.
func (s *ContentStorage) Update(ctx context.Context, recordRef string, fields *models.ContentFields) error {
	record, err := s.Get(ctx, recordRef)
	if err != nil {
		return err
	}

	if fields.ExternalID != "" {
		record.ExternalID = fields.ExternalID
	}
	if fields.Title != "" {
		record.Title = fields.Title
	}
	if fields.Body != "" {
		record.Body = fields.Body
	}
	if fields.Excerpt != "" {
		record.Excerpt = fields.Excerpt
	}
	if fields.Status != "" {
		record.Status = fields.Status
	}
	if record.Meta == nil {
		record.Meta = map[string]string{}
	}
	maps.Copy(record.Meta, fields.Meta)
	record.UpdatedAt = s.now()

	if err := s.db.Store().Update(recordRef, record); err != nil {
		return fmt.Errorf("failed to update record %s: %w", recordRef, err)
	}
	return nil
}

// Delete removes the record; a missing record is not an error
func (s *ContentStorage) Delete(ctx context.Context, recordRef string) error {
	err := s.db.Store().Delete(recordRef, &models.ContentRecord{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete record %s: %w", recordRef, err)
	}
	return nil
}
