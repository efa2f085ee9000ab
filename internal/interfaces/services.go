package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/grantpost/internal/models"
)

// ErrRecordNotFound is returned by ContentStore lookups that find nothing
var ErrRecordNotFound = errors.New("content record not found")

// ErrGeneratorUnavailable is returned by a TextGenerator that cannot serve requests
var ErrGeneratorUnavailable = errors.New("text generator unavailable")

// ContentStore holds published records keyed by the upstream external ID
type ContentStore interface {
	// FindByExternalID returns ErrRecordNotFound when no record carries the ID
	FindByExternalID(ctx context.Context, externalID string) (*models.ContentRecord, error)
	Get(ctx context.Context, recordRef string) (*models.ContentRecord, error)
	Create(ctx context.Context, fields *models.ContentFields) (string, error)
	Update(ctx context.Context, recordRef string, fields *models.ContentFields) error
	Delete(ctx context.Context, recordRef string) error
}

// TextGenerator produces text from a prompt
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Available() bool
	Name() string
}

// Enricher runs downstream processing for one queued record
type Enricher interface {
	Enrich(ctx context.Context, item *models.QueueItem) error
}

// MetadataWriter attaches SEO metadata to a content record
type MetadataWriter interface {
	WriteMetadata(ctx context.Context, record *models.ContentRecord, detail *models.GrantDetail) error
}

// OperationTracker starts timed operations that record themselves when finished
type OperationTracker interface {
	Track(operation string) TrackedOperation
}

// TrackedOperation is an operation started by an OperationTracker
type TrackedOperation interface {
	Finish(ctx context.Context, success bool, details map[string]int64) *models.PerformanceLogEntry
}

// FetchRecorder stores per-keyword search outcomes
type FetchRecorder interface {
	RecordFetch(ctx context.Context, entry *models.FetchLogEntry)
}
