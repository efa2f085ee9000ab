package models

import (
	"fmt"
	"time"
)

// QueueStatus is the lifecycle state of a queue item
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// IsTerminal reports whether the status ends an enqueue generation
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// Validate returns an error for unknown statuses
func (s QueueStatus) Validate() error {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed:
		return nil
	}
	return fmt.Errorf("invalid queue status: %q", s)
}

// QueueItem tracks one imported grant through downstream processing.
// ExternalID is the store key, so re-enqueuing replaces the row.
type QueueItem struct {
	ExternalID   string      `json:"external_id" badgerhold:"key"`
	ID           string      `json:"id" badgerhold:"index"`
	RecordRef    string      `json:"record_ref"`
	Status       QueueStatus `json:"status" badgerhold:"index"`
	Priority     int         `json:"priority"`
	RetryCount   int         `json:"retry_count"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Sequence     uint64      `json:"sequence"`
	CreatedAt    time.Time   `json:"created_at"`
	ProcessedAt  *time.Time  `json:"processed_at,omitempty"`
}
