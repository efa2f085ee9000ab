package common

import (
	"github.com/google/uuid"
)

// NewRecordID generates a content record ID. Format: rec_<uuid>
func NewRecordID() string {
	return "rec_" + uuid.New().String()
}

// NewQueueItemID generates a queue item ID. Format: q_<uuid>
func NewQueueItemID() string {
	return "q_" + uuid.New().String()
}

// NewLogID generates an ID for fetch and performance log entries
func NewLogID() string {
	return "log_" + uuid.New().String()
}

// NewLeaseToken generates an opaque lease owner token
func NewLeaseToken() string {
	return uuid.New().String()
}
