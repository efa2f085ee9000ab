package models

import "time"

// FetchStatus is the outcome recorded for a keyword search
type FetchStatus string

const (
	FetchStatusSuccess FetchStatus = "success"
	FetchStatusError   FetchStatus = "error"
	FetchStatusPartial FetchStatus = "partial"
)

// FetchLogEntry is an append-only audit record of one keyword search
type FetchLogEntry struct {
	ID           string      `json:"id" badgerhold:"key"`
	Keyword      string      `json:"keyword" badgerhold:"index"`
	ResultsCount int         `json:"results_count"`
	Status       FetchStatus `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// PerformanceLogEntry is an append-only record of one timed operation
type PerformanceLogEntry struct {
	ID            string           `json:"id" badgerhold:"key"`
	Operation     string           `json:"operation" badgerhold:"index"`
	ExecutionTime time.Duration    `json:"execution_time"`
	MemoryUsed    uint64           `json:"memory_used"`
	Success       bool             `json:"success"`
	Details       map[string]int64 `json:"details,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// OperationStats aggregates performance entries for one operation
type OperationStats struct {
	Operation        string        `json:"operation"`
	Count            int           `json:"count"`
	SuccessCount     int           `json:"success_count"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	MaxExecutionTime time.Duration `json:"max_execution_time"`
	AvgMemoryUsed    uint64        `json:"avg_memory_used"`
}

// KeywordStat summarises how a keyword has performed in past searches
type KeywordStat struct {
	Keyword    string    `json:"keyword"`
	UsageCount int       `json:"usage_count"`
	AvgResults float64   `json:"avg_results"`
	LastUsed   time.Time `json:"last_used"`
}
