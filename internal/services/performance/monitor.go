// Package performance records timed operations and keyword fetch outcomes
// to log storage and Prometheus, and aggregates them for reporting.
package performance

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

// Monitor implements OperationTracker and FetchRecorder
type Monitor struct {
	logs     interfaces.LogStorage
	metrics  *Metrics
	registry *prometheus.Registry
	logger   arbor.ILogger
	now      func() time.Time
}

var (
	_ interfaces.OperationTracker = (*Monitor)(nil)
	_ interfaces.FetchRecorder    = (*Monitor)(nil)
)

// NewMonitor creates a monitor with its own Prometheus registry
func NewMonitor(logs interfaces.LogStorage, logger arbor.ILogger) *Monitor {
	registry := prometheus.NewRegistry()
	return &Monitor{
		logs:     logs,
		metrics:  NewMetrics(registry),
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Registry exposes the collectors for a /metrics handler
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Record persists a performance entry. Storage failures are logged only.
func (m *Monitor) Record(ctx context.Context, entry *models.PerformanceLogEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}

	m.metrics.OperationsTotal.WithLabelValues(entry.Operation, strconv.FormatBool(entry.Success)).Inc()
	m.metrics.OperationDuration.WithLabelValues(entry.Operation).Observe(entry.ExecutionTime.Seconds())

	if err := m.logs.AppendPerformanceLog(ctx, entry); err != nil {
		m.logger.Warn().Err(err).Str("operation", entry.Operation).Msg("Failed to store performance entry")
		return
	}

	m.logger.Debug().
		Str("operation", entry.Operation).
		Dur("execution_time", entry.ExecutionTime).
		Int("memory_used", int(entry.MemoryUsed)).
		Msg("Performance recorded")
}

// RecordFetch persists a keyword search outcome
func (m *Monitor) RecordFetch(ctx context.Context, entry *models.FetchLogEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}

	m.metrics.KeywordFetches.WithLabelValues(string(entry.Status)).Inc()
	m.metrics.KeywordResults.Add(float64(entry.ResultsCount))

	if err := m.logs.AppendFetchLog(ctx, entry); err != nil {
		m.logger.Warn().Err(err).Str("keyword", entry.Keyword).Msg("Failed to store fetch log")
	}
}

// SetQueuePending updates the pending queue gauge
func (m *Monitor) SetQueuePending(pending int) {
	m.metrics.QueuePending.Set(float64(pending))
}

// Operation measures one timed operation started by Track
type Operation struct {
	monitor  *Monitor
	name     string
	started  time.Time
	memStart uint64
}

// Track starts timing operation
func (m *Monitor) Track(operation string) interfaces.TrackedOperation {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return &Operation{
		monitor:  m,
		name:     operation,
		started:  m.now(),
		memStart: stats.HeapAlloc,
	}
}

// Finish records the operation with its elapsed time and heap growth
func (o *Operation) Finish(ctx context.Context, success bool, details map[string]int64) *models.PerformanceLogEntry {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	var used uint64
	if stats.HeapAlloc > o.memStart {
		used = stats.HeapAlloc - o.memStart
	}

	entry := &models.PerformanceLogEntry{
		Operation:     o.name,
		ExecutionTime: o.monitor.now().Sub(o.started),
		MemoryUsed:    used,
		Success:       success,
		Details:       details,
	}
	o.monitor.Record(ctx, entry)
	return entry
}

// Stats aggregates performance entries from the last period by operation
func (m *Monitor) Stats(ctx context.Context, period time.Duration) ([]models.OperationStats, error) {
	entries, err := m.logs.ListPerformanceLogs(ctx, m.now().Add(-period))
	if err != nil {
		return nil, fmt.Errorf("failed to load performance logs: %w", err)
	}

	type tally struct {
		count   int
		success int
		total   time.Duration
		max     time.Duration
		memory  uint64
	}
	tallies := make(map[string]*tally)
	for _, entry := range entries {
		t, ok := tallies[entry.Operation]
		if !ok {
			t = &tally{}
			tallies[entry.Operation] = t
		}
		t.count++
		if entry.Success {
			t.success++
		}
		t.total += entry.ExecutionTime
		if entry.ExecutionTime > t.max {
			t.max = entry.ExecutionTime
		}
		t.memory += entry.MemoryUsed
	}

	stats := make([]models.OperationStats, 0, len(tallies))
	for operation, t := range tallies {
		stats = append(stats, models.OperationStats{
			Operation:        operation,
			Count:            t.count,
			SuccessCount:     t.success,
			AvgExecutionTime: t.total / time.Duration(t.count),
			MaxExecutionTime: t.max,
			AvgMemoryUsed:    t.memory / uint64(t.count),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Operation < stats[j].Operation
	})

	return stats, nil
}

// Cleanup deletes log entries older than retention
func (m *Monitor) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	removed, err := m.logs.DeleteOlderThan(ctx, m.now().Add(-retention))
	if err != nil {
		return removed, fmt.Errorf("failed to clean up logs: %w", err)
	}
	m.logger.Info().Int("removed", removed).Dur("retention", retention).Msg("Performance log cleanup complete")
	return removed, nil
}
