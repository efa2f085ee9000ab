package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/models"
)

func TestLogStorage_ListAndDeleteOlderThan(t *testing.T) {
	logs := NewLogStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	now := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)

	require.NoError(t, logs.AppendFetchLog(ctx, &models.FetchLogEntry{Keyword: "創業", Status: models.FetchStatusSuccess, CreatedAt: old}))
	require.NoError(t, logs.AppendFetchLog(ctx, &models.FetchLogEntry{Keyword: "販路", Status: models.FetchStatusSuccess, ResultsCount: 4, CreatedAt: now}))
	require.NoError(t, logs.AppendPerformanceLog(ctx, &models.PerformanceLogEntry{Operation: "fetch_cycle", Success: true, CreatedAt: old}))
	require.NoError(t, logs.AppendPerformanceLog(ctx, &models.PerformanceLogEntry{Operation: "fetch_cycle", Success: true, CreatedAt: now, Details: map[string]int64{"results_count": 2}}))

	since := now.Add(-24 * time.Hour)
	fetches, err := logs.ListFetchLogs(ctx, since)
	require.NoError(t, err)
	require.Len(t, fetches, 1)
	assert.Equal(t, "販路", fetches[0].Keyword)
	assert.NotEmpty(t, fetches[0].ID)

	perf, err := logs.ListPerformanceLogs(ctx, since)
	require.NoError(t, err)
	require.Len(t, perf, 1)
	assert.Equal(t, int64(2), perf[0].Details["results_count"])

	removed, err := logs.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	all, err := logs.ListFetchLogs(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
