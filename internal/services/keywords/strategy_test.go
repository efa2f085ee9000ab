package keywords

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/jgrants"
	"github.com/ternarybob/grantpost/internal/models"
)

type fakeLogs struct {
	fetches []models.FetchLogEntry
}

func (f *fakeLogs) AppendFetchLog(ctx context.Context, entry *models.FetchLogEntry) error {
	return nil
}

func (f *fakeLogs) AppendPerformanceLog(ctx context.Context, entry *models.PerformanceLogEntry) error {
	return nil
}

func (f *fakeLogs) ListFetchLogs(ctx context.Context, since time.Time) ([]models.FetchLogEntry, error) {
	return f.fetches, nil
}

func (f *fakeLogs) ListPerformanceLogs(ctx context.Context, since time.Time) ([]models.PerformanceLogEntry, error) {
	return nil, nil
}

func (f *fakeLogs) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func TestActiveKeywords(t *testing.T) {
	t.Run("falls back to defaults", func(t *testing.T) {
		s := NewStrategy(&common.KeywordsConfig{Main: []string{" ", ""}}, nil, arbor.NewLogger())
		assert.Equal(t, DefaultKeywords, s.ActiveKeywords())
	})

	t.Run("trims and deduplicates in order", func(t *testing.T) {
		s := NewStrategy(&common.KeywordsConfig{Main: []string{" 創業 ", "販路", "創業", "DX推進"}}, nil, arbor.NewLogger())
		assert.Equal(t, []string{"創業", "販路", "DX推進"}, s.ActiveKeywords())
	})

	t.Run("returned defaults are a copy", func(t *testing.T) {
		s := NewStrategy(&common.KeywordsConfig{}, nil, arbor.NewLogger())
		got := s.ActiveKeywords()
		got[0] = "changed"
		assert.Equal(t, "IT導入補助金", DefaultKeywords[0])
	})
}

func TestExcludeTerms(t *testing.T) {
	s := NewStrategy(&common.KeywordsConfig{Exclude: []string{" Closed ", "", "終了"}}, nil, arbor.NewLogger())
	assert.Equal(t, []string{"closed", "終了"}, s.ExcludeTerms())
}

func TestOptimizeParameters(t *testing.T) {
	s := NewStrategy(&common.KeywordsConfig{}, nil, arbor.NewLogger())

	tests := []struct {
		keyword    string
		usePurpose []string
		industry   []string
		employees  string
	}{
		{"IT導入", []string{"設備整備・IT導入をしたい"}, []string{"情報通信業"}, ""},
		{"dx推進", []string{"設備整備・IT導入をしたい"}, []string{"情報通信業"}, ""},
		{"ものづくり補助金", []string{"設備整備・IT導入をしたい", "研究開発・実証事業を行いたい"}, []string{"製造業"}, ""},
		{"小規模事業者", nil, nil, "20名以下"},
		{"スタートアップ", []string{"新たな事業を行いたい"}, nil, ""},
		{"海外展開", []string{"販路拡大・海外展開をしたい"}, nil, ""},
		{"医療", nil, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			opts := s.OptimizeParameters(tt.keyword)
			assert.Equal(t, tt.usePurpose, opts.UsePurpose)
			assert.Equal(t, tt.industry, opts.Industry)
			assert.Equal(t, tt.employees, opts.TargetNumberOfEmployees)
		})
	}
}

func TestApply_LastMatchWins(t *testing.T) {
	// "デジタル創業" matches digital then startup; startup's use_purpose replaces
	// digital's while digital's industry survives.
	opts := Apply(DefaultRules, "デジタル創業")
	assert.Equal(t, []string{"新たな事業を行いたい"}, opts.UsePurpose)
	assert.Equal(t, []string{"情報通信業"}, opts.Industry)

	custom := []Rule{
		{Name: "a", Terms: []string{"x"}, Options: jgrants.SearchOptions{Sort: jgrants.SortAcceptanceEnd}},
		{Name: "b", Terms: []string{"X"}, Options: jgrants.SearchOptions{Sort: jgrants.SortAcceptanceStart}},
	}
	assert.Equal(t, jgrants.SortAcceptanceStart, Apply(custom, "xyz").Sort)
}

func TestOptionsFor_MergesDefaults(t *testing.T) {
	s := NewStrategy(&common.KeywordsConfig{Sort: "acceptance_end_datetime", Order: "asc", Acceptance: "1"}, nil, arbor.NewLogger())

	opts := s.OptionsFor("小規模事業者")
	assert.Equal(t, jgrants.SortAcceptanceEnd, opts.Sort)
	assert.Equal(t, jgrants.OrderAsc, opts.Order)
	assert.Equal(t, jgrants.AcceptanceOpen, opts.Acceptance)
	assert.Equal(t, "20名以下", opts.TargetNumberOfEmployees)

	queries := NewStrategy(&common.KeywordsConfig{Main: []string{"創業", "医療"}}, nil, arbor.NewLogger()).Queries()
	require.Len(t, queries, 2)
	assert.Equal(t, "創業", queries[0].Keyword)
	assert.Equal(t, []string{"新たな事業を行いたい"}, queries[0].Options.UsePurpose)
	assert.Equal(t, jgrants.SortCreatedDate, queries[1].Options.Sort)
}

func TestAnalyzePerformance(t *testing.T) {
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	logs := &fakeLogs{fetches: []models.FetchLogEntry{
		{Keyword: "創業", Status: models.FetchStatusSuccess, ResultsCount: 4, CreatedAt: base},
		{Keyword: "創業", Status: models.FetchStatusSuccess, ResultsCount: 2, CreatedAt: base.Add(time.Hour)},
		{Keyword: "創業", Status: models.FetchStatusError, CreatedAt: base.Add(2 * time.Hour)},
		{Keyword: "販路", Status: models.FetchStatusPartial, ResultsCount: 1, CreatedAt: base},
	}}

	s := NewStrategy(&common.KeywordsConfig{}, logs, arbor.NewLogger())
	stats, err := s.AnalyzePerformance(context.Background(), base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "創業", stats[0].Keyword)
	assert.Equal(t, 2, stats[0].UsageCount)
	assert.InDelta(t, 3.0, stats[0].AvgResults, 0.001)
	assert.True(t, stats[0].LastUsed.Equal(base.Add(time.Hour)))
	assert.Equal(t, "販路", stats[1].Keyword)
	assert.Equal(t, 1, stats[1].UsageCount)
}
