// Package keywords resolves which keywords to search and with which options.
package keywords

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/jgrants"
	"github.com/ternarybob/grantpost/internal/models"
)

// topKeywordLimit caps AnalyzePerformance results
const topKeywordLimit = 20

// DefaultKeywords is used when no operator keywords are configured
var DefaultKeywords = []string{
	"IT導入補助金",
	"事業再構築補助金",
	"ものづくり補助金",
	"小規模事業者持続化補助金",
	"創業支援",
	"設備整備",
	"IT導入",
	"販路拡大",
	"人材育成",
	"研究開発",
	"DX推進",
	"事業承継",
	"製造業",
	"情報通信業",
	"建設業",
	"小売業",
	"医療",
	"福祉",
	"教育",
	"小規模事業者",
	"中小企業",
	"スタートアップ",
}

// Strategy produces the keyword list and per-keyword search options
type Strategy struct {
	config *common.KeywordsConfig
	logs   interfaces.LogStorage
	rules  []Rule
	logger arbor.ILogger
}

// NewStrategy creates a strategy over the operator keyword config.
// logs may be nil when performance analysis is not needed.
func NewStrategy(config *common.KeywordsConfig, logs interfaces.LogStorage, logger arbor.ILogger) *Strategy {
	return &Strategy{
		config: config,
		logs:   logs,
		rules:  DefaultRules,
		logger: logger,
	}
}

// ActiveKeywords returns trimmed, unique operator keywords in first-seen
// order, or DefaultKeywords when none are configured.
func (s *Strategy) ActiveKeywords() []string {
	keywords := uniqueTrimmed(s.config.Main)
	if len(keywords) == 0 {
		return append([]string(nil), DefaultKeywords...)
	}
	return keywords
}

// ExcludeTerms returns the lower-cased exclusion terms
func (s *Strategy) ExcludeTerms() []string {
	terms := make([]string, 0, len(s.config.Exclude))
	for _, term := range uniqueTrimmed(s.config.Exclude) {
		terms = append(terms, strings.ToLower(term))
	}
	return terms
}

// SearchOptions returns the configured default sort, order and acceptance
func (s *Strategy) SearchOptions() jgrants.SearchOptions {
	return jgrants.SearchOptions{
		Sort:       s.config.Sort,
		Order:      s.config.Order,
		Acceptance: s.config.Acceptance,
	}.Normalize()
}

// OptimizeParameters returns the option overrides for keyword
func (s *Strategy) OptimizeParameters(keyword string) jgrants.SearchOptions {
	return Apply(s.rules, keyword)
}

// OptionsFor merges the defaults with the keyword's overrides
func (s *Strategy) OptionsFor(keyword string) jgrants.SearchOptions {
	return s.SearchOptions().Merge(s.OptimizeParameters(keyword))
}

// Queries builds one search query per active keyword
func (s *Strategy) Queries() []jgrants.KeywordQuery {
	keywords := s.ActiveKeywords()
	queries := make([]jgrants.KeywordQuery, 0, len(keywords))
	for _, keyword := range keywords {
		queries = append(queries, jgrants.KeywordQuery{
			Keyword: keyword,
			Options: s.OptionsFor(keyword),
		})
	}
	return queries
}

// AnalyzePerformance summarises successful and partial searches since the
// given time, most used keywords first.
func (s *Strategy) AnalyzePerformance(ctx context.Context, since time.Time) ([]models.KeywordStat, error) {
	if s.logs == nil {
		return []models.KeywordStat{}, nil
	}

	entries, err := s.logs.ListFetchLogs(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load fetch logs: %w", err)
	}

	type tally struct {
		uses    int
		results int
		last    time.Time
	}
	tallies := make(map[string]*tally)
	for _, entry := range entries {
		if entry.Status == models.FetchStatusError {
			continue
		}
		t, ok := tallies[entry.Keyword]
		if !ok {
			t = &tally{}
			tallies[entry.Keyword] = t
		}
		t.uses++
		t.results += entry.ResultsCount
		if entry.CreatedAt.After(t.last) {
			t.last = entry.CreatedAt
		}
	}

	stats := make([]models.KeywordStat, 0, len(tallies))
	for keyword, t := range tallies {
		stats = append(stats, models.KeywordStat{
			Keyword:    keyword,
			UsageCount: t.uses,
			AvgResults: float64(t.results) / float64(t.uses),
			LastUsed:   t.last,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].UsageCount != stats[j].UsageCount {
			return stats[i].UsageCount > stats[j].UsageCount
		}
		return stats[i].Keyword < stats[j].Keyword
	})

	if len(stats) > topKeywordLimit {
		stats = stats[:topKeywordLimit]
	}

	s.logger.Debug().Int("keywords", len(stats)).Msg("Keyword performance analysed")
	return stats, nil
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
