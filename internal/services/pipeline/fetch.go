package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/jgrants"
	"github.com/ternarybob/grantpost/internal/models"
)

// Import outcomes
const (
	OutcomeImported = "imported"
	OutcomeUpdated  = "updated"
	OutcomeExcluded = "excluded"
	OutcomeError    = "error"
)

// ItemOutcome is the result of importing one grant
type ItemOutcome struct {
	ExternalID string `json:"external_id"`
	Outcome    string `json:"outcome"`
	RecordRef  string `json:"record_ref,omitempty"`
	Error      string `json:"error,omitempty"`

	err error
}

// Err returns the failure behind an error outcome
func (o *ItemOutcome) Err() error {
	return o.err
}

func failed(externalID, recordRef string, err error) *ItemOutcome {
	return &ItemOutcome{
		ExternalID: externalID,
		Outcome:    OutcomeError,
		RecordRef:  recordRef,
		Error:      err.Error(),
		err:        err,
	}
}

// FetchReport summarises a fetch cycle or manual fetch
type FetchReport struct {
	Keywords int            `json:"keyword_count"`
	Total    int            `json:"total"`
	Imported int            `json:"imported"`
	Updated  int            `json:"updated"`
	Excluded int            `json:"excluded"`
	Errors   int            `json:"errors"`
	Items    []*ItemOutcome `json:"items"`
	Duration time.Duration  `json:"duration"`
}

func (r *FetchReport) add(outcome *ItemOutcome) {
	r.Items = append(r.Items, outcome)
	switch outcome.Outcome {
	case OutcomeImported:
		r.Imported++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeExcluded:
		r.Excluded++
	default:
		r.Errors++
	}
}

func (r *FetchReport) details() map[string]int64 {
	return map[string]int64{
		"keyword_count": int64(r.Keywords),
		"results_count": int64(r.Total),
		"imported":      int64(r.Imported),
		"updated":       int64(r.Updated),
		"excluded":      int64(r.Excluded),
		"errors":        int64(r.Errors),
	}
}

// RunFetchCycle searches every active keyword and imports the results.
// Returns ErrAlreadyRunning without doing work when the lease is held.
func (o *Orchestrator) RunFetchCycle(ctx context.Context) (*FetchReport, error) {
	var report *FetchReport
	err := o.withLease(ctx, OperationFetchCycle, func(ctx context.Context) error {
		var err error
		report, err = o.fetch(ctx, OperationFetchCycle, o.keywords.Queries())
		return err
	})
	return report, err
}

// ManualFetch runs the fetch contract for a single keyword using its
// optimised search options.
func (o *Orchestrator) ManualFetch(ctx context.Context, keyword string) (*FetchReport, error) {
	if err := jgrants.ValidateKeyword(keyword); err != nil {
		return nil, err
	}

	var report *FetchReport
	err := o.withLease(ctx, OperationManualFetch, func(ctx context.Context) error {
		var err error
		queries := []jgrants.KeywordQuery{{Keyword: keyword, Options: o.keywords.OptionsFor(keyword)}}
		report, err = o.fetch(ctx, OperationManualFetch, queries)
		return err
	})
	return report, err
}

// ImportByID imports one grant by external ID. Exclude terms apply as in
// a fetch cycle.
func (o *Orchestrator) ImportByID(ctx context.Context, externalID string) (*ItemOutcome, error) {
	if err := jgrants.ValidateID(externalID); err != nil {
		return nil, err
	}

	var outcome *ItemOutcome
	err := o.withLease(ctx, OperationImportByID, func(ctx context.Context) error {
		op := o.track(OperationImportByID)
		outcome = o.importGrant(ctx, externalID, "", o.keywords.ExcludeTerms())
		op.Finish(ctx, outcome.Outcome != OutcomeError, nil)
		return outcome.Err()
	})
	return outcome, err
}

// SearchPreview searches one keyword without importing anything
func (o *Orchestrator) SearchPreview(ctx context.Context, keyword string) ([]models.GrantSummary, error) {
	if err := jgrants.ValidateKeyword(keyword); err != nil {
		return nil, err
	}
	return o.search.SearchByKeywords(ctx, []jgrants.KeywordQuery{{Keyword: keyword, Options: o.keywords.OptionsFor(keyword)}})
}

func (o *Orchestrator) fetch(ctx context.Context, operation string, queries []jgrants.KeywordQuery) (*FetchReport, error) {
	started := o.now()
	op := o.track(operation)

	report := &FetchReport{Keywords: len(queries), Items: []*ItemOutcome{}}

	summaries, err := o.search.SearchByKeywords(ctx, queries)
	report.Total = len(summaries)

	if err == nil {
		excludes := o.keywords.ExcludeTerms()
		for _, summary := range summaries {
			if err = ctx.Err(); err != nil {
				break
			}
			report.add(o.importGrant(ctx, summary.ID, summary.SourceKeyword, excludes))
		}
	}

	report.Duration = o.now().Sub(started)
	o.markTime(ctx, stateLastFetch)

	op.Finish(ctx, err == nil, report.details())

	o.logger.Info().
		Str("operation", operation).
		Int("keywords", report.Keywords).
		Int("total", report.Total).
		Int("imported", report.Imported).
		Int("updated", report.Updated).
		Int("excluded", report.Excluded).
		Int("errors", report.Errors).
		Dur("duration", report.Duration).
		Msg("Fetch completed")

	return report, err
}

// importGrant fetches the detail, applies exclusion, upserts the content
// record and enqueues it for processing
func (o *Orchestrator) importGrant(ctx context.Context, externalID, sourceKeyword string, excludes []string) *ItemOutcome {
	detail, err := o.search.FetchDetailErr(ctx, externalID)
	if err != nil {
		o.logger.Warn().Err(err).Str("grant_id", externalID).Msg("Failed to fetch grant detail")
		return failed(externalID, "", fmt.Errorf("fetch detail: %w", err))
	}

	if term, ok := MatchExclusion(detail, excludes); ok {
		o.logger.Debug().Str("grant_id", externalID).Str("term", term).Msg("Grant excluded")
		return &ItemOutcome{ExternalID: externalID, Outcome: OutcomeExcluded}
	}

	fields, err := o.builder.Build(detail, sourceKeyword)
	if err != nil {
		return failed(externalID, "", fmt.Errorf("build record: %w", err))
	}

	outcome := &ItemOutcome{ExternalID: externalID}
	existing, err := o.content.FindByExternalID(ctx, externalID)
	switch {
	case errors.Is(err, interfaces.ErrRecordNotFound):
		ref, createErr := o.content.Create(ctx, fields)
		if createErr != nil {
			o.logger.Error().Err(createErr).Str("grant_id", externalID).Msg("Failed to create content record")
			return failed(externalID, "", fmt.Errorf("create record: %w", createErr))
		}
		outcome.RecordRef = ref
		outcome.Outcome = OutcomeImported
	case err != nil:
		return failed(externalID, "", fmt.Errorf("find record: %w", err))
	default:
		if updateErr := o.content.Update(ctx, existing.ID, fields); updateErr != nil {
			o.logger.Error().Err(updateErr).Str("grant_id", externalID).Msg("Failed to update content record")
			return failed(externalID, existing.ID, fmt.Errorf("update record: %w", updateErr))
		}
		outcome.RecordRef = existing.ID
		outcome.Outcome = OutcomeUpdated
	}

	if _, err := o.queue.Enqueue(ctx, outcome.RecordRef, externalID, o.config.DefaultPriority); err != nil {
		o.logger.Error().Err(err).Str("grant_id", externalID).Msg("Failed to enqueue grant")
		return failed(externalID, outcome.RecordRef, fmt.Errorf("enqueue: %w", err))
	}
	return outcome
}

// MatchExclusion returns the first exclude term found in the detail's
// title, catch phrase, description, use purpose or industry
func MatchExclusion(detail *models.GrantDetail, terms []string) (string, bool) {
	if len(terms) == 0 {
		return "", false
	}
	text := detail.ExclusionText()
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(text, term) {
			return term, true
		}
	}
	return "", false
}
