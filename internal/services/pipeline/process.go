package pipeline

import (
	"context"
	"time"

	"github.com/ternarybob/grantpost/internal/models"
)

// ProcessReport summarises a process cycle
type ProcessReport struct {
	Dequeued         int           `json:"dequeued"`
	Completed        int           `json:"completed"`
	EnrichmentErrors int           `json:"enrichment_errors"`
	Errors           int           `json:"errors"`
	Duration         time.Duration `json:"duration"`
}

// RunProcessCycle dequeues a batch and enriches each item. An item is
// marked completed even when enrichment fails; the failure is logged and
// counted in EnrichmentErrors.
func (o *Orchestrator) RunProcessCycle(ctx context.Context) (*ProcessReport, error) {
	report := &ProcessReport{}
	err := o.withLease(ctx, OperationProcessCycle, func(ctx context.Context) error {
		return o.process(ctx, report)
	})
	return report, err
}

func (o *Orchestrator) process(ctx context.Context, report *ProcessReport) error {
	started := o.now()
	op := o.track(OperationProcessCycle)

	items, err := o.queue.DequeueBatch(ctx, o.config.BatchSize)
	if err != nil {
		return err
	}
	report.Dequeued = len(items)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		o.processItem(ctx, item, report)

		if i < len(items)-1 {
			if err := o.sleep(ctx, o.config.ItemDelay); err != nil {
				return err
			}
		}
	}

	report.Duration = o.now().Sub(started)
	o.markTime(ctx, stateLastProcess)
	op.Finish(ctx, report.Errors == 0, map[string]int64{
		"dequeued":          int64(report.Dequeued),
		"completed":         int64(report.Completed),
		"enrichment_errors": int64(report.EnrichmentErrors),
		"errors":            int64(report.Errors),
	})

	if report.Dequeued > 0 {
		o.logger.Info().
			Int("dequeued", report.Dequeued).
			Int("completed", report.Completed).
			Int("enrichment_errors", report.EnrichmentErrors).
			Dur("duration", report.Duration).
			Msg("Process cycle completed")
	}
	return nil
}

func (o *Orchestrator) processItem(ctx context.Context, item *models.QueueItem, report *ProcessReport) {
	if err := o.queue.SetStatus(ctx, item.ID, models.QueueStatusProcessing, ""); err != nil {
		o.logger.Error().Err(err).Str("grant_id", item.ExternalID).Msg("Failed to mark item processing")
		report.Errors++
		return
	}

	if err := o.enricher.Enrich(ctx, item); err != nil {
		o.logger.Warn().Err(err).Str("grant_id", item.ExternalID).Msg("Enrichment failed, completing item")
		report.EnrichmentErrors++
	}

	if err := o.queue.SetStatus(ctx, item.ID, models.QueueStatusCompleted, ""); err != nil {
		o.logger.Error().Err(err).Str("grant_id", item.ExternalID).Msg("Failed to mark item completed")
		report.Errors++
		return
	}
	report.Completed++
}
