// Package pipeline runs the grant fetch and processing cycles behind a
// single shared lease.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/jgrants"
	"github.com/ternarybob/grantpost/internal/models"
	"github.com/ternarybob/grantpost/internal/services/content"
)

// ErrAlreadyRunning is returned when another cycle holds the lease
var ErrAlreadyRunning = errors.New("pipeline is already running")

// Performance log operation names
const (
	OperationFetchCycle   = "fetch_cycle"
	OperationManualFetch  = "manual_fetch"
	OperationImportByID   = "import_by_id"
	OperationProcessCycle = "process_cycle"
)

// State keys
const (
	stateLastFetch   = "last_fetch"
	stateLastProcess = "last_process"
)

// SearchClient is the subset of *jgrants.Client the pipeline drives
type SearchClient interface {
	SearchByKeywords(ctx context.Context, queries []jgrants.KeywordQuery) ([]models.GrantSummary, error)
	FetchDetailErr(ctx context.Context, externalID string) (*models.GrantDetail, error)
	CheckHealth(ctx context.Context) bool
}

// KeywordSource provides keywords, per-keyword options and exclude terms
type KeywordSource interface {
	Queries() []jgrants.KeywordQuery
	OptionsFor(keyword string) jgrants.SearchOptions
	ExcludeTerms() []string
}

// RecordBuilder maps a grant detail onto content record fields
type RecordBuilder interface {
	Build(detail *models.GrantDetail, sourceKeyword string) (*models.ContentFields, error)
}

// Dependencies are the collaborators of an Orchestrator.
// Enricher and Tracker may be nil.
type Dependencies struct {
	Search      SearchClient
	Keywords    KeywordSource
	Builder     RecordBuilder
	Content     interfaces.ContentStore
	Queue       interfaces.QueueStorage
	Cache       interfaces.DetailCache
	Lease       interfaces.Lease
	State       interfaces.KeyValueStorage
	Enricher    interfaces.Enricher
	Tracker     interfaces.OperationTracker
}

// Config holds the pipeline tunables
type Config struct {
	LeaseTTL        time.Duration
	BatchSize       int
	ItemDelay       time.Duration
	DefaultPriority int
	HealthCacheTTL  time.Duration
}

// Orchestrator coordinates fetching, importing and processing of grants
type Orchestrator struct {
	search      SearchClient
	keywords    KeywordSource
	builder     RecordBuilder
	content     interfaces.ContentStore
	queue       interfaces.QueueStorage
	cache       interfaces.DetailCache
	lease       interfaces.Lease
	state       interfaces.KeyValueStorage
	enricher    interfaces.Enricher
	tracker     interfaces.OperationTracker
	config      Config
	logger      arbor.ILogger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	healthMu        sync.Mutex
	healthy         bool
	healthCheckedAt time.Time
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(deps Dependencies, config Config, logger arbor.ILogger) *Orchestrator {
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.HealthCacheTTL <= 0 {
		config.HealthCacheTTL = 5 * time.Minute
	}

	enricher := deps.Enricher
	if enricher == nil {
		enricher = content.NoopEnricher{}
	}

	return &Orchestrator{
		search:      deps.Search,
		keywords:    deps.Keywords,
		builder:     deps.Builder,
		content:     deps.Content,
		queue:       deps.Queue,
		cache:       deps.Cache,
		lease:       deps.Lease,
		state:       deps.State,
		enricher:    enricher,
		tracker:     deps.Tracker,
		config:      config,
		logger:      logger,
		now:         time.Now,
		sleep:       common.SleepContext,
	}
}

// withLease runs fn while holding the pipeline lease. The lease is
// released on return and on panic; a panic is returned as an error.
func (o *Orchestrator) withLease(ctx context.Context, operation string, fn func(ctx context.Context) error) (err error) {
	lease, err := o.lease.Acquire(ctx, o.config.LeaseTTL)
	if errors.Is(err, interfaces.ErrLeaseHeld) {
		o.logger.Info().Str("operation", operation).Msg("Pipeline busy, skipping")
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", operation, r)
			o.logger.Error().Str("operation", operation).Err(err).Msg("Pipeline operation panicked")
		}
		if releaseErr := o.lease.Release(context.WithoutCancel(ctx), lease); releaseErr != nil {
			o.logger.Warn().Err(releaseErr).Str("operation", operation).Msg("Failed to release lease")
		}
	}()

	return fn(ctx)
}

type untracked struct{}

func (untracked) Finish(ctx context.Context, success bool, details map[string]int64) *models.PerformanceLogEntry {
	return nil
}

func (o *Orchestrator) track(operation string) interfaces.TrackedOperation {
	if o.tracker == nil {
		return untracked{}
	}
	return o.tracker.Track(operation)
}

func (o *Orchestrator) markTime(ctx context.Context, key string) {
	if err := o.state.SetTime(ctx, key, o.now()); err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("Failed to record pipeline state")
	}
}

// StopResult describes what Stop did
type StopResult struct {
	WasRunning bool `json:"was_running"`
	Released   bool `json:"released"`
	Reset      int  `json:"reset"`
}

// Stop reports whether a cycle holds the lease. With force it also
// releases the lease and returns processing items to pending. Content
// writes already made are kept.
func (o *Orchestrator) Stop(ctx context.Context, force bool) (*StopResult, error) {
	current, err := o.lease.Current(ctx)
	if err != nil {
		return nil, err
	}
	result := &StopResult{WasRunning: current != nil}
	if !force {
		return result, nil
	}

	if err := o.lease.ForceRelease(ctx); err != nil {
		return result, fmt.Errorf("failed to release lease: %w", err)
	}
	result.Released = true

	reset, err := o.queue.ResetProcessingToPending(ctx)
	result.Reset = reset
	if err != nil {
		return result, fmt.Errorf("failed to reset processing items: %w", err)
	}

	o.logger.Warn().
		Bool("was_running", result.WasRunning).
		Int("reset", reset).
		Msg("Pipeline force stopped")
	return result, nil
}

// Status is a point-in-time view of the pipeline
type Status struct {
	IsProcessing   bool       `json:"is_processing"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	LastFetch      *time.Time `json:"last_fetch,omitempty"`
	LastProcess    *time.Time `json:"last_process,omitempty"`
	QueueCount     int        `json:"queue_count"`
	PendingCount   int        `json:"pending_count"`
	TodayProcessed int        `json:"today_processed"`
	APIHealthy     bool       `json:"api_healthy"`
}

// Status collects lease, queue and API health state
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	status := &Status{}

	current, err := o.lease.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		status.IsProcessing = true
		expires := current.ExpiresAt
		status.LeaseExpiresAt = &expires
	}

	status.LastFetch = o.readTime(ctx, stateLastFetch)
	status.LastProcess = o.readTime(ctx, stateLastProcess)

	if status.QueueCount, err = o.queue.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}
	if status.PendingCount, err = o.queue.PendingCount(ctx); err != nil {
		return nil, fmt.Errorf("failed to count pending items: %w", err)
	}

	now := o.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if status.TodayProcessed, err = o.queue.CountCompletedSince(ctx, midnight); err != nil {
		return nil, fmt.Errorf("failed to count processed items: %w", err)
	}

	status.APIHealthy = o.apiHealthy(ctx)
	return status, nil
}

func (o *Orchestrator) readTime(ctx context.Context, key string) *time.Time {
	t, err := o.state.GetTime(ctx, key)
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

// apiHealthy probes the upstream API at most once per HealthCacheTTL
func (o *Orchestrator) apiHealthy(ctx context.Context) bool {
	o.healthMu.Lock()
	defer o.healthMu.Unlock()

	now := o.now()
	if !o.healthCheckedAt.IsZero() && now.Sub(o.healthCheckedAt) < o.config.HealthCacheTTL {
		return o.healthy
	}
	o.healthy = o.search.CheckHealth(ctx)
	o.healthCheckedAt = now
	return o.healthy
}

// OnRecordDeleted drops the queue row and cached detail for a deleted record
func (o *Orchestrator) OnRecordDeleted(ctx context.Context, externalID string) error {
	var errs []error
	if err := o.queue.RemoveByExternalID(ctx, externalID); err != nil {
		errs = append(errs, err)
	}
	if err := o.cache.Delete(ctx, jgrants.CacheKey(externalID)); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete cached detail: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	o.logger.Debug().Str("grant_id", externalID).Msg("Pipeline state removed for deleted record")
	return nil
}

// DeleteRecord deletes the content record for externalID, then its pipeline state
func (o *Orchestrator) DeleteRecord(ctx context.Context, externalID string) error {
	record, err := o.content.FindByExternalID(ctx, externalID)
	switch {
	case errors.Is(err, interfaces.ErrRecordNotFound):
	case err != nil:
		return err
	default:
		if err := o.content.Delete(ctx, record.ID); err != nil {
			return err
		}
	}
	return o.OnRecordDeleted(ctx, externalID)
}
