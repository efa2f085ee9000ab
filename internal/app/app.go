package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/httpclient"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/jgrants"
	"github.com/ternarybob/grantpost/internal/models"
	"github.com/ternarybob/grantpost/internal/services/content"
	"github.com/ternarybob/grantpost/internal/services/keywords"
	"github.com/ternarybob/grantpost/internal/services/lease"
	"github.com/ternarybob/grantpost/internal/services/llm"
	"github.com/ternarybob/grantpost/internal/services/performance"
	"github.com/ternarybob/grantpost/internal/services/pipeline"
	"github.com/ternarybob/grantpost/internal/services/scheduler"
	badgerstore "github.com/ternarybob/grantpost/internal/storage/badger"
	redisstore "github.com/ternarybob/grantpost/internal/storage/redis"
)

// Scheduled job names
const (
	JobFetch      = "fetch"
	JobProcess    = "process"
	JobCacheSweep = "cache_sweep"
	JobLogCleanup = "log_cleanup"
)

const leaseName = "pipeline"

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager *badgerstore.Manager
	Lease          interfaces.Lease

	Search    *jgrants.Client
	Keywords  *keywords.Strategy
	Monitor   *performance.Monitor
	Generator interfaces.TextGenerator
	Processor *content.Processor
	Pipeline  *pipeline.Orchestrator
	Scheduler *scheduler.Service

	redis *redis.Client
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initLease(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize lease: %w", err)
	}

	if err := app.initServices(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initScheduler(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	logger.Info().
		Str("lease_backend", cfg.Lease.Backend).
		Str("generator", app.Generator.Name()).
		Bool("seo", cfg.SEO.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initDatabase() error {
	manager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.StorageManager = manager
	return nil
}

// initLease selects the single-flight lock backend
func (a *App) initLease(ctx context.Context) error {
	switch a.Config.Lease.Backend {
	case "redis":
		client := redisstore.NewClient(&a.Config.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("redis %s unreachable: %w", a.Config.Redis.Addr, err)
		}
		a.redis = client
		a.Lease = redisstore.NewLease(client, a.Config.Redis.KeyPrefix, leaseName, a.Logger)
	case "memory":
		a.Lease = lease.NewMemory(leaseName)
	default:
		a.Lease = a.StorageManager.LeaseStorage()
	}
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	cfg := a.Config
	storage := a.StorageManager

	a.Monitor = performance.NewMonitor(storage.LogStorage(), a.Logger)
	a.Keywords = keywords.NewStrategy(&cfg.Keywords, storage.LogStorage(), a.Logger)

	baseURL, err := common.ApplyScheme(cfg.API.BaseURL, cfg.API.UseHTTPS)
	if err != nil {
		return err
	}

	executor := httpclient.NewClient(
		httpclient.WithTimeout(common.ParseDurationOr(cfg.API.Timeout, 45*time.Second)),
		httpclient.WithMaxRetries(cfg.API.MaxRetries),
		httpclient.WithInitialBackoff(common.ParseDurationOr(cfg.API.InitialBackoff, time.Second)),
		httpclient.WithUserAgent(cfg.API.UserAgent),
		httpclient.WithLogger(a.Logger),
	)

	a.Search = jgrants.NewClient(
		jgrants.WithBaseURL(baseURL),
		jgrants.WithExecutor(executor),
		jgrants.WithCache(storage.CacheStorage()),
		jgrants.WithFetchRecorder(a.Monitor),
		jgrants.WithOperationTracker(a.Monitor),
		jgrants.WithLogger(a.Logger),
		jgrants.WithRequestDelay(common.ParseDurationOr(cfg.API.RequestDelay, jgrants.DefaultRequestDelay)),
		jgrants.WithDetailTTL(common.ParseDurationOr(cfg.API.DetailCacheTTL, jgrants.DefaultDetailTTL)),
		jgrants.WithDetailSpacing(common.ParseDurationOr(cfg.API.DetailSpacing, jgrants.DefaultDetailSpacing)),
	)

	a.Generator = llm.NewGenerator(ctx, cfg, a.Logger)

	var writer interfaces.MetadataWriter = content.NoopMetadataWriter{}
	if cfg.SEO.Enabled {
		writer = content.NewSEOWriter(storage.ContentStorage(), a.Logger)
	}
	a.Processor = content.NewProcessor(storage.ContentStorage(), a.Generator, writer, a.Logger)

	a.Pipeline = pipeline.NewOrchestrator(pipeline.Dependencies{
		Search:      a.Search,
		Keywords:    a.Keywords,
		Builder:     content.NewBuilder(cfg.Processing.AutoPublish),
		Content:     storage.ContentStorage(),
		Queue:       storage.QueueStorage(),
		Cache:       storage.CacheStorage(),
		Lease:       a.Lease,
		State:       storage.KeyValueStorage(),
		Enricher:    a.Processor,
		Tracker:     a.Monitor,
	}, pipeline.Config{
		LeaseTTL:        common.ParseDurationOr(cfg.Lease.TTL, time.Hour),
		BatchSize:       cfg.Processing.BatchSize,
		ItemDelay:       common.ParseDurationOr(cfg.Processing.ItemDelay, 2*time.Second),
		DefaultPriority: cfg.Processing.DefaultPriority,
		HealthCacheTTL:  common.ParseDurationOr(cfg.API.HealthCacheTTL, 5*time.Minute),
	}, a.Logger)

	return nil
}

// initScheduler registers the periodic jobs; Start runs them
func (a *App) initScheduler() error {
	a.Scheduler = scheduler.NewService(a.Logger)
	schedule := a.Config.Schedule
	retention := common.ParseDurationOr(schedule.LogRetention, 30*24*time.Hour)

	jobs := []struct {
		name     string
		schedule string
		handler  scheduler.Handler
	}{
		{JobFetch, schedule.Fetch, a.fetchJob},
		{JobProcess, schedule.Process, a.processJob},
		{JobCacheSweep, schedule.CacheSweep, a.cacheSweepJob},
		{JobLogCleanup, schedule.LogCleanup, func(ctx context.Context) error {
			_, err := a.Monitor.Cleanup(ctx, retention)
			return err
		}},
	}

	for _, job := range jobs {
		if err := a.Scheduler.RegisterJob(job.name, job.schedule, job.handler); err != nil {
			return err
		}
	}
	return nil
}

// cacheSweepJob drops expired details, then reclaims the space they held
func (a *App) cacheSweepJob(ctx context.Context) error {
	removed, err := a.StorageManager.CacheStorage().SweepExpired(ctx)
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	_, err = a.StorageManager.ReclaimSpace()
	return err
}

func (a *App) fetchJob(ctx context.Context) error {
	_, err := a.Pipeline.RunFetchCycle(ctx)
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		return nil
	}
	a.RefreshQueueGauge(ctx)
	return err
}

func (a *App) processJob(ctx context.Context) error {
	_, err := a.Pipeline.RunProcessCycle(ctx)
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		return nil
	}
	a.RefreshQueueGauge(ctx)
	return err
}

// PerformanceReport is the operation and keyword summary for a period
type PerformanceReport struct {
	Period     string                  `json:"period"`
	Operations []models.OperationStats `json:"operations"`
	Keywords   []models.KeywordStat    `json:"keywords"`
}

// PerformanceReport aggregates timed operations and keyword searches from
// the last period
func (a *App) PerformanceReport(ctx context.Context, period time.Duration) (*PerformanceReport, error) {
	operations, err := a.Monitor.Stats(ctx, period)
	if err != nil {
		return nil, err
	}
	keywordStats, err := a.Keywords.AnalyzePerformance(ctx, time.Now().Add(-period))
	if err != nil {
		return nil, err
	}
	return &PerformanceReport{
		Period:     period.String(),
		Operations: operations,
		Keywords:   keywordStats,
	}, nil
}

// RefreshQueueGauge publishes the pending queue depth to the metrics registry
func (a *App) RefreshQueueGauge(ctx context.Context) {
	pending, err := a.StorageManager.QueueStorage().PendingCount(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to count pending queue items")
		return
	}
	a.Monitor.SetQueuePending(pending)
}

// Close stops the scheduler and releases storage and connections
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}

	a.Logger.Info().Msg("Application closed")
	return errors.Join(errs...)
}
