package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/app"
	"github.com/ternarybob/grantpost/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	fetchOnce    = flag.Bool("fetch-once", false, "Run one fetch cycle and exit")
	processOnce  = flag.Bool("process-once", false, "Run one process cycle and exit")
	manualFetch  = flag.String("keyword", "", "Fetch a single keyword and exit")
	importID     = flag.String("import", "", "Import a single grant by ID and exit")
	showStatus   = flag.Bool("status", false, "Print pipeline status and exit")
	showStats    = flag.Bool("stats", false, "Print the last 24h of operation and keyword performance and exit")
	stopPipeline = flag.Bool("stop", false, "Force release the pipeline lease and reset in-flight items")
	logLevel     = flag.String("log-level", "", "Log level (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("grantpost version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("grantpost.toml"); err == nil {
			configFiles = append(configFiles, "grantpost.toml")
		} else if _, err := os.Stat("deployments/local/grantpost.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/grantpost.toml")
		}
	}

	// Startup order: config (defaults -> files -> env), flag overrides, logger, banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, *logLevel)
	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	if command := oneShot(); command != nil {
		err := command(ctx, application)
		application.Close()
		if err != nil {
			logger.Error().Err(err).Msg("Command failed")
			os.Exit(1)
		}
		return
	}

	common.PrintBanner(common.Version)
	serve(ctx, application)
	application.Close()
}

// serve runs the scheduler (and metrics listener when enabled) until ctx is cancelled
func serve(ctx context.Context, application *app.App) {
	logger := application.Logger

	var metricsServer *http.Server
	if application.Config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(application.Monitor.Registry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:              application.Config.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		common.SafeGo(logger, "metrics-server", func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		})
		logger.Info().Str("addr", metricsServer.Addr).Msg("Metrics listener started")
	}

	application.RefreshQueueGauge(ctx)
	application.Scheduler.Start()
	logger.Info().Msg("Scheduler running - Press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Interrupt signal received, shutting down")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
}
