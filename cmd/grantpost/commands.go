package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/ternarybob/grantpost/internal/app"
)

const statsPeriod = 24 * time.Hour

type command func(ctx context.Context, application *app.App) error

// oneShot returns the command selected by flags, or nil to run the scheduler
func oneShot() command {
	switch {
	case *showStatus:
		return func(ctx context.Context, a *app.App) error {
			status, err := a.Pipeline.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(status)
		}
	case *showStats:
		return func(ctx context.Context, a *app.App) error {
			report, err := a.PerformanceReport(ctx, statsPeriod)
			if err != nil {
				return err
			}
			return printJSON(report)
		}
	case *stopPipeline:
		return func(ctx context.Context, a *app.App) error {
			result, err := a.Pipeline.Stop(ctx, true)
			if err != nil {
				return err
			}
			return printJSON(result)
		}
	case *importID != "":
		return func(ctx context.Context, a *app.App) error {
			outcome, err := a.Pipeline.ImportByID(ctx, *importID)
			if outcome != nil {
				if printErr := printJSON(outcome); printErr != nil {
					return printErr
				}
			}
			return err
		}
	case *manualFetch != "":
		return func(ctx context.Context, a *app.App) error {
			report, err := a.Pipeline.ManualFetch(ctx, *manualFetch)
			if err != nil {
				return err
			}
			return printJSON(report)
		}
	case *fetchOnce:
		return func(ctx context.Context, a *app.App) error {
			report, err := a.Pipeline.RunFetchCycle(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		}
	case *processOnce:
		return func(ctx context.Context, a *app.App) error {
			report, err := a.Pipeline.RunProcessCycle(ctx)
			if err != nil {
				return err
			}
			a.RefreshQueueGauge(ctx)
			return printJSON(report)
		}
	}
	return nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}
