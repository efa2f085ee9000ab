package common

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ternarybob/arbor"
)

// SafeGo runs fn in a goroutine, logging instead of crashing on panic
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	go RunSafely(logger, name, fn)
}

// RunSafely runs fn on the calling goroutine with panic recovery.
// cron jobs use this directly since cron already owns the goroutine.
func RunSafely(logger arbor.ILogger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)

			if logger == nil {
				fmt.Fprintf(os.Stderr, "PANIC in %s: %v\n%s\n", name, r, buf[:n])
				return
			}
			logger.Error().
				Str("goroutine", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Recovered from panic - continuing service operation")
		}
	}()

	fn()
}

// SleepContext waits for d or until ctx is done, returning ctx.Err() in
// the latter case. A non-positive d only reports cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
