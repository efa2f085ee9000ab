package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestRegisterJob(t *testing.T) {
	s := NewService(arbor.NewLogger())
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.RegisterJob("fetch", "0 0 * * * *", noop))
	assert.Error(t, s.RegisterJob("fetch", "0 0 * * * *", noop))
	assert.Error(t, s.RegisterJob("bad", "every hour", noop))
	require.NoError(t, s.RegisterJob("disabled", "", noop))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "fetch", jobs[0].Name)
}

func TestExecuteJob_RecordsOutcome(t *testing.T) {
	s := NewService(arbor.NewLogger())
	require.NoError(t, s.RegisterJob("failing", "0 0 * * * *", func(ctx context.Context) error {
		return errors.New("upstream down")
	}))
	require.NoError(t, s.RegisterJob("panicking", "0 0 * * * *", func(ctx context.Context) error {
		panic("boom")
	}))

	s.executeJob("failing")
	s.executeJob("panicking")

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "upstream down", jobs[0].LastError)
	assert.NotNil(t, jobs[0].LastRun)
	assert.False(t, jobs[1].IsRunning)
	assert.NotNil(t, jobs[1].LastRun)
}

func TestTriggerJob(t *testing.T) {
	s := NewService(arbor.NewLogger())
	var runs int32
	require.NoError(t, s.RegisterJob("process", "0 */5 * * * *", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}))

	require.NoError(t, s.TriggerJob("process"))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 10*time.Millisecond)
	assert.Error(t, s.TriggerJob("missing"))
}

func TestStop_CancelsJobContext(t *testing.T) {
	s := NewService(arbor.NewLogger())
	s.Start()
	s.Stop()
	assert.Error(t, s.ctx.Err())
	s.Stop()
}
