package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), 0))
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(cancelled, 0), context.Canceled)
	assert.ErrorIs(t, SleepContext(cancelled, time.Hour), context.Canceled)
}

func TestRunSafely_RecoversPanic(t *testing.T) {
	ran := false
	assert.NotPanics(t, func() {
		RunSafely(nil, "test", func() {
			ran = true
			panic("boom")
		})
	})
	assert.True(t, ran)
}
