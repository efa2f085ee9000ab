package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/interfaces"
)

func TestLease_AcquireIsExclusiveUntilExpiry(t *testing.T) {
	lease := NewLeaseStorage(newTestDB(t), "pipeline", arbor.NewLogger())
	ctx := context.Background()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	lease.now = func() time.Time { return now }

	held, err := lease.Acquire(ctx, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, held)

	_, err = lease.Acquire(ctx, time.Hour)
	assert.ErrorIs(t, err, interfaces.ErrLeaseHeld)

	current, err := lease.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, held.Token, current.Token)

	now = now.Add(time.Hour)
	reclaimed, err := lease.Acquire(ctx, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, held.Token, reclaimed.Token)
}

func TestLease_ReleaseRequiresMatchingToken(t *testing.T) {
	lease := NewLeaseStorage(newTestDB(t), "pipeline", arbor.NewLogger())
	ctx := context.Background()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	lease.now = func() time.Time { return now }

	stale, err := lease.Acquire(ctx, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := lease.Acquire(ctx, time.Hour)
	require.NoError(t, err)

	require.NoError(t, lease.Release(ctx, stale))
	current, err := lease.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, fresh.Token, current.Token)

	require.NoError(t, lease.Release(ctx, fresh))
	current, err = lease.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestLease_ForceRelease(t *testing.T) {
	lease := NewLeaseStorage(newTestDB(t), "pipeline", arbor.NewLogger())
	ctx := context.Background()

	_, err := lease.Acquire(ctx, time.Hour)
	require.NoError(t, err)

	require.NoError(t, lease.ForceRelease(ctx))
	require.NoError(t, lease.ForceRelease(ctx))

	_, err = lease.Acquire(ctx, time.Hour)
	assert.NoError(t, err)
}
