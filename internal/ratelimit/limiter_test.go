// Copyright Peton Labs, 2026. All rights reserved.

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// newFakeClock returns a limiter whose clock is controlled by the test
// and whose sleeps advance the clock instead of blocking.
func newFakeClock(t *testing.T, cfg types.RateLimitConfig) (*Limiter, *time.Time, *[]time.Duration) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration
	l := New(cfg, nil)
	l.now = func() time.Time { return now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}
	return l, &now, &slept
}

func TestAdmitUnderBudget(t *testing.T) {
	l, _, slept := newFakeClock(t, types.RateLimitConfig{APIRequestsPerMinute: 3})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Admit(context.Background(), ServiceAPI))
	}
	assert.Empty(t, *slept)
}

func TestAdmitBlocksOverBudget(t *testing.T) {
	l, now, slept := newFakeClock(t, types.RateLimitConfig{APIRequestsPerMinute: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Admit(ctx, ServiceAPI))
		*now = now.Add(time.Second)
	}

	// 4th call must wait until the oldest timestamp leaves the window:
	// > 0 and <= 60s.
	require.NoError(t, l.Admit(ctx, ServiceAPI))
	require.Len(t, *slept, 1)
	assert.Greater(t, (*slept)[0], time.Duration(0))
	assert.LessOrEqual(t, (*slept)[0], time.Minute)
}

func TestAdmitPurgesOldTimestamps(t *testing.T) {
	l, now, slept := newFakeClock(t, types.RateLimitConfig{APIRequestsPerMinute: 2})
	ctx := context.Background()

	require.NoError(t, l.Admit(ctx, ServiceAPI))
	require.NoError(t, l.Admit(ctx, ServiceAPI))

	*now = now.Add(61 * time.Second)
	require.NoError(t, l.Admit(ctx, ServiceAPI))
	assert.Empty(t, *slept)
}

func TestAdmitUnknownService(t *testing.T) {
	l, _, slept := newFakeClock(t, types.RateLimitConfig{APIRequestsPerMinute: 1})
	require.NoError(t, l.Admit(context.Background(), "nope"))
	assert.Empty(t, *slept)
}

func TestAdmitBaseDelay(t *testing.T) {
	l, _, slept := newFakeClock(t, types.RateLimitConfig{
		APIRequestsPerMinute: 10,
		BaseDelay:            50 * time.Millisecond,
	})
	require.NoError(t, l.Admit(context.Background(), ServiceAPI))
	require.Len(t, *slept, 1)
	assert.Equal(t, 50*time.Millisecond, (*slept)[0])
}

func TestAdmitContextCancelled(t *testing.T) {
	cfg := types.RateLimitConfig{APIRequestsPerMinute: 1}
	l := New(cfg, nil)

	ctx := context.Background()
	require.NoError(t, l.Admit(ctx, ServiceAPI))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := l.Admit(cancelled, ServiceAPI)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDoubles(t *testing.T) {
	l, _, slept := newFakeClock(t, types.RateLimitConfig{
		BaseDelay:  time.Second,
		MaxBackoff: 10 * time.Second,
	})
	ctx := context.Background()

	require.NoError(t, l.Backoff(ctx, 0))
	require.NoError(t, l.Backoff(ctx, 1))
	require.NoError(t, l.Backoff(ctx, 2))
	require.NoError(t, l.Backoff(ctx, 6)) // would be 64s, capped

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 10 * time.Second,
	}, *slept)
}

func TestStatus(t *testing.T) {
	l, _, _ := newFakeClock(t, types.RateLimitConfig{APIRequestsPerMinute: 2})
	ctx := context.Background()

	require.NoError(t, l.Admit(ctx, ServiceAPI))
	st := l.Status()[ServiceAPI]
	assert.Equal(t, 1, st.Recent)
	assert.Equal(t, 1, st.Remaining)
	assert.Zero(t, st.ResetIn)

	require.NoError(t, l.Admit(ctx, ServiceAPI))
	st = l.Status()[ServiceAPI]
	assert.Equal(t, 0, st.Remaining)
	assert.Greater(t, st.ResetIn, time.Duration(0))
}

func TestReset(t *testing.T) {
	l, _, _ := newFakeClock(t, types.RateLimitConfig{APIRequestsPerMinute: 1})
	require.NoError(t, l.Admit(context.Background(), ServiceAPI))
	l.Reset(ServiceAPI)
	assert.Zero(t, l.Status()[ServiceAPI].Recent)

	require.NoError(t, l.Admit(context.Background(), ServiceAPI))
	l.ResetAll()
	assert.Zero(t, l.Status()[ServiceAPI].Recent)
}
