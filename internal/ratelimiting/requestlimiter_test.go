package ratelimiting_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebakken/memoflight/internal/ratelimiting"
)

// afterRecorder hands out already-fired timers and records the requested
// durations, so waits resolve immediately and deterministically.
type afterRecorder struct {
	mutex     sync.Mutex
	durations []time.Duration
}

func (a *afterRecorder) After(d time.Duration) <-chan time.Time {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.durations = append(a.durations, d)

	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestWindowLimitRequestLimiter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	fixedNow := func() time.Time { return start }

	t.Run("init", func(t *testing.T) {
		t.Parallel()
		l := ratelimiting.NewWindowLimitRequestLimiter(5, 10*time.Minute, time.Now, time.After)
		require.NotNil(t, l)
	})

	t.Run("first operations up to the limit run without waiting", func(t *testing.T) {
		t.Parallel()
		after := &afterRecorder{}
		l := ratelimiting.NewWindowLimitRequestLimiter(3, 10*time.Second, fixedNow, after.After)

		ran := 0
		for i := 0; i < 3; i++ {
			require.True(t, l.Limit(ctx, time.Second, func(ctx context.Context) { ran++ }))
		}
		require.Equal(t, 3, ran)
		assert.Empty(t, after.durations, "no operation should have waited")
	})

	t.Run("operation over the limit waits out the window", func(t *testing.T) {
		t.Parallel()
		after := &afterRecorder{}
		l := ratelimiting.NewWindowLimitRequestLimiter(1, 10*time.Second, fixedNow, after.After)

		require.True(t, l.Limit(ctx, time.Second, func(ctx context.Context) {}))
		require.Empty(t, after.durations)

		// The first operation finished at the fixed now, so the next one has
		// to wait out the full window.
		require.True(t, l.Limit(ctx, time.Second, func(ctx context.Context) {}))
		require.Equal(t, []time.Duration{10 * time.Second}, after.durations)
	})

	t.Run("limiters don't share state", func(t *testing.T) {
		t.Parallel()
		l1 := ratelimiting.NewWindowLimitRequestLimiter(1, 1*time.Hour, time.Now, time.After)
		l2 := ratelimiting.NewWindowLimitRequestLimiter(1, 1*time.Hour, time.Now, time.After)
		require.True(t, l1.Limit(ctx, 1*time.Second, func(ctx context.Context) {}))
		require.True(t, l2.Limit(ctx, 1*time.Second, func(ctx context.Context) {}))
	})

	t.Run("canceled context refuses the operation", func(t *testing.T) {
		t.Parallel()
		l := ratelimiting.NewWindowLimitRequestLimiter(1, 10*time.Second, fixedNow, time.After)

		canceledCtx, cancel := context.WithCancel(ctx)
		cancel()

		ran := l.Limit(canceledCtx, time.Second, func(ctx context.Context) {
			t.Error("operation should not run")
		})
		require.False(t, ran)
	})

	t.Run("wait overrunning the deadline refuses the operation", func(t *testing.T) {
		t.Parallel()
		after := &afterRecorder{}
		l := ratelimiting.NewWindowLimitRequestLimiter(1, 10*time.Second, fixedNow, after.After)

		require.True(t, l.Limit(ctx, time.Second, func(ctx context.Context) {}))

		// The next operation would have to wait 10s, but only 5s remain.
		deadlineCtx, cancel := context.WithDeadline(ctx, start.Add(5*time.Second))
		defer cancel()

		ran := l.Limit(deadlineCtx, time.Second, func(ctx context.Context) {
			t.Error("operation should not run")
		})
		require.False(t, ran)
		assert.Empty(t, after.durations, "refused operation should not have waited")
	})

	t.Run("cancelable operation that declines does not count against the window", func(t *testing.T) {
		t.Parallel()
		after := &afterRecorder{}
		l := ratelimiting.NewWindowLimitRequestLimiter(1, 10*time.Second, fixedNow, after.After)

		ran := l.LimitCancelable(ctx, time.Second, func(ctx context.Context) bool { return false })
		require.False(t, ran)

		// The declined attempt left the window untouched, so this runs
		// without waiting.
		require.True(t, l.Limit(ctx, time.Second, func(ctx context.Context) {}))
		assert.Empty(t, after.durations)
	})
}
