package workers_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebakken/memoflight/internal/cache"
	"github.com/ebakken/memoflight/internal/workers"
)

func TestPoolComputesThroughSharedCache(t *testing.T) {
	t.Parallel()
	resultCache := cache.New[string, string]()
	pool := workers.NewPool(resultCache, 4, 16)
	t.Cleanup(pool.Close)

	ctx := context.Background()

	var calls atomic.Int64
	compute := func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return "value for " + key, nil
	}

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := pool.Compute(ctx, "key1", compute)
			assert.NoError(t, err)
			assert.Equal(t, "value for key1", value)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), calls.Load(), "pool requests for the same key must collapse")

	// The value is cached for direct callers as well
	value, ok := resultCache.Peek("key1")
	require.True(t, ok)
	require.Equal(t, "value for key1", value)
}

func TestPoolDistinctKeys(t *testing.T) {
	t.Parallel()
	resultCache := cache.New[int, int]()
	pool := workers.NewPool(resultCache, 4, 16)
	t.Cleanup(pool.Close)

	ctx := context.Background()
	square := func(ctx context.Context, key int) (int, error) {
		return key * key, nil
	}

	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(key int) {
			defer wg.Done()
			value, err := pool.Compute(ctx, key, square)
			assert.NoError(t, err)
			assert.Equal(t, key*key, value)
		}(i)
	}
	wg.Wait()
}

func TestPoolAbandonedCallerDoesNotCancelComputation(t *testing.T) {
	t.Parallel()
	resultCache := cache.New[string, string]()
	pool := workers.NewPool(resultCache, 1, 16)
	t.Cleanup(pool.Close)

	started := make(chan struct{})
	gate := make(chan struct{})
	var calls atomic.Int64
	compute := func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		close(started)
		<-gate
		// The worker must have detached the computation from the
		// submitter's context
		assert.NoError(t, ctx.Err())
		return "value1", nil
	}

	callerCtx, cancel := context.WithCancel(context.Background())
	reply, err := pool.Submit(callerCtx, "key1", compute)
	require.NoError(t, err)

	<-started
	cancel()
	close(gate)

	// The abandoned request still completes and populates the cache
	result := <-reply
	require.NoError(t, result.Err)
	require.Equal(t, "value1", result.Value)

	value, err := resultCache.GetOrCompute(context.Background(), "key1", func(ctx context.Context, key string) (string, error) {
		t.Error("Unreachable code executed")
		return "", nil
	})
	require.NoError(t, err)
	require.Equal(t, "value1", value)
	require.Equal(t, int64(1), calls.Load())
}

func TestPoolComputeAbandonsWaitOnContextEnd(t *testing.T) {
	t.Parallel()
	resultCache := cache.New[string, string]()
	pool := workers.NewPool(resultCache, 1, 16)
	t.Cleanup(pool.Close)

	started := make(chan struct{})
	gate := make(chan struct{})
	defer close(gate)

	go func() {
		_, _ = pool.Compute(context.Background(), "slow", func(ctx context.Context, key string) (string, error) {
			close(started)
			<-gate
			return "value1", nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := pool.Compute(ctx, "slow", func(ctx context.Context, key string) (string, error) {
		return "value2", nil
	})
	require.Error(t, err)
	require.ErrorIs(t, err, cache.ErrWaitAbandoned)
}

func TestPoolPropagatesComputationErrors(t *testing.T) {
	t.Parallel()
	resultCache := cache.New[string, string]()
	pool := workers.NewPool(resultCache, 2, 16)
	t.Cleanup(pool.Close)

	_, err := pool.Compute(context.Background(), "key1", func(ctx context.Context, key string) (string, error) {
		return "", fmt.Errorf("upstream exploded")
	})
	require.Error(t, err)
	require.ErrorIs(t, err, cache.ErrComputationFailed)

	// The failure does not poison the key
	value, err := pool.Compute(context.Background(), "key1", func(ctx context.Context, key string) (string, error) {
		return "value1", nil
	})
	require.NoError(t, err)
	require.Equal(t, "value1", value)
}

func TestPoolClose(t *testing.T) {
	t.Parallel()
	resultCache := cache.New[string, string]()
	pool := workers.NewPool(resultCache, 2, 16)

	value, err := pool.Compute(context.Background(), "key1", func(ctx context.Context, key string) (string, error) {
		return "value1", nil
	})
	require.NoError(t, err)
	require.Equal(t, "value1", value)

	pool.Close()
	// Closing twice is fine
	pool.Close()

	_, err = pool.Submit(context.Background(), "key2", func(ctx context.Context, key string) (string, error) {
		return "value2", nil
	})
	require.ErrorIs(t, err, workers.ErrPoolClosed)
}
