package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebakken/memoflight/internal/logging"
)

var (
	// ErrComputationFailed wraps errors returned by a compute function. Every
	// caller waiting on the failed computation receives the same error value,
	// and the key is released so later calls retry fresh.
	ErrComputationFailed = errors.New("computation failed")

	// ErrWaitAbandoned is returned when a waiter's context ends before the
	// computation it is waiting on does. The computation itself keeps running
	// for the benefit of the remaining waiters.
	ErrWaitAbandoned = errors.New("abandoned wait for computation")
)

// ComputeFunc produces the value for a key. It must be deterministic for the
// key: the cache calls it at most once per successful completion and shares
// the result with every concurrent caller.
type ComputeFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache is a keyed single-flight memoizing cache. Any number of goroutines
// may call GetOrCompute concurrently with any mix of keys; concurrent calls
// for the same absent key collapse into one execution of the compute
// function.
type Cache[K comparable, V any] struct {
	store store[K, V]
	stats statsCounters
}

// New returns an unbounded cache: entries live until the cache is dropped.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{store: newBasicStore[K, V]()}
}

// NewTTL returns a cache whose completed entries expire after ttl.
// In-flight computations never expire.
func NewTTL[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{store: newTTLStore[K, V](ttl)}
}

// Stop releases background resources (the TTL janitor). Calls to
// GetOrCompute after Stop still work, but entries no longer expire.
func (c *Cache[K, V]) Stop() {
	c.store.stop()
}

// GetOrCompute returns the cached value for key, computing it with compute if
// no value exists yet. Exactly one caller runs compute for an absent key; the
// rest wait and receive the same outcome. The compute function runs outside
// any internal lock, so slow computations for one key never block other keys.
//
// ctx only bounds this caller's wait: cancellation while another caller is
// computing abandons the wait without affecting the computation or the store.
func (c *Cache[K, V]) GetOrCompute(ctx context.Context, key K, compute ComputeFunc[K, V]) (V, error) {
	logger := logging.FromContext(ctx)
	result := c.store.getOrClaim(key)

	if result.claimed {
		logger.InfoContext(ctx, "Computing value", "cache", "miss")
		c.stats.misses.Add(1)
		return c.computeAndPublish(ctx, key, compute)
	}

	if result.ready {
		logger.InfoContext(ctx, "Returning cached value", "cache", "hit")
		c.stats.hits.Add(1)
		return result.value, nil
	}

	logger.InfoContext(ctx, "Waiting for in-flight computation", "cache", "wait")
	c.stats.collapsed.Add(1)

	var zero V
	select {
	case <-result.flight.done:
		if result.flight.err != nil {
			return zero, result.flight.err
		}
		return result.flight.value, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrWaitAbandoned, ctx.Err())
	}
}

// computeAndPublish runs compute as the computing party and publishes the
// outcome. The claim is always released, including when compute panics, so a
// key can never be stuck pending.
func (c *Cache[K, V]) computeAndPublish(ctx context.Context, key K, compute ComputeFunc[K, V]) (V, error) {
	c.stats.inFlight.Add(1)
	defer c.stats.inFlight.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			c.stats.failures.Add(1)
			c.store.fail(key, fmt.Errorf("%w: computation panicked: %v", ErrComputationFailed, r))
			panic(r)
		}
	}()

	value, err := compute(ctx, key)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrComputationFailed, err)
		c.stats.failures.Add(1)
		c.store.fail(key, wrapped)
		var zero V
		return zero, wrapped
	}

	c.store.complete(key, value)
	return value, nil
}

// Peek returns the value for key without computing anything.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	return c.store.getReady(key)
}
