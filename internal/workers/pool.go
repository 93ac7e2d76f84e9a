package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ebakken/memoflight/internal/cache"
	"github.com/ebakken/memoflight/internal/logging"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Result is the reply sent back for a request. Exactly one of Value/Err is
// meaningful.
type Result[V any] struct {
	Value V
	Err   error
}

type request[K comparable, V any] struct {
	ctx     context.Context
	key     K
	compute cache.ComputeFunc[K, V]
	reply   chan Result[V]
}

// Pool dispatches computation requests over a channel to a fixed set of
// background workers. All workers compute through a shared cache, so the
// single-flight guarantee holds across the pool: concurrent requests for the
// same key still collapse into one computation.
type Pool[K comparable, V any] struct {
	cache    *cache.Cache[K, V]
	requests chan request[K, V]

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts numWorkers workers pulling from a queue of queueSize pending
// requests.
func NewPool[K comparable, V any](resultCache *cache.Cache[K, V], numWorkers int, queueSize int) *Pool[K, V] {
	if numWorkers < 1 {
		panic("workers: pool needs at least one worker")
	}

	pool := &Pool[K, V]{
		cache:    resultCache,
		requests: make(chan request[K, V], queueSize),
	}

	pool.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.work()
	}

	return pool
}

func (p *Pool[K, V]) work() {
	defer p.wg.Done()
	for req := range p.requests {
		p.handle(req)
	}
}

func (p *Pool[K, V]) handle(req request[K, V]) {
	// The submitter may have stopped listening by now, but other callers can
	// be waiting on the same key, so the computation must not be tied to the
	// submitter's lifetime.
	ctx := context.WithoutCancel(req.ctx)

	value, err := p.cache.GetOrCompute(ctx, req.key, req.compute)
	if err != nil {
		logging.FromContext(ctx).Error("worker computation failed", "error", err.Error())
	}

	// The reply channel is buffered, an abandoned request never blocks the worker
	req.reply <- Result[V]{Value: value, Err: err}
}

// Submit queues a computation request and returns the channel its result will
// be delivered on. The caller may stop listening at any time; the computation
// still runs to completion and populates the shared cache.
func (p *Pool[K, V]) Submit(ctx context.Context, key K, compute cache.ComputeFunc[K, V]) (<-chan Result[V], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	reply := make(chan Result[V], 1)
	select {
	case p.requests <- request[K, V]{ctx: ctx, key: key, compute: compute, reply: reply}:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to queue request: %w", ctx.Err())
	}
}

// Compute submits a request and waits for its result. If ctx ends first the
// wait is abandoned; the computation itself keeps running.
func (p *Pool[K, V]) Compute(ctx context.Context, key K, compute cache.ComputeFunc[K, V]) (V, error) {
	var zero V

	reply, err := p.Submit(ctx, key, compute)
	if err != nil {
		return zero, err
	}

	select {
	case result := <-reply:
		return result.Value, result.Err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", cache.ErrWaitAbandoned, ctx.Err())
	}
}

// Close stops accepting requests, waits for queued work to drain and for all
// workers to exit.
func (p *Pool[K, V]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.requests)
	p.mu.Unlock()

	p.wg.Wait()
}
