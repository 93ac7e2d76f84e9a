package cache

// inflight is the handle for a single in-flight computation. The computing
// party writes value/err and then closes done; waiters only read value/err
// after done is closed. The channel close is the synchronizes-with edge that
// makes the outcome visible to every waiter.
type inflight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func newInflight[V any]() *inflight[V] {
	return &inflight[V]{done: make(chan struct{})}
}

func (f *inflight[V]) release(value V, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

type claimResult[V any] struct {
	// claimed means the caller won the race for an absent key and is now the
	// computing party. It must eventually call complete or fail for the key.
	claimed bool

	// ready means the key already holds a computed value.
	ready bool
	value V

	// flight is set when another caller owns the computation for this key.
	flight *inflight[V]
}

// store holds per-key computation state. Implementations serialize getOrClaim
// against complete/fail so that exactly one caller claims an absent key, and
// must never hold internal locks while user code runs.
type store[K comparable, V any] interface {
	getOrClaim(key K) claimResult[V]
	complete(key K, value V)
	fail(key K, err error)
	getReady(key K) (V, bool)
	stop()
}
