package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ttlStore keeps completed values in a ttlcache so entries expire instead of
// accumulating forever. Claims are tracked separately from values: an
// in-flight computation must not disappear under the computing party, so
// flights live in a plain map and only completed values get a TTL.
type ttlStore[K comparable, V any] struct {
	mu      sync.Mutex
	flights map[K]*inflight[V]
	values  *ttlcache.Cache[K, V]
}

func newTTLStore[K comparable, V any](ttl time.Duration) *ttlStore[K, V] {
	values := ttlcache.New[K, V](
		ttlcache.WithTTL[K, V](ttl),
		ttlcache.WithDisableTouchOnHit[K, V](),
	)
	go values.Start()

	return &ttlStore[K, V]{
		flights: make(map[K]*inflight[V]),
		values:  values,
	}
}

func (s *ttlStore[K, V]) getOrClaim(key K) claimResult[V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.values.Get(key); item != nil {
		return claimResult[V]{ready: true, value: item.Value()}
	}

	if flight, ok := s.flights[key]; ok {
		return claimResult[V]{flight: flight}
	}

	s.flights[key] = newInflight[V]()
	return claimResult[V]{claimed: true}
}

func (s *ttlStore[K, V]) complete(key K, value V) {
	s.mu.Lock()
	flight, ok := s.flights[key]
	if !ok {
		s.mu.Unlock()
		panic(fmt.Sprintf("cache: complete called for key %v with no claimed computation", key))
	}
	delete(s.flights, key)
	s.values.Set(key, value, ttlcache.DefaultTTL)
	s.mu.Unlock()

	flight.release(value, nil)
}

func (s *ttlStore[K, V]) fail(key K, err error) {
	s.mu.Lock()
	flight, ok := s.flights[key]
	if !ok {
		s.mu.Unlock()
		panic(fmt.Sprintf("cache: fail called for key %v with no claimed computation", key))
	}
	delete(s.flights, key)
	s.mu.Unlock()

	var zero V
	flight.release(zero, err)
}

func (s *ttlStore[K, V]) getReady(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.values.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

func (s *ttlStore[K, V]) stop() {
	s.values.Stop()
}
