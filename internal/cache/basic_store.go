package cache

import (
	"fmt"
	"sync"
)

// basicStore keeps computed values forever. In-flight claims live in a
// separate map from completed values so that a value store with its own
// locking (see ttlStore) can reuse the same claim bookkeeping.
type basicStore[K comparable, V any] struct {
	mu      sync.Mutex
	flights map[K]*inflight[V]
	values  map[K]V
}

func newBasicStore[K comparable, V any]() *basicStore[K, V] {
	return &basicStore[K, V]{
		flights: make(map[K]*inflight[V]),
		values:  make(map[K]V),
	}
}

func (s *basicStore[K, V]) getOrClaim(key K) claimResult[V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, ok := s.values[key]; ok {
		return claimResult[V]{ready: true, value: value}
	}

	if flight, ok := s.flights[key]; ok {
		return claimResult[V]{flight: flight}
	}

	s.flights[key] = newInflight[V]()
	return claimResult[V]{claimed: true}
}

func (s *basicStore[K, V]) complete(key K, value V) {
	s.mu.Lock()
	flight, ok := s.flights[key]
	if !ok {
		s.mu.Unlock()
		panic(fmt.Sprintf("cache: complete called for key %v with no claimed computation", key))
	}
	delete(s.flights, key)
	s.values[key] = value
	s.mu.Unlock()

	flight.release(value, nil)
}

func (s *basicStore[K, V]) fail(key K, err error) {
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

func (s *basicStore[K, V]) getReady(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.values[key]
	return value, ok
}

func (s *basicStore[K, V]) stop() {}
