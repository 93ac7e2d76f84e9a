package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebakken/memoflight/internal/cache"
	"github.com/ebakken/memoflight/internal/workers"
)

// Fires a burst of concurrent lookups at a shared memoizing cache through a
// worker pool and reports how many actually reached the compute function.

func main() {
	numRequests := flag.Int("requests", 1000, "number of concurrent lookups")
	numKeys := flag.Int("keys", 10, "number of distinct keys to spread lookups over")
	numWorkers := flag.Int("workers", 8, "size of the worker pool")
	computeDelay := flag.Duration("delay", 100*time.Millisecond, "simulated cost of one computation")
	flag.Parse()

	if *numKeys < 1 || *numRequests < 1 {
		log.Fatal("requests and keys must be positive")
	}

	resultCache := cache.New[int, int]()
	pool := workers.NewPool(resultCache, *numWorkers, *numRequests)

	var computations atomic.Int64
	square := func(ctx context.Context, key int) (int, error) {
		computations.Add(1)
		time.Sleep(*computeDelay)
		return key * key, nil
	}

	start := time.Now()

	var wg sync.WaitGroup
	var failures atomic.Int64
	for i := 0; i < *numRequests; i++ {
		key := rand.Intn(*numKeys)
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := pool.Compute(context.Background(), key, square)
			if err != nil {
				failures.Add(1)
				log.Printf("lookup for key %d failed: %v", key, err)
				return
			}
			if value != key*key {
				failures.Add(1)
				log.Printf("lookup for key %d returned %d", key, value)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	pool.Close()
	resultCache.Stop()

	stats := resultCache.Stats()
	fmt.Printf("%d lookups over %d keys in %s\n", *numRequests, *numKeys, elapsed.Round(time.Millisecond))
	fmt.Printf("computations: %d (failures: %d)\n", computations.Load(), failures.Load())
	fmt.Printf("cache stats: hits=%d misses=%d collapsed=%d failures=%d\n",
		stats.Hits, stats.Misses, stats.Collapsed, stats.Failures)
}
