package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebakken/memoflight/internal/adapters/resultrepository"
	"github.com/ebakken/memoflight/internal/adapters/upstream"
	"github.com/ebakken/memoflight/internal/cache"
	"github.com/ebakken/memoflight/internal/domain"
	e "github.com/ebakken/memoflight/internal/errors"
	"github.com/ebakken/memoflight/internal/logging"
	"github.com/ebakken/memoflight/internal/reporting"
)

const maxKeyLength = 512

type FetchResultWithCache func(ctx context.Context, key string) (*domain.Result, error)

func fetchAndPersistResult(ctx context.Context, provider upstream.Provider, repo resultrepository.ResultRepository, key string) (*domain.Result, error) {
	logger := logging.FromContext(ctx)

	result, err := provider.Fetch(ctx, key)
	if err != nil {
		// NOTE: Provider implementations handle their own error reporting
		if stale := lastPersistedResult(ctx, repo, key, err); stale != nil {
			return stale, nil
		}
		return nil, fmt.Errorf("could not fetch result: %w", err)
	}

	// Ignore cancellations from the request context and try to store the result anyway
	// Take a maximum of 1 second to not block the request for too long
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 1*time.Second)
	defer cancel()
	err = repo.StoreResult(storeCtx, result)
	if err != nil {
		// NOTE: ResultRepository implementations handle their own error reporting
		logger.Error("failed to store result", "error", err.Error())

		// NOTE: We still return the result to fulfill the request even though storing failed
	}

	return result, nil
}

// lastPersistedResult serves the most recently stored result for key when the
// upstream is unavailable. Client errors are not papered over: a 4xx means
// the key itself is bad, so nothing stale is returned for it.
func lastPersistedResult(ctx context.Context, repo resultrepository.ResultRepository, key string, fetchErr error) *domain.Result {
	if !errors.Is(fetchErr, e.UpstreamError) && !errors.Is(fetchErr, e.RatelimitExceededError) {
		return nil
	}

	logger := logging.FromContext(ctx)

	stale, err := repo.GetLatestResult(ctx, key)
	if err != nil {
		if !errors.Is(err, resultrepository.ErrResultNotFound) {
			// NOTE: ResultRepository implementations handle their own error reporting
			logger.Error("failed to load persisted result", "error", err.Error())
		}
		return nil
	}

	logger.Warn("upstream unavailable, serving last persisted result", "key", key, "computedAt", stale.ComputedAt, "fetchError", fetchErr.Error())
	return stale
}

// BuildFetchResultWithCache composes the single-flight cache with the
// upstream provider and write-through persistence. Concurrent requests for
// the same key produce one upstream fetch and one stored row.
func BuildFetchResultWithCache(
	resultCache *cache.Cache[string, *domain.Result],
	provider upstream.Provider,
	repo resultrepository.ResultRepository,
) FetchResultWithCache {
	return func(ctx context.Context, key string) (*domain.Result, error) {
		if key == "" {
			return nil, fmt.Errorf("%w: missing key", e.APIClientError)
		}
		if len(key) > maxKeyLength {
			err := fmt.Errorf("%w: key too long (%d bytes)", e.APIClientError, len(key))
			reporting.Report(ctx, err)
			return nil, err
		}

		result, err := resultCache.GetOrCompute(ctx, key, func(ctx context.Context, key string) (*domain.Result, error) {
			return fetchAndPersistResult(ctx, provider, repo, key)
		})
		if err != nil {
			// NOTE: GetOrCompute only fails if the computation does.
			// fetchAndPersistResult handles its own error reporting
			return nil, fmt.Errorf("failed to get or compute result: %w", err)
		}

		return result, nil
	}
}
