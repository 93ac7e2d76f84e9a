package ports

import (
	"log/slog"
	"net/http"

	"github.com/ebakken/memoflight/internal/app"
	"github.com/ebakken/memoflight/internal/logging"
	"github.com/ebakken/memoflight/internal/ratelimiting"
)

// MakeGetResourceHandler serves GET /v1/resource?key=<key>: the memoized
// read-through entry point.
func MakeGetResourceHandler(
	fetchResult app.FetchResultWithCache,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	ipLimiter, _ := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(8),
		ratelimiting.BurstSize(480),
	)
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(ipLimiter, ratelimiting.IPKeyFunc)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)
		key := r.URL.Query().Get("key")

		result, err := fetchResult(ctx, key)
		if err != nil {
			logger.Error("Error getting resource", "error", err.Error())
			statusCode := writeErrorResponse(ctx, w, err)
			logger.Info("Returning response", "statusCode", statusCode, "reason", "error")
			return
		}

		logger.Info("Returning response", "statusCode", result.StatusCode, "reason", "success", "contentLength", len(result.Data))
		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("X-Computed-At", result.ComputedAt.UTC().Format(http.TimeFormat))
		w.WriteHeader(result.StatusCode)
		w.Write(result.Data)
	}

	return ComposeMiddlewares(
		sentryMiddleware,
		logging.NewRequestLoggerMiddleware(rootLogger),
		buildMetricsMiddleware("resource"),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(ipRateLimiter, rateLimitExceededHandler),
	)(handler)
}
