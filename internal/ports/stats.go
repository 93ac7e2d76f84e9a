package ports

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ebakken/memoflight/internal/cache"
	"github.com/ebakken/memoflight/internal/logging"
)

// MakeCacheStatsHandler serves GET /v1/stats: a snapshot of the cache's
// hit/miss/in-flight counters.
func MakeCacheStatsHandler(
	statsFunc func() cache.Stats,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		statsBytes, err := json.Marshal(statsFunc())
		if err != nil {
			logger.Error("Failed to marshal cache stats", "error", err.Error())
			writeErrorResponse(ctx, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(statsBytes)
	}

	return ComposeMiddlewares(
		sentryMiddleware,
		logging.NewRequestLoggerMiddleware(rootLogger),
		buildMetricsMiddleware("stats"),
		BuildCORSMiddleware(allowedOrigins),
	)(handler)
}
