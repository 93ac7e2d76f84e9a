package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/ebakken/memoflight/internal/adapters/database"
	"github.com/ebakken/memoflight/internal/adapters/resultrepository"
	"github.com/ebakken/memoflight/internal/adapters/upstream"
	"github.com/ebakken/memoflight/internal/app"
	"github.com/ebakken/memoflight/internal/cache"
	"github.com/ebakken/memoflight/internal/config"
	"github.com/ebakken/memoflight/internal/domain"
	"github.com/ebakken/memoflight/internal/ports"
	"github.com/ebakken/memoflight/internal/reporting"
	"github.com/ebakken/memoflight/internal/telemetry"
)

const SERVICE_NAME = "memoflight"

// TODO: Put in config
const RESULT_TTL = 1 * time.Minute
const PROD_DOMAIN_SUFFIX = "memoflight.dev"
const STAGING_DOMAIN_SUFFIX = "memoflight.pages.dev"

func main() {
	ctx := context.Background()

	instanceID := uuid.New().String()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	otelShutdown, err := telemetry.SetupOTelSDK(ctx, SERVICE_NAME)
	if err != nil {
		fail("Failed to set up OpenTelemetry SDK", "error", err.Error())
	}
	defer func() {
		err := otelShutdown(context.Background())
		if err != nil {
			logger.Error("Failed to shut down OpenTelemetry SDK", "error", err.Error())
		}
	}()

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	logger.Info("Initializing database connection")
	db, err := database.NewConfiguredPostgresDatabase(config)
	if err != nil {
		fail("Failed to initialize database connection", "error", err.Error())
	}
	logger.Info("Initialized database connection")

	repositorySchemaName := database.GetSchemaName(!config.IsProduction())

	err = database.NewDatabaseMigrator(db, logger.With("component", "migrator")).Migrate(ctx, repositorySchemaName)
	if err != nil {
		fail("Failed to migrate database", "error", err.Error())
	}

	resultRepo := resultrepository.NewPostgresResultRepository(db, repositorySchemaName)
	logger.Info("Initialized ResultRepository")

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}
	provider, err := upstream.NewHTTPProviderOrMock(config, httpClient, time.Now, time.After)
	if err != nil {
		fail("Failed to initialize upstream provider", "error", err.Error())
	}
	logger.Info("Initialized upstream provider")

	allowedOrigins, err := ports.NewDomainSuffixes(PROD_DOMAIN_SUFFIX, STAGING_DOMAIN_SUFFIX)
	if err != nil {
		fail("Failed to initialize allowed origins", "error", err.Error())
	}

	resultCache := cache.NewTTL[string, *domain.Result](RESULT_TTL)
	defer resultCache.Stop()

	fetchResult := app.BuildFetchResultWithCache(resultCache, provider, resultRepo)

	http.HandleFunc(
		"OPTIONS /v1/resource",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"GET /v1/resource",
		ports.MakeGetResourceHandler(
			fetchResult,
			allowedOrigins,
			logger.With("port", "resource"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /v1/stats",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"GET /v1/stats",
		ports.MakeCacheStatsHandler(
			resultCache.Stats,
			allowedOrigins,
			logger.With("port", "stats"),
			sentryMiddleware,
		),
	)

	logger.Info("Init complete")
	err = http.ListenAndServe(fmt.Sprintf(":%s", config.Port()), nil)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("Server shutdown")
	} else {
		fail("Server error", "error", err.Error())
	}
}
