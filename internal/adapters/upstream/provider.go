package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ebakken/memoflight/internal/config"
	"github.com/ebakken/memoflight/internal/domain"
	e "github.com/ebakken/memoflight/internal/errors"
	"github.com/ebakken/memoflight/internal/logging"
	"github.com/ebakken/memoflight/internal/ratelimiting"
	"github.com/ebakken/memoflight/internal/reporting"
)

const fetchMinOperationTime = 150 * time.Millisecond

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestLimiter bounds outbound fetches so a burst of distinct keys cannot
// overwhelm the upstream.
type RequestLimiter interface {
	Limit(ctx context.Context, maxOperationTime time.Duration, operation func(ctx context.Context)) bool
}

// Provider produces the value for a resource key. It is the expensive,
// deterministic computation the cache wraps.
type Provider interface {
	Fetch(ctx context.Context, key string) (*domain.Result, error)
}

type mockedProvider struct{}

func (provider *mockedProvider) Fetch(ctx context.Context, key string) (*domain.Result, error) {
	return &domain.Result{
		Key:         key,
		Data:        []byte(fmt.Sprintf(`{"key":%q,"mocked":true}`, key)),
		ContentType: "application/json",
		StatusCode:  200,
		ComputedAt:  time.Now(),
	}, nil
}

type httpProvider struct {
	httpClient HttpClient
	baseURL    string
	limiter    RequestLimiter

	tracer trace.Tracer
}

func (provider *httpProvider) Fetch(ctx context.Context, key string) (*domain.Result, error) {
	ctx, span := provider.tracer.Start(ctx, "HTTPProvider.Fetch")
	defer span.End()

	logger := logging.FromContext(ctx)
	requestURL := fmt.Sprintf("%s/%s", strings.TrimSuffix(provider.baseURL, "/"), url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		logger.Error(err.Error())
		reporting.Report(ctx, err)
		return nil, err
	}

	start := time.Now()

	var resp *http.Response
	var data []byte
	ran := provider.limiter.Limit(ctx, fetchMinOperationTime, func(ctx context.Context) {
		ctx, span := provider.tracer.Start(ctx, "HTTPProvider.httpget")
		defer span.End()

		resp, err = provider.httpClient.Do(req)
		if err != nil {
			err = fmt.Errorf("%w: failed to send request: %w", e.UpstreamError, err)
			reporting.Report(ctx, err)
			return
		}

		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			err = fmt.Errorf("%w: failed to read response body: %w", e.UpstreamError, err)
			reporting.Report(ctx, err)
			return
		}
	})
	if !ran {
		err := fmt.Errorf("%w: too many outbound requests to upstream", e.RatelimitExceededError)
		logger.Warn("Did not fetch from upstream due to rate limiting", "key", key, "ctx_error", fmt.Sprint(ctx.Err()))
		reporting.Report(ctx, err)
		return nil, err
	}
	if err != nil {
		logger.Error(err.Error())
		return nil, err
	}

	computedAt := time.Now()
	logger.Info("upstream request completed", "url", requestURL, "status", resp.StatusCode, "duration", time.Since(start).String())

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: upstream returned status %d", e.UpstreamError, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: upstream returned status %d", e.APIClientError, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &domain.Result{
		Key:         key,
		Data:        data,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
		ComputedAt:  computedAt,
	}, nil
}

func NewHTTPProvider(httpClient HttpClient, baseURL string, nowFunc func() time.Time, afterFunc func(time.Duration) <-chan time.Time) Provider {
	// Keeps a burst of distinct cache misses from hammering the upstream
	limiter := ratelimiting.NewWindowLimitRequestLimiter(120, 1*time.Minute, nowFunc, afterFunc)

	return &httpProvider{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    limiter,

		tracer: otel.Tracer("memoflight/upstream/httpprovider"),
	}
}

func NewHTTPProviderOrMock(config config.Config, httpClient HttpClient, nowFunc func() time.Time, afterFunc func(time.Duration) <-chan time.Time) (Provider, error) {
	if config.UpstreamBaseURL() != "" {
		return NewHTTPProvider(httpClient, config.UpstreamBaseURL(), nowFunc, afterFunc), nil
	}
	if config.IsDevelopment() {
		return &mockedProvider{}, nil
	}
	return nil, fmt.Errorf("Missing upstream base URL in non-development environment")
}
