package ports_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ebakken/memoflight/internal/ports"
)

const prodDomainSuffix = "memoflight.dev"
const stagingDomainSuffix = "memoflight.pages.dev"

type originRule struct {
	origin  string
	allowed bool
}

func TestCORS(t *testing.T) {
	t.Parallel()
	allowedOrigins, err := ports.NewDomainSuffixes(
		prodDomainSuffix,
		stagingDomainSuffix,
	)
	require.NoError(t, err)

	cases := []originRule{
		// Prod
		{
			origin:  "https://memoflight.dev",
			allowed: true,
		},
		{
			origin:  "https://www.memoflight.dev",
			allowed: true,
		},
		// Staging
		{
			origin:  "https://53bcd591.memoflight.pages.dev",
			allowed: true,
		},
		{
			origin:  "https://memoflight.pages.dev",
			allowed: true,
		},
		// Other pages
		{
			origin:  "example.com",
			allowed: false,
		},
		{
			origin:  "https://example.com",
			allowed: false,
		},
		{
			origin:  "https://www.google.com",
			allowed: false,
		},
		// Similar-looking domains
		{
			origin:  "https://memo-flight.dev",
			allowed: false,
		},
		{
			origin:  "https://mymemoflight.dev",
			allowed: false,
		},
		{
			origin:  "https://supermemoflight.pages.dev",
			allowed: false,
		},
		// Only https
		{
			origin:  "http://memoflight.dev",
			allowed: false,
		},
		// Weird cases
		{
			origin:  "",
			allowed: false,
		},
		{
			origin:  "memoflight",
			allowed: false,
		},
		{
			origin:  "flight.dev",
			allowed: false,
		},
		{
			origin:  "pages.dev",
			allowed: false,
		},
	}

	runCORSTest := func(t *testing.T, handler http.HandlerFunc, method string, c originRule, handlerStatusCode int, handlerBody []byte) {
		req := httptest.NewRequest(method, "https://api-url.com", nil)
		req.Header.Set("Origin", c.origin)
		w := httptest.NewRecorder()

		handler(w, req)

		resp := w.Result()

		// The handler is allowed to run when the method is not OPTIONS
		if method != "OPTIONS" {
			require.Equal(t, handlerStatusCode, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, handlerBody, body)
		}

		// CORS
		if c.allowed {
			require.Equal(t, c.origin, resp.Header.Get("Access-Control-Allow-Origin"))

			if method == "OPTIONS" {
				require.Equal(t, http.StatusNoContent, resp.StatusCode)
				require.Equal(t, "GET", resp.Header.Get("Access-Control-Allow-Methods"))
				require.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Headers"))
			} else {
				require.Empty(t, resp.Header.Get("Access-Control-Allow-Methods"))
				require.Empty(t, resp.Header.Get("Access-Control-Allow-Headers"))
			}
		} else {
			require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			require.Empty(t, resp.Header.Get("Access-Control-Allow-Methods"))
			require.Empty(t, resp.Header.Get("Access-Control-Allow-Headers"))
		}
	}

	t.Run("middleware", func(t *testing.T) {
		t.Parallel()
		handlerBody := []byte("handler ran")
		handler := ports.BuildCORSMiddleware(allowedOrigins)(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			w.Write(handlerBody)
		})

		for _, c := range cases {
			t.Run(c.origin, func(t *testing.T) {
				runCORSTest(t, handler, "GET", c, http.StatusTeapot, handlerBody)
				runCORSTest(t, handler, "OPTIONS", c, http.StatusTeapot, handlerBody)
			})
		}
	})

	t.Run("preflight handler", func(t *testing.T) {
		t.Parallel()
		handler := ports.BuildCORSHandler(allowedOrigins)

		for _, c := range cases {
			t.Run(c.origin, func(t *testing.T) {
				runCORSTest(t, handler, "OPTIONS", c, http.StatusNoContent, nil)
			})
		}
	})

	t.Run("rejects suffix with scheme", func(t *testing.T) {
		t.Parallel()
		_, err := ports.NewDomainSuffixes("https://memoflight.dev")
		require.Error(t, err)
	})

	t.Run("rejects suffix with leading dot", func(t *testing.T) {
		t.Parallel()
		_, err := ports.NewDomainSuffixes(".memoflight.dev")
		require.Error(t, err)
	})
}
