package ports

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ebakken/memoflight/internal/cache"
	e "github.com/ebakken/memoflight/internal/errors"
	"github.com/ebakken/memoflight/internal/logging"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Cause   string `json:"cause,omitempty"`
}

// writeErrorResponse maps an error to a JSON error envelope and returns the
// status code it wrote.
func writeErrorResponse(ctx context.Context, w http.ResponseWriter, responseError error) int {
	w.Header().Set("Content-Type", "application/json")

	response := errorResponse{
		Success: false,
		Cause:   responseError.Error(),
	}
	errorBytes, err := json.Marshal(response)
	if err != nil {
		logging.FromContext(ctx).Error("Error marshalling error response", "error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"cause":"Internal server error (memoflight)"}`))
		return http.StatusInternalServerError
	}

	// Unknown error: default to 500
	statusCode := http.StatusInternalServerError

	if errors.Is(responseError, e.APIClientError) {
		statusCode = http.StatusBadRequest
	} else if errors.Is(responseError, e.RatelimitExceededError) {
		statusCode = http.StatusTooManyRequests
	} else if errors.Is(responseError, e.UpstreamError) {
		statusCode = http.StatusBadGateway
	} else if errors.Is(responseError, cache.ErrWaitAbandoned) {
		statusCode = http.StatusGatewayTimeout
	} else if errors.Is(responseError, cache.ErrComputationFailed) {
		statusCode = http.StatusBadGateway
	} else if errors.Is(responseError, e.APIServerError) {
		statusCode = http.StatusInternalServerError
	}

	w.WriteHeader(statusCode)
	w.Write(errorBytes)
	return statusCode
}
