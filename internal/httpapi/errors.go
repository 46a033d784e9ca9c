package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dialogd/internal/coordinator"
	"dialogd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

// errorPayload maps err to a status code and error body.
func errorPayload(err error) (int, types.ErrorResponse) {
	status := http.StatusInternalServerError
	var he HTTPError
	switch {
	case errors.As(err, &he):
		status = he.StatusCode()
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	return status, types.ErrorResponse{Error: err.Error(), Code: status, Kind: string(coordinator.KindOf(err))}
}

// writeError writes err with its mapped status and counts 429s as backpressure.
func writeError(w http.ResponseWriter, err error) int {
	status, body := errorPayload(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure(backpressureReason(err))
	}
	writeJSON(w, status, body)
	return status
}

func backpressureReason(err error) string {
	var ce *coordinator.Error
	if errors.As(err, &ce) && strings.Contains(ce.Reason, "draining") {
		return "draining"
	}
	return "queue_full"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
