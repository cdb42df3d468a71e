package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// errorResponse is the body of every error response.
type errorResponse struct {
	Error   errorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type errorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// respondError sends err as a JSON error response. Errors implementing
// ErrorWithStatus choose the status; anything else is a 500.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ErrCodeInternal
	msg := "internal error"
	var details map[string]any
	var ews ErrorWithStatus
	if errors.As(err, &ews) {
		status = ews.StatusCode()
		code = ews.Code()
		details = ews.Details()
		msg = ews.Error()
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", status, "code", code)
	} else {
		slog.DebugContext(ctx, "Request failed", "err", err, "statusCode", status, "code", code)
	}
	respondJSON(ctx, w, status, errorResponse{Error: errorDetails{Code: code, Message: msg}, Details: details})
}
