package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"warung/internal/core"
	"warung/internal/ledger"
	applog "warung/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

type cashFlowResponse struct {
	Days         int              `json:"days"`
	Buckets      []core.DayBucket `json:"buckets"`
	MaxMagnitude core.Money       `json:"max_magnitude"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTransition), errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to encode response", applog.FieldError, err)
	}
}

// writeError answers with the mapped status. Internal errors are logged and
// their detail is not sent to the client.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.FromContext(ctx).ErrorContext(ctx, "Request failed", applog.FieldError, err)
		msg = "internal error"
	}
	writeJSON(ctx, w, status, errorResponse{Error: msg})
}
