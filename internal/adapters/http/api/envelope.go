package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/netpulse/internal/adapters/repository"
	"github.com/okian/netpulse/internal/domain/dedupe"
	"github.com/okian/netpulse/internal/domain/guard"
	"github.com/okian/netpulse/internal/domain/measurement"
	"github.com/rs/xid"
)

// RequestIDHeader carries the caller's correlation id, echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// envelope is the uniform response body of the feature endpoints.
type envelope struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

type requestIDKey struct{}

// requestID returns the id assigned by RequestIDMiddleware, the caller's
// header, or a fresh xid, in that order.
func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return xid.New().String()
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, data any, message string) {
	id := requestID(r)
	w.Header().Set(RequestIDHeader, id)
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: id,
		Data:      data,
		Message:   message,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message, detail := classify(err)
	id := requestID(r)
	w.Header().Set(RequestIDHeader, id)
	writeJSON(w, status, envelope{
		Success:   false,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: id,
		Error:     detail,
		Message:   message,
	})
}

// classify maps an error onto a status code, a category message and the
// caller-visible detail. Internal failures never leak their cause.
func classify(err error) (status int, message, detail string) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, measurement.ErrInvalidPlan):
		return http.StatusBadRequest, "Validation failed", err.Error()
	case errors.Is(err, guard.ErrInFlight):
		return http.StatusConflict, "Conflict", "A network test is already in progress for this client"
	case errors.Is(err, dedupe.ErrDuplicate):
		return http.StatusConflict, "Conflict", "Duplicate submission: identical feedback was submitted recently"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "Not found", "Test not found or expired"
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, "Method not allowed", err.Error()
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests", "Rate limit exceeded, retry later"
	default:
		return http.StatusInternalServerError, "Internal server error", "Internal server error"
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, op string, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, WrapKind(op, ErrMethodNotAllowed, errors.New(r.Method+" is not supported; use "+allowed)))
}
