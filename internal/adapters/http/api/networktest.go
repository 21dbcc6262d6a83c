package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/netpulse/internal/domain/identity"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/logger"
)

// NetworkTestDependencies defines the interface for network test operations.
type NetworkTestDependencies interface {
	StartNetworkTest(ctx context.Context, key model.ClientKey, testType model.TestType, durationSeconds int) (model.TestRecord, error)
	GetNetworkTest(ctx context.Context, testID string) (model.TestRecord, error)
}

// networkTestRequest is the body of POST /network-test. Options are accepted
// for compatibility and ignored.
type networkTestRequest struct {
	Type     string         `json:"type"`
	Duration int            `json:"duration"`
	Options  map[string]any `json:"options,omitempty"`
}

func (req networkTestRequest) validate() (model.TestType, error) {
	t, ok := model.ParseTestType(req.Type)
	if !ok {
		if strings.TrimSpace(req.Type) == "" {
			return "", errors.New("test type is required (speed, latency or full)")
		}
		return "", fmt.Errorf("unknown test type %q (speed, latency or full)", req.Type)
	}
	if req.Duration < 0 {
		return "", errors.New("duration must not be negative")
	}
	return t, nil
}

type networkTestResponse struct {
	TestID   string                   `json:"testId"`
	Type     model.TestType           `json:"type"`
	Results  *model.MeasurementResult `json:"results"`
	ClientIP string                   `json:"clientIP"`
}

// NetworkTestHandler handles /network-test requests.
type NetworkTestHandler struct {
	deps     NetworkTestDependencies
	resolver *identity.Resolver
	log      logger.Logger
}

// NewNetworkTestHandler creates a new network test handler.
func NewNetworkTestHandler(deps NetworkTestDependencies, resolver *identity.Resolver, log logger.Logger) *NetworkTestHandler {
	return &NetworkTestHandler{deps: deps, resolver: resolver, log: log}
}

// HandleNetworkTest dispatches on method.
func (h *NetworkTestHandler) HandleNetworkTest(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleStart(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	default:
		methodNotAllowed(w, r, "api.network_test", "GET, POST")
	}
}

// handleStart handles POST /network-test.
func (h *NetworkTestHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_network_test"

	var req networkTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, WrapKind(op, ErrValidation, errors.New("invalid JSON body")))
		return
	}
	testType, err := req.validate()
	if err != nil {
		writeError(w, r, WrapKind(op, ErrValidation, err))
		return
	}

	key := h.resolver.Resolve(r.Header)
	rec, err := h.deps.StartNetworkTest(r.Context(), key, testType, req.Duration)
	if err != nil {
		if status, _, _ := classify(err); status == http.StatusInternalServerError {
			h.log.Error(r.Context(), "network test failed",
				logger.String("client", string(key)),
				logger.String("request_id", requestID(r)),
				logger.Error(err))
		}
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, networkTestResponse{
		TestID:   rec.TestID,
		Type:     rec.Type,
		Results:  rec.Results,
		ClientIP: string(key),
	}, "Network test completed")
}

// handleGet handles GET /network-test?testId=.
func (h *NetworkTestHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_network_test"

	testID := strings.TrimSpace(r.URL.Query().Get("testId"))
	if testID == "" {
		writeError(w, r, WrapKind(op, ErrValidation, errors.New("testId query parameter is required")))
		return
	}

	rec, err := h.deps.GetNetworkTest(r.Context(), testID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, rec, "")
}
