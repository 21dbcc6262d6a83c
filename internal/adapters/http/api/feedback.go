package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/netpulse/internal/domain/identity"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/logger"
)

// Feedback field limits.
const (
	maxTitleLen   = 200
	maxContentLen = 2000
	maxNameLen    = 100
	minRating     = 1
	maxRating     = 5
)

// FeedbackDependencies defines the interface for feedback operations.
type FeedbackDependencies interface {
	SubmitFeedback(ctx context.Context, key model.ClientKey, fb model.Feedback) (model.Feedback, error)
}

// feedbackRequest is the body of POST /feedback.
type feedbackRequest struct {
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Rating       *int            `json:"rating,omitempty"`
	Email        string          `json:"email,omitempty"`
	Name         string          `json:"name,omitempty"`
	AllowContact bool            `json:"allowContact,omitempty"`
	Timestamp    clientTimestamp `json:"timestamp,omitempty"`
}

// maxEpochMillis is 9999-12-31T23:59:59.999Z.
const maxEpochMillis = 253402300799999

// clientTimestamp holds the client's clock reading, sent either as an
// RFC3339 string or as epoch milliseconds. Numbers are normalized to RFC3339;
// anything else is kept verbatim so validate can report it.
type clientTimestamp string

// UnmarshalJSON implements json.Unmarshaler.
func (t *clientTimestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*t = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		*t = clientTimestamp(s)
	default:
		ms, err := strconv.ParseFloat(raw, 64)
		if err != nil || ms < 0 || ms > maxEpochMillis {
			*t = clientTimestamp(raw)
			return nil
		}
		*t = clientTimestamp(time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// validate reports every problem with the request at once.
func (req feedbackRequest) validate() (model.Feedback, error) {
	var problems []string

	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		problems = append(problems, "title is required")
	case utf8.RuneCountInString(title) > maxTitleLen:
		problems = append(problems, fmt.Sprintf("title must be at most %d characters", maxTitleLen))
	}

	content := strings.TrimSpace(req.Content)
	switch {
	case content == "":
		problems = append(problems, "content is required")
	case utf8.RuneCountInString(content) > maxContentLen:
		problems = append(problems, fmt.Sprintf("content must be at most %d characters", maxContentLen))
	}

	fbType, ok := model.ParseFeedbackType(req.Type)
	if !ok {
		problems = append(problems, fmt.Sprintf("unknown feedback type %q (bug, feature, improvement, question or general)", req.Type))
	}

	email := strings.TrimSpace(req.Email)
	if email != "" && !validEmail(email) {
		problems = append(problems, "email address is malformed")
	}

	if req.Rating != nil && (*req.Rating < minRating || *req.Rating > maxRating) {
		problems = append(problems, fmt.Sprintf("rating must be between %d and %d", minRating, maxRating))
	}

	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) > maxNameLen {
		problems = append(problems, fmt.Sprintf("name must be at most %d characters", maxNameLen))
	}

	var ts time.Time
	if raw := strings.TrimSpace(string(req.Timestamp)); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			problems = append(problems, "timestamp must be RFC3339 or epoch milliseconds")
		}
		ts = parsed
	}

	if len(problems) > 0 {
		return model.Feedback{}, errors.New(strings.Join(problems, "; "))
	}

	return model.Feedback{
		Type:         fbType,
		Title:        title,
		Content:      content,
		Rating:       req.Rating,
		Email:        email,
		Name:         name,
		AllowContact: req.AllowContact,
		Timestamp:    ts,
	}, nil
}

// validEmail accepts a bare addr-spec with a dotted domain.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

type feedbackResponse struct {
	FeedbackID  string             `json:"feedbackId"`
	Status      string             `json:"status"`
	Type        model.FeedbackType `json:"type"`
	SubmittedAt time.Time          `json:"submittedAt"`
}

type feedbackDescriptor struct {
	Service   string            `json:"service"`
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// FeedbackHandler handles /feedback requests.
type FeedbackHandler struct {
	deps     FeedbackDependencies
	resolver *identity.Resolver
	version  string
	log      logger.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(deps FeedbackDependencies, resolver *identity.Resolver, version string, log logger.Logger) *FeedbackHandler {
	return &FeedbackHandler{deps: deps, resolver: resolver, version: version, log: log}
}

// HandleFeedback dispatches on method.
func (h *FeedbackHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	case http.MethodGet:
		writeSuccess(w, r, feedbackDescriptor{
			Service: "feedback",
			Status:  "operational",
			Version: h.version,
			Endpoints: map[string]string{
				"POST /feedback":     "submit feedback",
				"GET /feedback":      "service descriptor",
				"POST /network-test": "run a network test",
				"GET /network-test":  "read a network test result by testId",
			},
		}, "")
	default:
		methodNotAllowed(w, r, "api.feedback", "GET, POST")
	}
}

// handleSubmit handles POST /feedback.
func (h *FeedbackHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_feedback"

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, WrapKind(op, ErrValidation, errors.New("invalid JSON body")))
		return
	}
	fb, err := req.validate()
	if err != nil {
		writeError(w, r, WrapKind(op, ErrValidation, err))
		return
	}

	key := h.resolver.Resolve(r.Header)
	saved, err := h.deps.SubmitFeedback(r.Context(), key, fb)
	if err != nil {
		if status, _, _ := classify(err); status == http.StatusInternalServerError {
			h.log.Error(r.Context(), "feedback submission failed",
				logger.String("client", string(key)),
				logger.String("request_id", requestID(r)),
				logger.Error(err))
		}
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, feedbackResponse{
		FeedbackID:  saved.ID,
		Status:      "submitted",
		Type:        saved.Type,
		SubmittedAt: saved.SubmittedAt,
	}, "Thank you for your feedback")
}
