// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// ClientKey is the opaque per-caller identity used for guard and dedup keying.
type ClientKey string

// TestType selects the sampling plan of a network test.
type TestType string

// Known network test types.
const (
	TestTypeSpeed   TestType = "speed"
	TestTypeLatency TestType = "latency"
	TestTypeFull    TestType = "full"
)

// ParseTestType normalizes s and reports whether it names a known test type.
func ParseTestType(s string) (TestType, bool) {
	t := TestType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TestTypeSpeed, TestTypeLatency, TestTypeFull:
		return t, true
	}
	return "", false
}

// TestStatus is the lifecycle state of a TestRecord.
type TestStatus string

// Test lifecycle states. A record moves from running to completed exactly once.
const (
	TestStatusRunning   TestStatus = "running"
	TestStatusCompleted TestStatus = "completed"
)

// Throughput is the outcome of a download or upload phase.
type Throughput struct {
	SpeedMbps    float64 `json:"speedMbps"`
	StabilityPct float64 `json:"stabilityPct"`
}

// Latency is the outcome of the latency/jitter phase.
type Latency struct {
	MinMs    float64 `json:"minMs"`
	MaxMs    float64 `json:"maxMs"`
	AvgMs    float64 `json:"avgMs"`
	JitterMs float64 `json:"jitterMs"`
}

// Quality is the composite score derived from the measured phases.
type Quality struct {
	Score  float64  `json:"score"`
	Grade  string   `json:"grade"`
	Issues []string `json:"issues"`
}

// MeasurementResult is immutable once written to the result store.
type MeasurementResult struct {
	Download Throughput `json:"download"`
	Upload   Throughput `json:"upload"`
	Latency  Latency    `json:"latency"`
	Quality  Quality    `json:"quality"`
}

// TestRecord tracks one accepted network test.
type TestRecord struct {
	TestID      string             `json:"testId"`
	Type        TestType           `json:"type"`
	ClientKey   ClientKey          `json:"-"`
	Status      TestStatus         `json:"status"`
	StartedAt   time.Time          `json:"startedAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
	Results     *MeasurementResult `json:"results,omitempty"`
}

// Complete returns a completed copy of r carrying res.
func (r TestRecord) Complete(res MeasurementResult, at time.Time) TestRecord {
	r.Status = TestStatusCompleted
	r.CompletedAt = &at
	r.Results = &res
	return r
}

// FeedbackType classifies a feedback submission.
type FeedbackType string

// Known feedback types. An empty type is treated as general.
const (
	FeedbackBug         FeedbackType = "bug"
	FeedbackFeature     FeedbackType = "feature"
	FeedbackImprovement FeedbackType = "improvement"
	FeedbackQuestion    FeedbackType = "question"
	FeedbackGeneral     FeedbackType = "general"
)

// ParseFeedbackType normalizes s and reports whether it names a known type.
func ParseFeedbackType(s string) (FeedbackType, bool) {
	t := FeedbackType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "":
		return FeedbackGeneral, true
	case FeedbackBug, FeedbackFeature, FeedbackImprovement, FeedbackQuestion, FeedbackGeneral:
		return t, true
	}
	return "", false
}

// Feedback is an accepted submission.
type Feedback struct {
	ID           string       `json:"feedbackId"`
	Type         FeedbackType `json:"type"`
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	Rating       *int         `json:"rating,omitempty"`
	Email        string       `json:"email,omitempty"`
	Name         string       `json:"name,omitempty"`
	AllowContact bool         `json:"allowContact"`
	ClientKey    ClientKey    `json:"-"`
	Fingerprint  string       `json:"-"`
	Timestamp    time.Time    `json:"timestamp"`
	SubmittedAt  time.Time    `json:"submittedAt"`
}

// Notification is a best-effort operator message. Delivery failures never
// reach the request that produced it.
type Notification struct {
	ID        string
	Subject   string
	Body      string
	CreatedAt time.Time
}
