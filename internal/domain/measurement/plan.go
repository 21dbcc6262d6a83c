// Package measurement runs the synthetic network test: ordered download,
// upload and latency phases followed by quality scoring.
package measurement

import (
	"fmt"

	"github.com/okian/netpulse/internal/domain/model"
)

// Phase names one step of a network test.
type Phase string

// Phases in execution order.
const (
	PhaseDownload Phase = "download"
	PhaseUpload   Phase = "upload"
	PhaseLatency  Phase = "latency"
)

// Default duration limits in seconds.
const (
	DefaultDurationSeconds = 10
	MaxDurationSeconds     = 60
)

// Limits bound the caller-supplied duration.
type Limits struct {
	DefaultSeconds int
	MaxSeconds     int
}

// DefaultLimits returns the stock duration bounds.
func DefaultLimits() Limits {
	return Limits{DefaultSeconds: DefaultDurationSeconds, MaxSeconds: MaxDurationSeconds}
}

// Plan is a validated description of one test run.
type Plan struct {
	Type              model.TestType
	DurationSeconds   int
	ThroughputSamples int
	LatencyProbes     int
}

// sampling holds per-type sample counts.
var sampling = map[model.TestType]struct{ throughput, probes int }{
	model.TestTypeSpeed:   {throughput: 10, probes: 10},
	model.TestTypeLatency: {throughput: 5, probes: 30},
	model.TestTypeFull:    {throughput: 20, probes: 20},
}

// NewPlan validates the requested type and duration. A zero duration
// selects limits.DefaultSeconds; negative or over-maximum durations are
// rejected with ErrInvalidPlan.
func NewPlan(t model.TestType, durationSeconds int, limits Limits) (Plan, error) {
	counts, ok := sampling[t]
	if !ok {
		return Plan{}, fmt.Errorf("%w: unknown test type %q", ErrInvalidPlan, t)
	}
	if limits.MaxSeconds <= 0 {
		limits.MaxSeconds = MaxDurationSeconds
	}
	if limits.DefaultSeconds <= 0 || limits.DefaultSeconds > limits.MaxSeconds {
		limits.DefaultSeconds = min(DefaultDurationSeconds, limits.MaxSeconds)
	}

	switch {
	case durationSeconds < 0:
		return Plan{}, fmt.Errorf("%w: duration must not be negative", ErrInvalidPlan)
	case durationSeconds > limits.MaxSeconds:
		return Plan{}, fmt.Errorf("%w: duration %d exceeds maximum of %d seconds", ErrInvalidPlan, durationSeconds, limits.MaxSeconds)
	case durationSeconds == 0:
		durationSeconds = limits.DefaultSeconds
	}

	return Plan{
		Type:              t,
		DurationSeconds:   durationSeconds,
		ThroughputSamples: counts.throughput,
		LatencyProbes:     counts.probes,
	}, nil
}
