package measurement

import "errors"

// Sentinel errors for the measurement package.
var (
	// ErrInvalidPlan reports a test request that must be rejected before any phase runs.
	ErrInvalidPlan = errors.New("invalid measurement plan")
	// ErrNoSamples reports a source that produced nothing to summarize.
	ErrNoSamples = errors.New("measurement produced no samples")
)
