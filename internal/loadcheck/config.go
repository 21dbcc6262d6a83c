// Package loadcheck drives a running netpulse instance with many synthetic
// clients and checks the per-client guarantees from the outside.
package loadcheck

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for a load check run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Clients     int           // Number of distinct synthetic clients
	Concurrency int           // Simultaneous requests fired per client
	Parallel    int           // Clients exercised at the same time
	TestType    string        // Network test type to request
	Duration    int           // Requested test duration in seconds
	Timeout     time.Duration // HTTP request timeout
	Verbose     bool          // Log every request outcome
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return errors.New("base url is required")
	case c.Clients < 1:
		return errors.New("clients must be at least 1")
	case c.Concurrency < 1:
		return errors.New("concurrency must be at least 1")
	case c.Parallel < 1:
		return errors.New("parallel must be at least 1")
	case c.Duration < 0:
		return errors.New("duration must not be negative")
	case c.Timeout <= 0:
		return errors.New("timeout must be positive")
	}
	return nil
}

// Report summarizes a load check run.
type Report struct {
	TestsStarted      int
	TestsCompleted    int
	TestsConflicted   int
	TestsFailed       int
	ResultsRead       int
	ResultsMissing    int
	FeedbackAccepted  int
	FeedbackDuplicate int
	FeedbackFailed    int
	RateLimited       int
	Violations        []string
	StartTime         time.Time
	Duration          time.Duration
}

// OK reports whether every checked guarantee held.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}
