// Package worker delivers queued notifications in the background.
package worker

import (
	"time"

	"github.com/okian/netpulse/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithTimeout bounds a single delivery attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(w *InMemoryWorker) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}
