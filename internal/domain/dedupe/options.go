package dedupe

import "time"

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of fingerprints to keep in memory.
// If maxSize > 0: the oldest record is evicted when full.
// If maxSize <= 0: unbounded (records leave only when their window passes).
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// WithWindow sets how long a fingerprint blocks resubmission.
func WithWindow(window time.Duration) Option {
	return func(d *inMemoryDeduper) {
		if window > 0 {
			d.window = window
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *inMemoryDeduper) {
		if now != nil {
			d.now = now
		}
	}
}
