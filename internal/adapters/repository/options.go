package repository

import "time"

const (
	defaultTTL                   = time.Hour
	defaultMetricsUpdateInterval = 5 * time.Second
)

type options struct {
	defaultTTL            time.Duration
	capacity              uint64
	metricsUpdateInterval time.Duration
	now                   func() time.Time
}

// Option applies a configuration option to a TTLStore.
type Option func(*options)

// WithDefaultTTL sets the TTL used when Put is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithCapacity bounds the number of entries; the least recently written
// entry is evicted when full. Zero means unbounded.
func WithCapacity(n uint64) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.metricsUpdateInterval = interval
		}
	}
}

// WithClock overrides the time source used to decide expiry on read.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
