package measurement

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Sample ranges of the synthetic source.
const (
	downloadMinMbps = 20.0
	downloadMaxMbps = 500.0
	uploadMinMbps   = 5.0
	uploadMaxMbps   = 120.0
	probeMinMs      = 5.0
	probeMaxMs      = 120.0

	// Samples wander around a per-phase baseline by at most this fraction.
	sampleSpread = 0.15

	defaultSeed = 42
)

// Source produces raw phase samples. Implementations must honor ctx.
type Source interface {
	// Throughput returns speed samples in Mbps for a download or upload phase.
	Throughput(ctx context.Context, phase Phase, plan Plan) ([]float64, error)
	// Latency returns round-trip probe times in milliseconds.
	Latency(ctx context.Context, plan Plan) ([]float64, error)
}

// SourceOption applies a configuration option to the RandomSource.
type SourceOption func(*RandomSource)

// WithSeed makes the generated samples reproducible.
func WithSeed(seed int64) SourceOption {
	return func(s *RandomSource) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // synthetic measurements
	}
}

// WithTimeScale sets the simulated wall time per requested second.
// Each phase waits a third of DurationSeconds*scale. Zero disables pacing.
func WithTimeScale(scale time.Duration) SourceOption {
	return func(s *RandomSource) {
		if scale >= 0 {
			s.timeScale = scale
		}
	}
}

// RandomSource generates bounded pseudo-random samples.
type RandomSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	timeScale time.Duration
}

// NewRandomSource creates a synthetic source. Without WithSeed it is
// deterministic with a fixed seed.
func NewRandomSource(opts ...SourceOption) *RandomSource {
	s := &RandomSource{
		rng: rand.New(rand.NewSource(defaultSeed)), //nolint:gosec // synthetic measurements
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Throughput implements Source.
func (s *RandomSource) Throughput(ctx context.Context, phase Phase, plan Plan) ([]float64, error) {
	var lo, hi float64
	switch phase {
	case PhaseDownload:
		lo, hi = downloadMinMbps, downloadMaxMbps
	case PhaseUpload:
		lo, hi = uploadMinMbps, uploadMaxMbps
	default:
		return nil, fmt.Errorf("%w: %q is not a throughput phase", ErrInvalidPlan, phase)
	}
	if err := s.pace(ctx, plan); err != nil {
		return nil, err
	}
	return s.samples(plan.ThroughputSamples, lo, hi), nil
}

// Latency implements Source.
func (s *RandomSource) Latency(ctx context.Context, plan Plan) ([]float64, error) {
	if err := s.pace(ctx, plan); err != nil {
		return nil, err
	}
	return s.samples(plan.LatencyProbes, probeMinMs, probeMaxMs), nil
}

// samples draws n values around a random baseline in [lo, hi].
func (s *RandomSource) samples(n int, lo, hi float64) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := lo + s.rng.Float64()*(hi-lo)
	out := make([]float64, n)
	for i := range out {
		v := base * (1 + sampleSpread*(2*s.rng.Float64()-1))
		out[i] = clamp(v, lo, hi)
	}
	return out
}

// pace simulates the phase taking wall time.
func (s *RandomSource) pace(ctx context.Context, plan Plan) error {
	if s.timeScale == 0 {
		return ctx.Err()
	}
	wait := time.Duration(plan.DurationSeconds) * s.timeScale / 3
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(wait):
		return nil
	}
}
