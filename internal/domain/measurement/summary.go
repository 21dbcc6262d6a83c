package measurement

import (
	"math"

	"github.com/okian/netpulse/internal/domain/model"
)

// SummarizeThroughput reduces speed samples to a mean speed and a stability
// percentage (100 minus the coefficient of variation).
func SummarizeThroughput(samples []float64) (model.Throughput, error) {
	if len(samples) == 0 {
		return model.Throughput{}, ErrNoSamples
	}
	mean, sd := meanStdDev(samples)
	stability := 100.0
	if mean > 0 {
		stability = clamp(100-100*sd/mean, 0, 100)
	}
	return model.Throughput{
		SpeedMbps:    round2(mean),
		StabilityPct: round2(stability),
	}, nil
}

// SummarizeLatency reduces probe times to min/avg/max and jitter, the mean
// absolute difference between consecutive probes.
func SummarizeLatency(probes []float64) (model.Latency, error) {
	if len(probes) == 0 {
		return model.Latency{}, ErrNoSamples
	}
	lo, hi := probes[0], probes[0]
	var jitter float64
	for i, p := range probes {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
		if i > 0 {
			jitter += math.Abs(p - probes[i-1])
		}
	}
	if len(probes) > 1 {
		jitter /= float64(len(probes) - 1)
	}
	mean, _ := meanStdDev(probes)
	return model.Latency{
		MinMs:    round2(lo),
		MaxMs:    round2(hi),
		AvgMs:    round2(clamp(mean, lo, hi)),
		JitterMs: round2(jitter),
	}, nil
}

func meanStdDev(xs []float64) (mean, sd float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		sd += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sd / float64(len(xs)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
