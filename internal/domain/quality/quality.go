// Package quality turns measured throughput and latency into a composite
// connection score, a letter grade and a list of notable issues.
package quality

import (
	"fmt"
	"math"

	"github.com/okian/netpulse/internal/domain/model"
)

// Score bounds.
const (
	maxScore = 100
	minScore = 0
)

// Penalty model. Each penalty grows linearly from zero at its threshold to
// its maximum at its limit, so every input moves the score in one direction.
const (
	downloadTargetMbps = 100
	downloadMaxPenalty = 25

	uploadTargetMbps = 50
	uploadMaxPenalty = 15

	latencyThresholdMs = 20
	latencyLimitMs     = 200
	latencyMaxPenalty  = 20

	jitterThresholdMs = 5
	jitterLimitMs     = 50
	jitterMaxPenalty  = 20

	stabilityMaxPenalty = 20
)

// Issue thresholds.
const (
	issueScoreBelow       = 70
	issueJitterAboveMs    = 30
	issueLatencyAboveMs   = 100
	issueStabilityBelow   = 80
	issueDownloadBelowMbp = 10
	issueUploadBelowMbps  = 5
)

// Grade cut-offs, highest first.
var grades = []struct {
	min   float64
	grade string
}{
	{90, "A"},
	{80, "B"},
	{70, "C"},
	{60, "D"},
}

// Input is the measured data a score is computed from.
type Input struct {
	Download model.Throughput
	Upload   model.Throughput
	Latency  model.Latency
}

// Score computes the composite quality of in. It is pure and deterministic.
func Score(in Input) model.Quality {
	penalty := shortfall(in.Download.SpeedMbps, downloadTargetMbps, downloadMaxPenalty) +
		shortfall(in.Upload.SpeedMbps, uploadTargetMbps, uploadMaxPenalty) +
		excess(in.Latency.AvgMs, latencyThresholdMs, latencyLimitMs, latencyMaxPenalty) +
		excess(in.Latency.JitterMs, jitterThresholdMs, jitterLimitMs, jitterMaxPenalty) +
		shortfall(meanStability(in), maxScore, stabilityMaxPenalty)

	score := math.Round(clamp(maxScore-penalty, minScore, maxScore))
	return model.Quality{
		Score:  score,
		Grade:  Grade(score),
		Issues: Issues(in, score),
	}
}

// Grade maps a score to a letter.
func Grade(score float64) string {
	for _, g := range grades {
		if score >= g.min {
			return g.grade
		}
	}
	return "F"
}

// Issues lists every threshold breached by in. It is empty for a healthy
// connection.
func Issues(in Input, score float64) []string {
	issues := []string{}
	if score < issueScoreBelow {
		issues = append(issues, fmt.Sprintf("overall quality score %.0f is below %d", score, issueScoreBelow))
	}
	if in.Latency.JitterMs > issueJitterAboveMs {
		issues = append(issues, fmt.Sprintf("high jitter: %.1f ms", in.Latency.JitterMs))
	}
	if in.Latency.AvgMs > issueLatencyAboveMs {
		issues = append(issues, fmt.Sprintf("high latency: %.1f ms average", in.Latency.AvgMs))
	}
	if in.Download.StabilityPct < issueStabilityBelow {
		issues = append(issues, fmt.Sprintf("unstable download: %.1f%% stability", in.Download.StabilityPct))
	}
	if in.Upload.StabilityPct < issueStabilityBelow {
		issues = append(issues, fmt.Sprintf("unstable upload: %.1f%% stability", in.Upload.StabilityPct))
	}
	if in.Download.SpeedMbps < issueDownloadBelowMbp {
		issues = append(issues, fmt.Sprintf("slow download: %.1f Mbps", in.Download.SpeedMbps))
	}
	if in.Upload.SpeedMbps < issueUploadBelowMbps {
		issues = append(issues, fmt.Sprintf("slow upload: %.1f Mbps", in.Upload.SpeedMbps))
	}
	return issues
}

func meanStability(in Input) float64 {
	return (in.Download.StabilityPct + in.Upload.StabilityPct) / 2
}

// shortfall penalizes v for falling below target, up to maxPenalty at zero.
func shortfall(v, target, maxPenalty float64) float64 {
	if v >= target {
		return 0
	}
	return maxPenalty * (target - clamp(v, 0, target)) / target
}

// excess penalizes v for exceeding threshold, up to maxPenalty at limit.
func excess(v, threshold, limit, maxPenalty float64) float64 {
	if v <= threshold {
		return 0
	}
	return maxPenalty * (clamp(v, threshold, limit) - threshold) / (limit - threshold)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
