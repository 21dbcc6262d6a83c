package measurement

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/internal/domain/quality"
	"github.com/okian/netpulse/pkg/logger"
)

// Pipeline runs the phases of a test against a Source.
type Pipeline struct {
	source Source
	log    logger.Logger
}

// PipelineOption applies a configuration option to the Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPipeline creates a pipeline reading from source.
func NewPipeline(source Source, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{source: source, log: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes download, upload and latency in order, then scores them.
func (p *Pipeline) Run(ctx context.Context, plan Plan) (model.MeasurementResult, error) {
	var res model.MeasurementResult

	for _, phase := range []Phase{PhaseDownload, PhaseUpload} {
		start := time.Now()
		samples, err := p.source.Throughput(ctx, phase, plan)
		if err != nil {
			return model.MeasurementResult{}, fmt.Errorf("%s phase: %w", phase, err)
		}
		tp, err := SummarizeThroughput(samples)
		if err != nil {
			return model.MeasurementResult{}, fmt.Errorf("%s phase: %w", phase, err)
		}
		if phase == PhaseDownload {
			res.Download = tp
		} else {
			res.Upload = tp
		}
		p.log.Debug(ctx, "phase complete",
			logger.String("phase", string(phase)),
			logger.Float64("speed_mbps", tp.SpeedMbps),
			logger.Duration("took", time.Since(start)))
	}

	probes, err := p.source.Latency(ctx, plan)
	if err != nil {
		return model.MeasurementResult{}, fmt.Errorf("%s phase: %w", PhaseLatency, err)
	}
	if res.Latency, err = SummarizeLatency(probes); err != nil {
		return model.MeasurementResult{}, fmt.Errorf("%s phase: %w", PhaseLatency, err)
	}

	res.Quality = quality.Score(quality.Input{
		Download: res.Download,
		Upload:   res.Upload,
		Latency:  res.Latency,
	})
	return res, nil
}
