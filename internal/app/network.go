package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/netpulse/internal/domain/guard"
	"github.com/okian/netpulse/internal/domain/measurement"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/logger"
	"github.com/okian/netpulse/pkg/metrics"
)

// StartNetworkTest runs a synthetic network test for key and returns the
// completed record. At most one test per client runs at a time; a second
// concurrent call fails with guard.ErrInFlight. durationSeconds of zero
// selects the configured default.
func (s *Service) StartNetworkTest(ctx context.Context, key model.ClientKey, testType model.TestType, durationSeconds int) (model.TestRecord, error) {
	c, err := s.components()
	if err != nil {
		return model.TestRecord{}, err
	}

	plan, err := measurement.NewPlan(testType, durationSeconds, s.limits)
	if err != nil {
		metrics.RecordNetworkTest(string(testType), "invalid")
		return model.TestRecord{}, err
	}

	release, err := c.guard.TryAcquire(ctx, guard.KindNetworkTest, key)
	if err != nil {
		metrics.RecordNetworkTest(string(testType), "conflict")
		return model.TestRecord{}, err
	}
	defer release()

	start := time.Now()
	rec := model.TestRecord{
		TestID:    uuid.NewString(),
		Type:      testType,
		ClientKey: key,
		Status:    model.TestStatusRunning,
		StartedAt: s.now(),
	}
	if err := c.results.Put(ctx, rec.TestID, rec, s.resultTTL); err != nil {
		metrics.RecordNetworkTest(string(testType), "failed")
		return model.TestRecord{}, fmt.Errorf("store running test: %w", err)
	}

	res, err := c.pipeline.Run(ctx, plan)
	if err != nil {
		c.results.Delete(ctx, rec.TestID)
		metrics.RecordNetworkTest(string(testType), "failed")
		s.logger.Warn(ctx, "network test failed",
			logger.String("test_id", rec.TestID),
			logger.String("client", string(key)),
			logger.Error(err))
		return model.TestRecord{}, fmt.Errorf("run network test: %w", err)
	}

	done := rec.Complete(res, s.now())
	if err := c.results.Put(ctx, done.TestID, done, s.resultTTL); err != nil {
		c.results.Delete(ctx, rec.TestID)
		metrics.RecordNetworkTest(string(testType), "failed")
		return model.TestRecord{}, fmt.Errorf("store completed test: %w", err)
	}

	metrics.RecordNetworkTest(string(testType), "completed")
	metrics.RecordNetworkTestDuration(string(testType), float64(time.Since(start).Milliseconds()))
	metrics.RecordQualityScore(res.Quality.Score)
	s.logger.Debug(ctx, "network test completed",
		logger.String("test_id", done.TestID),
		logger.String("type", string(testType)),
		logger.Int("duration_s", plan.DurationSeconds),
		logger.Float64("score", res.Quality.Score))

	return done, nil
}

// GetNetworkTest returns a stored test record. Unknown and expired ids both
// yield repository.ErrNotFound.
func (s *Service) GetNetworkTest(ctx context.Context, testID string) (model.TestRecord, error) {
	c, err := s.components()
	if err != nil {
		return model.TestRecord{}, err
	}
	return c.results.Get(ctx, testID)
}

// TestInFlight reports whether key has a network test running.
func (s *Service) TestInFlight(ctx context.Context, key model.ClientKey) bool {
	c, err := s.components()
	if err != nil {
		return false
	}
	return c.guard.Held(ctx, guard.KindNetworkTest, key)
}

// ActiveTests lists the clients with a test in flight.
func (s *Service) ActiveTests(ctx context.Context) []guard.Entry {
	c, err := s.components()
	if err != nil {
		return nil
	}
	return c.guard.Active(ctx)
}
