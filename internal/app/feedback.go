package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/okian/netpulse/internal/adapters/notify"
	"github.com/okian/netpulse/internal/domain/dedupe"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/logger"
	"github.com/okian/netpulse/pkg/metrics"
)

// SubmitFeedback accepts a validated feedback submission from key.
// Identical content from the same client inside the dedupe window fails with
// dedupe.ErrDuplicate. Operators are notified in the background; delivery
// problems never fail the submission.
func (s *Service) SubmitFeedback(ctx context.Context, key model.ClientKey, fb model.Feedback) (model.Feedback, error) {
	c, err := s.components()
	if err != nil {
		return model.Feedback{}, err
	}

	fb.ClientKey = key
	fb.Fingerprint = dedupe.Fingerprint(key, fb.Title, fb.Content)
	if err := c.deduper.CheckAndRegister(ctx, fb.Fingerprint); err != nil {
		metrics.RecordFeedbackSubmission("duplicate")
		return model.Feedback{}, err
	}

	fb.ID = uuid.NewString()
	fb.SubmittedAt = s.now()
	if fb.Timestamp.IsZero() {
		fb.Timestamp = fb.SubmittedAt
	}

	if err := c.feedback.Put(ctx, fb.ID, fb, s.feedbackRetention); err != nil {
		c.deduper.Unregister(ctx, fb.Fingerprint)
		metrics.RecordFeedbackSubmission("failed")
		return model.Feedback{}, fmt.Errorf("store feedback: %w", err)
	}

	if err := c.notifyQueue.Enqueue(ctx, notify.FeedbackMessage(fb)); err != nil {
		s.logger.Warn(ctx, "feedback notification dropped",
			logger.String("feedback_id", fb.ID),
			logger.Error(err))
	}

	metrics.RecordFeedbackSubmission("submitted")
	return fb, nil
}

// GetFeedback returns a stored submission by id.
func (s *Service) GetFeedback(ctx context.Context, id string) (model.Feedback, error) {
	c, err := s.components()
	if err != nil {
		return model.Feedback{}, err
	}
	return c.feedback.Get(ctx, id)
}
