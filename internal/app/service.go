// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	notifyqueue "github.com/okian/netpulse/internal/adapters/mq/queue"
	workerpool "github.com/okian/netpulse/internal/adapters/mq/worker"
	"github.com/okian/netpulse/internal/adapters/notify"
	repository "github.com/okian/netpulse/internal/adapters/repository"
	"github.com/okian/netpulse/internal/domain/dedupe"
	"github.com/okian/netpulse/internal/domain/guard"
	"github.com/okian/netpulse/internal/domain/measurement"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/logger"
	"github.com/okian/netpulse/pkg/metrics"
)

// Store names, used as metric labels.
const (
	resultsStoreName  = "results"
	feedbackStoreName = "feedback"
)

const maxDedupePurgeInterval = time.Minute

// Service orchestrates network tests and feedback submissions.
type Service struct {
	mu sync.RWMutex

	// Core components
	guard       *guard.Guard
	deduper     dedupe.Deduper
	results     repository.Store[model.TestRecord]
	feedback    repository.Store[model.Feedback]
	pipeline    *measurement.Pipeline
	source      measurement.Source
	notifyQueue notifyqueue.Queue
	workerPool  *workerpool.Pool
	notifier    workerpool.Notifier

	// Configuration
	limits            measurement.Limits
	resultTTL         time.Duration
	feedbackRetention time.Duration
	dedupeWindow      time.Duration
	dedupeSize        int
	queueSize         int
	workerCount       int
	notifyTimeout     time.Duration
	phaseTimeScale    time.Duration
	seed              int64
	now               func() time.Time

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of notification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the notification queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the number of remembered feedback fingerprints.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDedupeWindow sets how long identical feedback is rejected.
func WithDedupeWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.dedupeWindow = window
		}
	}
}

// WithResultTTL sets how long network test records stay readable.
func WithResultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.resultTTL = ttl
		}
	}
}

// WithFeedbackRetention sets how long accepted feedback is kept.
func WithFeedbackRetention(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.feedbackRetention = ttl
		}
	}
}

// WithDurationLimits sets the default and maximum test duration in seconds.
func WithDurationLimits(defaultSeconds, maxSeconds int) Option {
	return func(s *Service) {
		if maxSeconds > 0 && defaultSeconds > 0 && defaultSeconds <= maxSeconds {
			s.limits = measurement.Limits{DefaultSeconds: defaultSeconds, MaxSeconds: maxSeconds}
		}
	}
}

// WithPhaseTimeScale sets the simulated wall time per requested second.
func WithPhaseTimeScale(scale time.Duration) Option {
	return func(s *Service) {
		if scale >= 0 {
			s.phaseTimeScale = scale
		}
	}
}

// WithMeasurementSeed seeds the synthetic measurement source.
func WithMeasurementSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithSource replaces the synthetic measurement source.
func WithSource(source measurement.Source) Option {
	return func(s *Service) {
		if source != nil {
			s.source = source
		}
	}
}

// WithNotifier sets the channel used for feedback notifications.
func WithNotifier(n workerpool.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithNotifyTimeout bounds a single notification delivery.
func WithNotifyTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		limits:            measurement.DefaultLimits(),
		resultTTL:         time.Hour,
		feedbackRetention: 24 * time.Hour,
		dedupeWindow:      5 * time.Minute,
		dedupeSize:        100_000,
		queueSize:         1024,
		workerCount:       runtime.NumCPU(),
		notifyTimeout:     5 * time.Second,
		phaseTimeScale:    20 * time.Millisecond,
		seed:              time.Now().UnixNano(),
		notifier:          notify.Noop{},
		now:               time.Now,
		stopCh:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting netpulse service...")

	s.stopCh = make(chan struct{})
	s.guard = guard.New(guard.WithClock(s.now))
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
		dedupe.WithWindow(s.dedupeWindow),
		dedupe.WithClock(s.now),
	)
	s.results = repository.NewTTLStore[model.TestRecord](ctx, resultsStoreName,
		repository.WithDefaultTTL(s.resultTTL),
		repository.WithClock(s.now),
	)
	s.feedback = repository.NewTTLStore[model.Feedback](ctx, feedbackStoreName,
		repository.WithDefaultTTL(s.feedbackRetention),
		repository.WithClock(s.now),
	)

	if s.source == nil {
		s.source = measurement.NewRandomSource(
			measurement.WithSeed(s.seed),
			measurement.WithTimeScale(s.phaseTimeScale),
		)
	}
	s.pipeline = measurement.NewPipeline(s.source, measurement.WithLogger(s.logger.Named("pipeline")))

	s.notifyQueue = notifyqueue.NewInMemoryQueue(notifyqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.notifyQueue, s.notifier,
		workerpool.WithLogger(s.logger.Named("notify")),
		workerpool.WithTimeout(s.notifyTimeout),
	)
	s.workerPool.Start(ctx)

	s.wg.Add(1)
	go s.purgeLoop(ctx, s.stopCh)

	s.started = true
	s.logger.Info(ctx, "netpulse service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("resultTTL", s.resultTTL),
		logger.Duration("dedupeWindow", s.dedupeWindow),
		logger.String("notifier", s.notifier.Name()),
	)

	return nil
}

// Stop gracefully shuts down the service. Queued notifications get a short
// grace period to drain.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping netpulse service...")

	close(s.stopCh)
	s.wg.Wait()

	if s.workerPool != nil {
		drainCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		if err := s.workerPool.Shutdown(drainCtx); err != nil {
			s.logger.Warn(ctx, "notification queue not drained", logger.Error(err))
		}
		cancel()
	}

	if s.results != nil {
		_ = s.results.Close()
	}
	if s.feedback != nil {
		_ = s.feedback.Close()
	}

	s.started = false
	s.logger.Info(ctx, "netpulse service stopped")
}

// purgeLoop drops expired dedupe records between submissions.
func (s *Service) purgeLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	interval := min(s.dedupeWindow, maxDedupePurgeInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if n := s.deduper.Purge(ctx); n > 0 {
				s.logger.Debug(ctx, "purged feedback fingerprints", logger.Int("count", n))
			}
		}
	}
}

// components returns the live components, or ErrNotStarted.
func (s *Service) components() (*components, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return &components{
		guard:       s.guard,
		deduper:     s.deduper,
		results:     s.results,
		feedback:    s.feedback,
		pipeline:    s.pipeline,
		notifyQueue: s.notifyQueue,
	}, nil
}

type components struct {
	guard       *guard.Guard
	deduper     dedupe.Deduper
	results     repository.Store[model.TestRecord]
	feedback    repository.Store[model.Feedback]
	pipeline    *measurement.Pipeline
	notifyQueue notifyqueue.Queue
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":           s.started,
		"workerCount":       s.workerCount,
		"queueSize":         s.queueSize,
		"dedupeSize":        s.dedupeSize,
		"maxDurationSecs":   s.limits.MaxSeconds,
		"resultTTLSecs":     int(s.resultTTL.Seconds()),
		"dedupeWindowSecs":  int(s.dedupeWindow.Seconds()),
		"notificationRoute": s.notifier.Name(),
	}

	if s.started {
		active := s.guard.Len()
		results := s.results.Len(ctx)
		feedback := s.feedback.Len(ctx)

		stats["activeTests"] = active
		stats["storedResults"] = results
		stats["storedFeedback"] = feedback
		stats["dedupeEntries"] = s.deduper.Size()
		stats["queueLength"] = s.notifyQueue.Len(ctx)
		stats["notificationsAttempted"] = s.workerPool.Processed()

		metrics.UpdateGuardActive(active)
		metrics.UpdateStoreEntries(resultsStoreName, results)
		metrics.UpdateStoreEntries(feedbackStoreName, feedback)
	}

	return stats
}
