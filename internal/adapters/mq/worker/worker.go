// Package worker delivers queued notifications in the background.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/netpulse/internal/adapters/mq/queue"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/logger"
	"github.com/okian/netpulse/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultDeliveryTimeout = 5 * time.Second
	metricsUpdateInterval  = 5 * time.Second
	workerShutdownTimeout  = 5 * time.Second
)

// Notifier delivers a notification.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n model.Notification) error
}

// DeliveryReporter is implemented by notifiers that record per-channel
// delivery metrics themselves. Workers record them for everyone else.
type DeliveryReporter interface {
	ReportsDelivery() bool
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker delivers jobs using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called,
	// or the queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining the queue.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker. Delivery failures are logged and
// counted, never retried.
type InMemoryWorker struct {
	queue    Queue
	notifier Notifier
	name     string
	timeout  time.Duration

	processed *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

var _ Worker = (*InMemoryWorker)(nil)

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, notifier Notifier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		notifier:  notifier,
		name:      "worker",
		timeout:   defaultDeliveryTimeout,
		processed: new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.deliver(ctx, job); err != nil {
				w.logger.Warn(ctx, "notification not delivered",
					logger.String("notification_id", job.ID),
					logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of jobs this worker attempted.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

// deliver makes one bounded delivery attempt.
func (w *InMemoryWorker) deliver(ctx context.Context, job queue.Job) error {
	defer w.processed.Add(1)

	dctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	err := w.notifier.Notify(dctx, job)
	if r, ok := w.notifier.(DeliveryReporter); !ok || !r.ReportsDelivery() {
		channel := w.notifier.Name()
		metrics.RecordNotificationLatency(float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.RecordNotificationFailed(channel)
		} else {
			metrics.RecordNotificationSent(channel)
		}
	}
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "delivery_failed")
		metrics.RecordErrorByType("delivery_failed", "low")
		return fmt.Errorf("deliver %s via %s: %w", job.ID, w.notifier.Name(), err)
	}
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	lastProcessed     int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a new worker pool. workerCount < 1 selects runtime.NumCPU().
// opts apply to every worker; names are assigned per worker.
func NewPool(workerCount int, q Queue, notifier Notifier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{}, opts...)
		workerOpts = append(workerOpts, WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(q, notifier, workerOpts...)
	}

	metrics.UpdateWorkerActiveCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns the number of jobs attempted by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	p.wg.Add(1)
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater logs delivery throughput periodically.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics(ctx)
		}
	}
}

func (p *Pool) updateMetrics(ctx context.Context) {
	now := time.Now()
	processed := p.Processed()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 && processed > p.lastProcessed {
		p.logger.Debug(ctx, "notification throughput",
			logger.Float64("per_second", float64(processed-p.lastProcessed)/elapsed))
	}
	p.lastProcessed = processed
	p.lastProcessedTime = now
}

// Stop stops all workers without draining the queue.
func (p *Pool) Stop() {
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	for _, w := range p.workers {
		w.shutdownOnce.Do(func() { close(w.shutdown) })
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
	p.wg.Wait()
	metrics.UpdateWorkerActiveCount(0)
}

// Shutdown closes the queue and lets workers drain it. Workers still busy
// when ctx expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
		if timedOut {
			break
		}
	}

	p.Stop()
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
	return nil
}
