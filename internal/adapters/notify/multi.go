package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Multi fans a notification out to every configured channel concurrently.
// One channel failing does not stop the others.
type Multi struct {
	notifiers []Notifier
}

var _ Notifier = (*Multi)(nil)

// NewMulti combines notifiers. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Name implements Notifier.
func (m *Multi) Name() string { return "multi" }

// ReportsDelivery reports that Multi records metrics per channel.
func (m *Multi) ReportsDelivery() bool { return true }

// Len returns the number of channels.
func (m *Multi) Len() int { return len(m.notifiers) }

// Notify implements Notifier. It returns every channel error joined.
func (m *Multi) Notify(ctx context.Context, n model.Notification) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, notifier := range m.notifiers {
		notifier := notifier
		g.Go(func() error {
			start := time.Now()
			err := notifier.Notify(ctx, n)
			metrics.RecordNotificationLatency(float64(time.Since(start).Milliseconds()))
			if err != nil {
				metrics.RecordNotificationFailed(notifier.Name())
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			metrics.RecordNotificationSent(notifier.Name())
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
