// Package dedupe rejects repeated submissions of the same content inside a
// time window.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/netpulse/pkg/metrics"
)

const (
	defaultWindow  = 5 * time.Minute
	defaultMaxSize = 50_000
)

// Deduper remembers fingerprints of completed submissions for a window.
type Deduper interface {
	// CheckAndRegister atomically returns ErrDuplicate if fingerprint was
	// registered less than the window ago, otherwise (re-)registers it.
	CheckAndRegister(ctx context.Context, fingerprint string) error

	// Unregister forgets fingerprint. Only used to roll back a registration
	// whose submission could not be persisted.
	Unregister(ctx context.Context, fingerprint string)

	// Purge drops expired records and returns how many were removed.
	Purge(ctx context.Context) int

	Size() int64
}

// record is one remembered submission.
type record struct {
	fingerprint  string
	registeredAt time.Time
}

// inMemoryDeduper keeps records in registration order: front is newest,
// back is oldest. Expired records are trimmed from the back on every write.
// When maxSize > 0 the oldest record is evicted to make room.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	window  time.Duration
	maxSize int
	size    atomic.Int64
	now     func() time.Time
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		window:  defaultWindow,
		maxSize: defaultMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CheckAndRegister implements Deduper.
func (d *inMemoryDeduper) CheckAndRegister(_ context.Context, fingerprint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.purgeLocked(now)

	if el, ok := d.seen[fingerprint]; ok {
		// purgeLocked removed everything outside the window.
		rec := el.Value.(*record)
		if now.Sub(rec.registeredAt) < d.window {
			return ErrDuplicate
		}
		d.removeLocked(el)
	}

	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.removeLocked(d.order.Back())
	}

	d.seen[fingerprint] = d.order.PushFront(&record{fingerprint: fingerprint, registeredAt: now})
	d.size.Add(1)
	metrics.UpdateDedupeEntries(d.size.Load())
	return nil
}

// Unregister implements Deduper.
func (d *inMemoryDeduper) Unregister(_ context.Context, fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[fingerprint]; ok {
		d.removeLocked(el)
		metrics.UpdateDedupeEntries(d.size.Load())
	}
}

// Purge implements Deduper.
func (d *inMemoryDeduper) Purge(_ context.Context) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.purgeLocked(d.now())
	metrics.UpdateDedupeEntries(d.size.Load())
	return n
}

// Size returns the current number of remembered fingerprints.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// purgeLocked must be called with d.mu held.
func (d *inMemoryDeduper) purgeLocked(now time.Time) int {
	removed := 0
	for el := d.order.Back(); el != nil; el = d.order.Back() {
		if now.Sub(el.Value.(*record).registeredAt) < d.window {
			break
		}
		d.removeLocked(el)
		removed++
	}
	return removed
}

// removeLocked must be called with d.mu held.
func (d *inMemoryDeduper) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	rec := d.order.Remove(el).(*record)
	delete(d.seen, rec.fingerprint)
	d.size.Add(-1)
}
