// Package guard provides a per-identity single-flight marker: at most one
// operation of a given kind may be in flight for a client at a time.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/metrics"
)

// Kind names a guarded operation. Guards of different kinds never conflict.
type Kind string

// KindNetworkTest guards network test execution.
const KindNetworkTest Kind = "network_test"

// Release drops a held guard. It is safe to call more than once.
type Release func()

// Entry describes one held guard.
type Entry struct {
	Kind       Kind
	ClientKey  model.ClientKey
	AcquiredAt time.Time
}

type entryKey struct {
	kind Kind
	key  model.ClientKey
}

// Guard tracks in-flight operations keyed by (kind, client).
type Guard struct {
	mu     sync.Mutex
	active map[entryKey]time.Time
	now    func() time.Time
}

// Option applies a configuration option to the Guard.
type Option func(*Guard)

// WithClock overrides the time source used for AcquiredAt.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates an empty Guard.
func New(opts ...Option) *Guard {
	g := &Guard{
		active: make(map[entryKey]time.Time),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAcquire establishes the guard for (kind, key) or returns ErrInFlight if
// one is already held. Callers must defer the returned Release immediately.
func (g *Guard) TryAcquire(_ context.Context, kind Kind, key model.ClientKey) (Release, error) {
	k := entryKey{kind: kind, key: key}

	g.mu.Lock()
	if _, held := g.active[k]; held {
		g.mu.Unlock()
		metrics.RecordGuardConflict(string(kind))
		return nil, ErrInFlight
	}
	g.active[k] = g.now()
	n := len(g.active)
	g.mu.Unlock()
	metrics.UpdateGuardActive(n)

	var once sync.Once
	return func() {
		once.Do(func() { g.release(k) })
	}, nil
}

func (g *Guard) release(k entryKey) {
	g.mu.Lock()
	delete(g.active, k)
	n := len(g.active)
	g.mu.Unlock()
	metrics.UpdateGuardActive(n)
}

// Held reports whether a guard is currently held for (kind, key).
func (g *Guard) Held(_ context.Context, kind Kind, key model.ClientKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[entryKey{kind: kind, key: key}]
	return ok
}

// Active returns a snapshot of held guards.
func (g *Guard) Active(_ context.Context) []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Entry, 0, len(g.active))
	for k, at := range g.active {
		out = append(out, Entry{Kind: k.kind, ClientKey: k.key, AcquiredAt: at})
	}
	return out
}

// Len returns the number of held guards.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
