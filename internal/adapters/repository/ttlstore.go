package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/okian/netpulse/pkg/metrics"
)

// entry carries its own deadline so expiry on read follows the store clock.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLStore implements Store on top of ttlcache. ttlcache's expiry loop
// evicts entries in the background; Get additionally checks the deadline
// so a read never observes an expired value.
type TTLStore[V any] struct {
	name  string
	cache *ttlcache.Cache[string, entry[V]]
	opts  options

	wg        sync.WaitGroup
	stopChan  chan struct{}
	closeOnce sync.Once
}

var _ Store[struct{}] = (*TTLStore[struct{}])(nil)

// NewTTLStore creates a named store and starts its background loops. The
// name labels the store's metrics.
func NewTTLStore[V any](ctx context.Context, name string, opts ...Option) *TTLStore[V] {
	o := options{
		defaultTTL:            defaultTTL,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cacheOpts := []ttlcache.Option[string, entry[V]]{
		ttlcache.WithTTL[string, entry[V]](o.defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, entry[V]](),
	}
	if o.capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, entry[V]](o.capacity))
	}

	s := &TTLStore[V]{
		name:     name,
		cache:    ttlcache.New(cacheOpts...),
		opts:     o,
		stopChan: make(chan struct{}),
	}

	s.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, entry[V]]) {
		metrics.RecordStoreEviction(s.name, evictionReason(reason))
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cache.Start()
	}()
	s.startMetricsUpdater(ctx)

	return s
}

// Name returns the store's metric label.
func (s *TTLStore[V]) Name() string { return s.name }

// Put implements Store.
func (s *TTLStore[V]) Put(_ context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.opts.defaultTTL
	}
	s.cache.Set(key, entry[V]{value: value, expiresAt: s.opts.now().Add(ttl)}, ttl)
	return nil
}

// Get implements Store.
func (s *TTLStore[V]) Get(_ context.Context, key string) (V, error) {
	var zero V
	item := s.cache.Get(key)
	if item == nil {
		return zero, ErrNotFound
	}
	e := item.Value()
	if !s.opts.now().Before(e.expiresAt) {
		s.cache.Delete(key)
		return zero, ErrNotFound
	}
	return e.value, nil
}

// Delete implements Store.
func (s *TTLStore[V]) Delete(_ context.Context, key string) {
	s.cache.Delete(key)
}

// Len implements Store.
func (s *TTLStore[V]) Len(_ context.Context) int {
	return s.cache.Len()
}

// Sweep implements Store.
func (s *TTLStore[V]) Sweep(_ context.Context) int {
	now := s.opts.now()
	removed := 0
	for key, item := range s.cache.Items() {
		if !now.Before(item.Value().expiresAt) {
			s.cache.Delete(key)
			removed++
		}
	}
	// Entries whose cache TTL elapsed on the wall clock.
	before := s.cache.Len()
	s.cache.DeleteExpired()
	removed += before - s.cache.Len()

	metrics.UpdateStoreEntries(s.name, s.cache.Len())
	return removed
}

// Close stops the expiry and metrics loops. It is safe to call more than once.
func (s *TTLStore[V]) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.cache.Stop()
	})
	s.wg.Wait()
	return nil
}

// startMetricsUpdater publishes the store size periodically.
func (s *TTLStore[V]) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoreEntries(s.name, s.cache.Len())
			}
		}
	}()
}

func evictionReason(r ttlcache.EvictionReason) string {
	switch r {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	default:
		return "other"
	}
}
