package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/netpulse/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type record struct {
	ID     string
	Status string
}

func TestTTLStore(t *testing.T) {
	Convey("Given a TTL store with an injected clock", t, func() {
		ctx := context.Background()
		clock := &fakeClock{now: time.Now()}
		s := repository.NewTTLStore[record](ctx, "results",
			repository.WithDefaultTTL(time.Hour),
			repository.WithClock(clock.Now),
		)
		defer func() { _ = s.Close() }()

		Convey("When an entry is written and read back", func() {
			So(s.Put(ctx, "t1", record{ID: "t1", Status: "running"}, 0), ShouldBeNil)
			got, err := s.Get(ctx, "t1")

			Convey("Then the value should be returned", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, record{ID: "t1", Status: "running"})
				So(s.Len(ctx), ShouldEqual, 1)
				So(s.Name(), ShouldEqual, "results")
			})
		})

		Convey("When an entry is overwritten", func() {
			So(s.Put(ctx, "t1", record{ID: "t1", Status: "running"}, 0), ShouldBeNil)
			So(s.Put(ctx, "t1", record{ID: "t1", Status: "completed"}, 0), ShouldBeNil)
			got, err := s.Get(ctx, "t1")

			Convey("Then the latest value should win", func() {
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, "completed")
				So(s.Len(ctx), ShouldEqual, 1)
			})
		})

		Convey("When a key was never written", func() {
			_, err := s.Get(ctx, "missing")

			Convey("Then ErrNotFound should be returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the TTL has passed but nothing swept yet", func() {
			So(s.Put(ctx, "t1", record{ID: "t1"}, time.Minute), ShouldBeNil)
			clock.Advance(time.Minute)
			_, err := s.Get(ctx, "t1")

			Convey("Then the entry should be reported as not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the TTL has not yet passed", func() {
			So(s.Put(ctx, "t1", record{ID: "t1"}, time.Minute), ShouldBeNil)
			clock.Advance(59 * time.Second)
			_, err := s.Get(ctx, "t1")

			Convey("Then reads should still succeed without extending the TTL", func() {
				So(err, ShouldBeNil)
				clock.Advance(time.Second)
				_, err = s.Get(ctx, "t1")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an entry is deleted", func() {
			So(s.Put(ctx, "t1", record{ID: "t1"}, 0), ShouldBeNil)
			s.Delete(ctx, "t1")
			s.Delete(ctx, "never-there")
			_, err := s.Get(ctx, "t1")

			Convey("Then it should be gone", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(s.Len(ctx), ShouldEqual, 0)
			})
		})

		Convey("When sweeping a mix of live and expired entries", func() {
			for i := 0; i < 3; i++ {
				So(s.Put(ctx, fmt.Sprintf("short-%d", i), record{}, time.Minute), ShouldBeNil)
			}
			So(s.Put(ctx, "long", record{ID: "long"}, time.Hour), ShouldBeNil)
			clock.Advance(2 * time.Minute)

			removed := s.Sweep(ctx)

			Convey("Then only the expired entries should be removed", func() {
				So(removed, ShouldEqual, 3)
				So(s.Len(ctx), ShouldEqual, 1)
				got, err := s.Get(ctx, "long")
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, "long")
			})
		})
	})
}

func TestTTLStoreWallClockExpiry(t *testing.T) {
	Convey("Given a TTL store on the real clock", t, func() {
		ctx := context.Background()
		s := repository.NewTTLStore[string](ctx, "feedback")
		defer func() { _ = s.Close() }()

		So(s.Put(ctx, "k", "v", 20*time.Millisecond), ShouldBeNil)
		time.Sleep(60 * time.Millisecond)

		Convey("Then the entry should expire on its own", func() {
			_, err := s.Get(ctx, "k")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestTTLStoreCapacity(t *testing.T) {
	Convey("Given a TTL store bounded to two entries", t, func() {
		ctx := context.Background()
		s := repository.NewTTLStore[int](ctx, "bounded", repository.WithCapacity(2))
		defer func() { _ = s.Close() }()

		So(s.Put(ctx, "a", 1, 0), ShouldBeNil)
		So(s.Put(ctx, "b", 2, 0), ShouldBeNil)
		So(s.Put(ctx, "c", 3, 0), ShouldBeNil)

		Convey("Then the oldest entry should be evicted", func() {
			So(s.Len(ctx), ShouldEqual, 2)
			_, err := s.Get(ctx, "a")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestTTLStoreConcurrentAccess(t *testing.T) {
	Convey("Given concurrent writers and readers", t, func() {
		ctx := context.Background()
		s := repository.NewTTLStore[int](ctx, "concurrent")
		defer func() { _ = s.Close() }()

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					key := fmt.Sprintf("%d-%d", w, i)
					_ = s.Put(ctx, key, i, 0)
					_, _ = s.Get(ctx, key)
				}
			}(w)
		}
		wg.Wait()

		Convey("Then every write should be present", func() {
			So(s.Len(ctx), ShouldEqual, 800)
		})
	})
}

func TestTTLStoreCloseStopsGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := repository.NewTTLStore[string](context.Background(), "leak",
		repository.WithMetricsUpdateInterval(time.Millisecond))
	_ = s.Put(context.Background(), "k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
