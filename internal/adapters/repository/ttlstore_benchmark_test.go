package repository_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/okian/netpulse/internal/adapters/repository"
)

func BenchmarkTTLStorePut(b *testing.B) {
	ctx := context.Background()
	s := repository.NewTTLStore[int](ctx, "bench")
	defer func() { _ = s.Close() }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Put(ctx, strconv.Itoa(i%10000), i, 0)
	}
}

func BenchmarkTTLStoreGetParallel(b *testing.B) {
	ctx := context.Background()
	s := repository.NewTTLStore[int](ctx, "bench")
	defer func() { _ = s.Close() }()
	for i := 0; i < 1000; i++ {
		_ = s.Put(ctx, strconv.Itoa(i), i, 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = s.Get(ctx, strconv.Itoa(i%1000))
			i++
		}
	})
}
