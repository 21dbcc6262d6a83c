package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/okian/netpulse/internal/domain/identity"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/metrics"
	"golang.org/x/time/rate"
)

// Rate limiter defaults.
const (
	defaultIdleTTL         = 10 * time.Minute
	defaultCleanupInterval = time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client key with a token bucket.
// A limiter built with rps <= 0 lets every request through.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	interval time.Duration
	resolver *identity.Resolver
	now      func() time.Time

	mu      sync.Mutex
	clients map[model.ClientKey]*clientLimiter

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithIdleTTL drops limiters for clients silent longer than d.
func WithIdleTTL(d time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		if d > 0 {
			l.idleTTL = d
		}
	}
}

// WithCleanupInterval sets how often idle limiters are dropped.
func WithCleanupInterval(d time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLimiterResolver sets the resolver used to key clients.
func WithLimiterResolver(r *identity.Resolver) RateLimiterOption {
	return func(l *RateLimiter) {
		if r != nil {
			l.resolver = r
		}
	}
}

// NewRateLimiter creates a per-client limiter allowing rps requests per second
// with the given burst.
func NewRateLimiter(rps float64, burst int, opts ...RateLimiterOption) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  defaultIdleTTL,
		interval: defaultCleanupInterval,
		resolver: identity.NewResolver(),
		now:      time.Now,
		clients:  make(map[model.ClientKey]*clientLimiter),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether requests are throttled at all.
func (l *RateLimiter) Enabled() bool {
	return l != nil && l.rps > 0
}

// Start launches the idle cleanup loop.
func (l *RateLimiter) Start() {
	if !l.Enabled() {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		t := time.NewTicker(l.interval)
		defer t.Stop()
		for {
			select {
			case <-l.stopChan:
				return
			case <-t.C:
				l.cleanup()
			}
		}
	}()
}

// Close stops the cleanup loop.
func (l *RateLimiter) Close() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *RateLimiter) get(key model.ClientKey) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cl, ok := l.clients[key]; ok {
		cl.lastSeen = l.now()
		return cl.limiter
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.clients[key] = &clientLimiter{limiter: lim, lastSeen: l.now()}
	return lim
}

func (l *RateLimiter) cleanup() int {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, cl := range l.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// retryAfterSeconds estimates the wait for one token.
func (l *RateLimiter) retryAfterSeconds(tokens float64) int {
	need := 1 - tokens
	if need < 0 {
		need = 0
	}
	sec := int(math.Ceil(need / float64(l.rps)))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// Middleware fails fast with a 429 envelope when the client has no token left.
// Requests for which exempt returns true bypass the bucket without spending a token.
func (l *RateLimiter) Middleware(next http.HandlerFunc, endpoint string, exempt func(*http.Request) bool) http.HandlerFunc {
	if !l.Enabled() {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if exempt != nil && exempt(r) {
			next(w, r)
			return
		}
		lim := l.get(l.resolver.Resolve(r.Header))
		tokens := lim.Tokens()
		if !lim.Allow() {
			metrics.RecordRateLimited(endpoint)
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds(tokens)))
			writeError(w, r, NewKind("api.rate_limit", ErrRateLimited))
			return
		}
		next(w, r)
	}
}
