// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/netpulse/internal/domain/identity"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	NetworkTestDependencies
	FeedbackDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	networkTestHandler *NetworkTestHandler
	feedbackHandler    *FeedbackHandler
	limiter            *RateLimiter
	resolver           *identity.Resolver
	inFlight           InFlightChecker
}

// InFlightChecker reports whether a client already has a network test running.
// When deps implement it, POST /network-test calls that are bound to conflict
// skip the rate limiter, so the client sees 409 instead of 429.
type InFlightChecker interface {
	TestInFlight(ctx context.Context, key model.ClientKey) bool
}

type serverConfig struct {
	resolver *identity.Resolver
	limiter  *RateLimiter
	version  string
	log      logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

// WithResolver sets the client identity resolver.
func WithResolver(r *identity.Resolver) ServerOption {
	return func(c *serverConfig) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithRateLimiter throttles the feature endpoints per client.
func WithRateLimiter(l *RateLimiter) ServerOption {
	return func(c *serverConfig) {
		c.limiter = l
	}
}

// WithVersion sets the version reported by /healthz and GET /feedback.
func WithVersion(v string) ServerOption {
	return func(c *serverConfig) {
		if v != "" {
			c.version = v
		}
	}
}

// WithServerLogger sets the handler logger.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(c *serverConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{version: "dev"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.resolver == nil {
		cfg.resolver = identity.NewResolver()
	}
	if cfg.log == nil {
		cfg.log = logger.Get().Named("api")
	}
	inFlight, _ := deps.(InFlightChecker)
	return &Server{
		healthHandler:      NewHealthHandler(cfg.version),
		statsHandler:       NewStatsHandler(statsProvider),
		networkTestHandler: NewNetworkTestHandler(deps, cfg.resolver, cfg.log),
		feedbackHandler:    NewFeedbackHandler(deps, cfg.resolver, cfg.version, cfg.log),
		limiter:            cfg.limiter,
		resolver:           cfg.resolver,
		inFlight:           inFlight,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/network-test", s.feature(s.networkTestHandler.HandleNetworkTest, "network_test", s.testConflict))
	mux.HandleFunc("/feedback", s.feature(s.feedbackHandler.HandleFeedback, "feedback", nil))
}

// feature applies the request id, metrics and rate limit chain.
func (s *Server) feature(h http.HandlerFunc, endpoint string, exempt func(*http.Request) bool) http.HandlerFunc {
	return RequestIDMiddleware(MetricsMiddleware(s.limiter.Middleware(h, endpoint, exempt), endpoint))
}

// testConflict reports a test start from a client whose previous test is still running.
func (s *Server) testConflict(r *http.Request) bool {
	if s.inFlight == nil || r.Method != http.MethodPost {
		return false
	}
	return s.inFlight.TestInFlight(r.Context(), s.resolver.Resolve(r.Header))
}
