package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/okian/netpulse/internal/adapters/http/api"
	"github.com/okian/netpulse/internal/adapters/mq/worker"
	"github.com/okian/netpulse/internal/adapters/notify"
	app "github.com/okian/netpulse/internal/app"
	"github.com/okian/netpulse/internal/config"
	"github.com/okian/netpulse/internal/domain/identity"
	"github.com/okian/netpulse/pkg/logger"
	"github.com/okian/netpulse/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	baseWriteTimeout          = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
	measuredPhases            = 3
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "netpulse exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := newService(cfg, log)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	resolver := identity.NewResolver(identity.WithHeader(cfg.IdentityHeader))
	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, api.WithLimiterResolver(resolver))
	limiter.Start()
	defer limiter.Close()

	mux := http.NewServeMux()
	api.NewServer(svc, svc,
		api.WithResolver(resolver),
		api.WithRateLimiter(limiter),
		api.WithVersion(version),
		api.WithServerLogger(log.Named("api")),
	).Register(ctx, mux)

	srv := newHTTPServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newService maps configuration onto service options.
func newService(cfg *config.Config, log logger.Logger) *app.Service {
	opts := []app.Option{
		app.WithLogger(log),
		app.WithWorkerCount(cfg.NotifyWorkerCount),
		app.WithQueueSize(cfg.NotifyQueueSize),
		app.WithDedupeSize(cfg.FeedbackDedupSize),
		app.WithDedupeWindow(cfg.FeedbackDedupWindow()),
		app.WithResultTTL(cfg.ResultTTL()),
		app.WithFeedbackRetention(cfg.FeedbackRetention()),
		app.WithDurationLimits(cfg.DefaultTestDurationSeconds, cfg.MaxTestDurationSeconds),
		app.WithPhaseTimeScale(cfg.PhaseTimeScale()),
		app.WithNotifyTimeout(cfg.NotifyTimeout()),
		app.WithNotifier(buildNotifier(cfg)),
	}
	if cfg.MeasurementSeed != 0 {
		opts = append(opts, app.WithMeasurementSeed(cfg.MeasurementSeed))
	}
	return app.New(opts...)
}

// buildNotifier returns the configured notification channels, or a no-op.
func buildNotifier(cfg *config.Config) worker.Notifier {
	var channels []notify.Notifier
	if cfg.SMTPHost != "" {
		channels = append(channels, notify.NewEmail(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       splitList(cfg.SMTPTo),
		}))
	}
	if cfg.TelegramBotToken != "" {
		channels = append(channels, notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	switch len(channels) {
	case 0:
		return notify.Noop{}
	case 1:
		return channels[0]
	default:
		return notify.NewMulti(channels...)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// newHTTPServer sizes the write timeout to the longest allowed network test.
func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	longest := time.Duration(cfg.MaxTestDurationSeconds) * cfg.PhaseTimeScale() * measuredPhases
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      baseWriteTimeout + longest,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes gauges that are not updated on the hot path.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if active, ok := stats["activeTests"].(int); ok {
		metrics.UpdateGuardActive(active)
	}
	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if dedupe, ok := stats["dedupeEntries"].(int64); ok {
		metrics.UpdateDedupeEntries(dedupe)
	}
}
