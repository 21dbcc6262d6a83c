package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/netpulse/internal/loadcheck"
	"github.com/okian/netpulse/pkg/logger"
	"github.com/spf13/cobra"
)

// Default configuration constants.
const (
	defaultClients     = 50
	defaultConcurrency = 4
	defaultParallel    = 8
	defaultDuration    = 5
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

var errViolations = errors.New("load check found violations")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loadcheck",
		Short:         "Exercise a running netpulse service with many synthetic clients",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cfg := &loadcheck.Config{}
	var logFormat string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fire concurrent network tests and duplicate feedback per client",
		Example: `  loadcheck run
  loadcheck run --url http://localhost:8080 --clients 200 --concurrency 8`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat)); err != nil {
				return err
			}
			if cfg.Verbose {
				_ = logger.SetLevelString("debug")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
			defer cancel()

			report, err := loadcheck.Run(ctx, cfg)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			if !report.OK() {
				return fmt.Errorf("%w: %d", errViolations, len(report.Violations))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVar(&cfg.Clients, "clients", defaultClients, "Number of distinct synthetic clients")
	f.IntVar(&cfg.Concurrency, "concurrency", defaultConcurrency, "Simultaneous network tests per client")
	f.IntVar(&cfg.Parallel, "parallel", defaultParallel, "Clients exercised at the same time")
	f.StringVar(&cfg.TestType, "type", "speed", "Network test type: speed, latency or full")
	f.IntVar(&cfg.Duration, "duration", defaultDuration, "Requested test duration in seconds")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	f.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	return cmd
}

func printReport(cmd *cobra.Command, r *loadcheck.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "network tests: %d sent, %d completed, %d conflicted, %d failed\n",
		r.TestsStarted, r.TestsCompleted, r.TestsConflicted, r.TestsFailed)
	fmt.Fprintf(out, "results read back: %d ok, %d missing\n", r.ResultsRead, r.ResultsMissing)
	fmt.Fprintf(out, "feedback: %d accepted, %d duplicate, %d failed\n",
		r.FeedbackAccepted, r.FeedbackDuplicate, r.FeedbackFailed)
	fmt.Fprintf(out, "rate limited: %d\n", r.RateLimited)
	fmt.Fprintf(out, "duration: %s\n", r.Duration.Round(time.Millisecond))
	for _, v := range r.Violations {
		fmt.Fprintf(out, "VIOLATION: %s\n", v)
	}
}
