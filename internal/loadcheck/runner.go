package loadcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/okian/netpulse/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// clientOutcome is what one synthetic client observed.
type clientOutcome struct {
	completed    []string
	conflicts    int
	failed       int
	testsLimited int
	limited      int
	fbAccepted   int
	fbDuplicate  int
	fbFailed     int
	violations   []string
}

// Run executes the load check and returns its report. An error means the
// run itself could not proceed; broken guarantees land in Report.Violations.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.Get().Named("loadcheck")
	report := &Report{StartTime: time.Now()}

	log.Info(ctx, "starting netpulse load check",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("clients", cfg.Clients),
		logger.Int("concurrency", cfg.Concurrency),
		logger.Int("parallel", cfg.Parallel),
		logger.String("type", cfg.TestType),
		logger.Duration("timeout", cfg.Timeout))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.health(ctx); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var testIDs []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)
	for i := 0; i < cfg.Clients; i++ {
		key := clientKey(i)
		g.Go(func() error {
			out := exerciseClient(gctx, client, cfg, key, log)
			mu.Lock()
			defer mu.Unlock()
			merge(report, out)
			testIDs = append(testIDs, out.completed...)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load check interrupted: %w", err)
	}

	readBack(ctx, client, testIDs, cfg.Parallel, report)

	report.Duration = time.Since(report.StartTime)
	log.Info(ctx, "load check finished",
		logger.Int("testsCompleted", report.TestsCompleted),
		logger.Int("testsConflicted", report.TestsConflicted),
		logger.Int("testsFailed", report.TestsFailed),
		logger.Int("resultsRead", report.ResultsRead),
		logger.Int("feedbackAccepted", report.FeedbackAccepted),
		logger.Int("feedbackDuplicate", report.FeedbackDuplicate),
		logger.Int("rateLimited", report.RateLimited),
		logger.Int("violations", len(report.Violations)),
		logger.Duration("duration", report.Duration))
	return report, nil
}

// clientKey returns a synthetic address from the TEST-NET-2 block.
func clientKey(i int) string {
	return fmt.Sprintf("198.51.%d.%d", 100+(i/250)%100, 1+i%250)
}

// exerciseClient fires a burst of simultaneous tests for one client, then
// submits the same feedback twice.
func exerciseClient(ctx context.Context, c *httpClient, cfg *Config, key string, log logger.Logger) clientOutcome {
	var out clientOutcome
	statuses := make([]int, cfg.Concurrency)
	ids := make([]string, cfg.Concurrency)
	scores := make([]float64, cfg.Concurrency)

	var wg sync.WaitGroup
	for j := 0; j < cfg.Concurrency; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			resp, err := c.startTest(ctx, key, cfg.TestType, cfg.Duration)
			if err != nil {
				if cfg.Verbose {
					log.Warn(ctx, "network test request failed", logger.String("client", key), logger.Error(err))
				}
				return
			}
			statuses[j] = resp.Status
			if resp.Status == http.StatusOK {
				var data networkTestData
				if json.Unmarshal(resp.Body.Data, &data) == nil {
					ids[j] = data.TestID
					scores[j] = data.Results.Quality.Score
				}
			}
		}(j)
	}
	wg.Wait()

	for j, status := range statuses {
		switch status {
		case http.StatusOK:
			out.completed = append(out.completed, ids[j])
			if s := scores[j]; s < 0 || s > 100 {
				out.violations = append(out.violations, fmt.Sprintf("%s: quality score %.2f out of range", key, s))
			}
		case http.StatusConflict:
			out.conflicts++
		case http.StatusTooManyRequests:
			out.testsLimited++
		default:
			out.failed++
		}
	}
	if out.failed > 0 {
		out.violations = append(out.violations, fmt.Sprintf("%s: %d network test requests neither completed nor conflicted", key, out.failed))
	}
	if len(out.completed) == 0 && out.conflicts > 0 {
		out.violations = append(out.violations, fmt.Sprintf("%s: %d conflicts but no test completed", key, out.conflicts))
	}

	title := "load check " + key
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := c.submitFeedback(ctx, key, title)
		switch {
		case err != nil:
			out.fbFailed++
		case resp.Status == http.StatusOK:
			out.fbAccepted++
		case resp.Status == http.StatusConflict:
			out.fbDuplicate++
		case resp.Status == http.StatusTooManyRequests:
			out.limited++
		default:
			out.fbFailed++
		}
	}
	if out.fbAccepted > 1 {
		out.violations = append(out.violations, fmt.Sprintf("%s: identical feedback accepted %d times", key, out.fbAccepted))
	}
	return out
}

// readBack checks every completed test is readable by id.
func readBack(ctx context.Context, c *httpClient, ids []string, parallel int, report *Report) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			resp, err := c.getTest(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && resp.Status == http.StatusOK:
				report.ResultsRead++
			case err == nil && resp.Status == http.StatusTooManyRequests:
				report.RateLimited++
			default:
				report.ResultsMissing++
				report.Violations = append(report.Violations, "completed test "+id+" is not readable")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func merge(r *Report, out clientOutcome) {
	r.TestsStarted += len(out.completed) + out.conflicts + out.failed + out.testsLimited
	r.TestsCompleted += len(out.completed)
	r.TestsConflicted += out.conflicts
	r.TestsFailed += out.failed
	r.FeedbackAccepted += out.fbAccepted
	r.FeedbackDuplicate += out.fbDuplicate
	r.FeedbackFailed += out.fbFailed
	r.RateLimited += out.limited + out.testsLimited
	r.Violations = append(r.Violations, out.violations...)
}
