package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/okian/netpulse/internal/adapters/http/api"
	service "github.com/okian/netpulse/internal/app"
	"github.com/okian/netpulse/internal/domain/identity"
	"github.com/okian/netpulse/internal/domain/measurement"
	"github.com/okian/netpulse/internal/domain/model"
	"github.com/okian/netpulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type envelope struct {
	Success   bool            `json:"success"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
}

type networkTestData struct {
	TestID   string                   `json:"testId"`
	Type     string                   `json:"type"`
	ClientIP string                   `json:"clientIP"`
	Results  *model.MeasurementResult `json:"results"`
}

type feedbackData struct {
	FeedbackID string `json:"feedbackId"`
	Status     string `json:"status"`
	Type       string `json:"type"`
}

// gatedSource holds every download phase until the gate is closed.
type gatedSource struct {
	measurement.Source
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedSource) Throughput(ctx context.Context, phase measurement.Phase, plan measurement.Plan) ([]float64, error) {
	if phase == measurement.PhaseDownload {
		g.entered <- struct{}{}
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.Source.Throughput(ctx, phase, plan)
}

type failingNotifier struct {
	calls atomic.Int32
}

func (n *failingNotifier) Name() string { return "failing" }

func (n *failingNotifier) Notify(context.Context, model.Notification) error {
	n.calls.Add(1)
	return errors.New("smtp: connection refused")
}

type testServer struct {
	svc *service.Service
	mux *http.ServeMux
}

func newTestServer(svcOpts []service.Option, apiOpts ...api.ServerOption) *testServer {
	svcOpts = append([]service.Option{service.WithPhaseTimeScale(0), service.WithWorkerCount(1)}, svcOpts...)
	svc := service.New(svcOpts...)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, svc, apiOpts...).Register(context.Background(), mux)
	return &testServer{svc: svc, mux: mux}
}

func (s *testServer) do(method, path, client, body string) (*httptest.ResponseRecorder, envelope) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if client != "" {
		req.Header.Set("X-Forwarded-For", client)
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

const validFeedback = `{"type":"bug","title":"Slow upload","content":"Upload stalls at 5 Mbps","rating":2}`

func TestServer_Feedback(t *testing.T) {
	Convey("Given a running API server", t, func() {
		ts := newTestServer(nil)
		Reset(ts.svc.Stop)

		Convey("When a client submits valid feedback", func() {
			w, env := ts.do(http.MethodPost, "/feedback", "10.0.0.1", validFeedback)

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(env.Success, ShouldBeTrue)
				So(env.RequestID, ShouldNotBeEmpty)
				So(env.Timestamp, ShouldNotBeEmpty)

				var data feedbackData
				So(json.Unmarshal(env.Data, &data), ShouldBeNil)
				So(data.FeedbackID, ShouldNotBeEmpty)
				So(data.Status, ShouldEqual, "submitted")
				So(data.Type, ShouldEqual, "bug")
			})

			Convey("Then the identical submission should be rejected as a duplicate", func() {
				w, env := ts.do(http.MethodPost, "/feedback", "10.0.0.1", validFeedback)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(env.Success, ShouldBeFalse)
				So(env.Error, ShouldContainSubstring, "Duplicate")
			})

			Convey("Then a case and whitespace variant should also be a duplicate", func() {
				w, _ := ts.do(http.MethodPost, "/feedback", "10.0.0.1",
					`{"type":"bug","title":"  SLOW   upload","content":"upload stalls at 5 mbps "}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
			})

			Convey("Then another client may submit the same text", func() {
				w, _ := ts.do(http.MethodPost, "/feedback", "10.0.0.2", validFeedback)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the title is empty", func() {
			w, env := ts.do(http.MethodPost, "/feedback", "10.0.0.1", `{"title":"","content":"x"}`)

			Convey("Then it should be a validation error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(env.Success, ShouldBeFalse)
				So(env.Error, ShouldContainSubstring, "title is required")
			})
		})

		Convey("When the content is too long and the title missing", func() {
			body := `{"content":"` + strings.Repeat("x", 2001) + `"}`
			w, env := ts.do(http.MethodPost, "/feedback", "10.0.0.1", body)

			Convey("Then every problem should be reported", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(env.Error, ShouldContainSubstring, "title is required")
				So(env.Error, ShouldContainSubstring, "2000")
			})
		})

		Convey("When the client clock is sent as epoch milliseconds", func() {
			w, env := ts.do(http.MethodPost, "/feedback", "10.0.0.3",
				`{"type":"question","title":"Jitter","content":"What is jitter?","timestamp":1735787045123}`)

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(env.Success, ShouldBeTrue)
			})
		})

		Convey("When the body is not JSON", func() {
			w, env := ts.do(http.MethodPost, "/feedback", "10.0.0.1", `{not json`)

			Convey("Then it should be a validation error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(env.Error, ShouldContainSubstring, "invalid JSON")
			})
		})

		Convey("When the descriptor is requested", func() {
			w, env := ts.do(http.MethodGet, "/feedback", "", "")

			Convey("Then it should describe the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var desc map[string]any
				So(json.Unmarshal(env.Data, &desc), ShouldBeNil)
				So(desc["service"], ShouldEqual, "feedback")
				So(desc["status"], ShouldEqual, "operational")
			})
		})

		Convey("When an unsupported method is used", func() {
			w, env := ts.do(http.MethodDelete, "/feedback", "", "")

			Convey("Then it should be rejected with the allowed methods", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(w.Header().Get("Allow"), ShouldEqual, "GET, POST")
				So(env.Success, ShouldBeFalse)
			})
		})
	})
}

func TestServer_FeedbackNotificationFailure(t *testing.T) {
	Convey("Given a server whose notifier always fails", t, func() {
		notifier := &failingNotifier{}
		ts := newTestServer([]service.Option{service.WithNotifier(notifier)})
		Reset(ts.svc.Stop)

		Convey("When feedback is submitted", func() {
			w, env := ts.do(http.MethodPost, "/feedback", "10.0.0.9", validFeedback)

			Convey("Then the submission should still succeed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(env.Success, ShouldBeTrue)
			})
		})
	})
}

func TestServer_NetworkTest(t *testing.T) {
	Convey("Given a running API server", t, func() {
		ts := newTestServer(nil)
		Reset(ts.svc.Stop)

		Convey("When a full test of 30 seconds is requested", func() {
			w, env := ts.do(http.MethodPost, "/network-test", "10.0.0.1", `{"type":"full","duration":30}`)

			Convey("Then the results should carry a bounded quality score", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(env.Success, ShouldBeTrue)

				var data networkTestData
				So(json.Unmarshal(env.Data, &data), ShouldBeNil)
				So(data.TestID, ShouldNotBeEmpty)
				So(data.Type, ShouldEqual, "full")
				So(data.ClientIP, ShouldEqual, "10.0.0.1")
				So(data.Results, ShouldNotBeNil)
				So(data.Results.Quality.Score, ShouldBeBetweenOrEqual, 0, 100)
				So(data.Results.Quality.Grade, ShouldNotBeEmpty)
			})

			Convey("Then the stored record should be readable by id", func() {
				var data networkTestData
				So(json.Unmarshal(env.Data, &data), ShouldBeNil)

				w, env := ts.do(http.MethodGet, "/network-test?testId="+data.TestID, "", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var rec model.TestRecord
				So(json.Unmarshal(env.Data, &rec), ShouldBeNil)
				So(rec.TestID, ShouldEqual, data.TestID)
				So(rec.Status, ShouldEqual, model.TestStatusCompleted)
			})
		})

		Convey("When the duration exceeds the maximum", func() {
			w, env := ts.do(http.MethodPost, "/network-test", "10.0.0.1", `{"type":"speed","duration":100}`)

			Convey("Then it should be a validation error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(env.Error, ShouldContainSubstring, "exceeds maximum")
			})
		})

		Convey("When the test type is unknown", func() {
			w, env := ts.do(http.MethodPost, "/network-test", "10.0.0.1", `{"type":"bandwidth"}`)

			Convey("Then it should be a validation error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(env.Error, ShouldContainSubstring, "bandwidth")
			})
		})

		Convey("When an unknown test id is requested", func() {
			w, env := ts.do(http.MethodGet, "/network-test?testId=nope", "", "")

			Convey("Then it should not be found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(env.Error, ShouldEqual, "Test not found or expired")
			})
		})

		Convey("When the test id is missing", func() {
			w, _ := ts.do(http.MethodGet, "/network-test", "", "")

			Convey("Then it should be a validation error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an unsupported method is used", func() {
			w, _ := ts.do(http.MethodPut, "/network-test", "", "")

			Convey("Then it should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(w.Header().Get("Allow"), ShouldEqual, "GET, POST")
			})
		})
	})
}

func TestServer_NetworkTestConcurrency(t *testing.T) {
	Convey("Given a server whose tests block until released", t, func() {
		src := &gatedSource{
			Source:  measurement.NewRandomSource(measurement.WithTimeScale(0)),
			entered: make(chan struct{}, 16),
			gate:    make(chan struct{}),
		}
		ts := newTestServer([]service.Option{service.WithSource(src)})
		Reset(ts.svc.Stop)

		Convey("When one client fires several tests at once", func() {
			const n = 5
			codes := make(chan int, n)
			for i := 0; i < n; i++ {
				go func() {
					w, _ := ts.do(http.MethodPost, "/network-test", "10.0.0.1", `{"type":"speed","duration":5}`)
					codes <- w.Code
				}()
			}
			<-src.entered

			Convey("Then exactly one should run and the rest conflict", func() {
				conflicts := 0
				for i := 0; i < n-1; i++ {
					if <-codes == http.StatusConflict {
						conflicts++
					}
				}
				So(conflicts, ShouldEqual, n-1)

				close(src.gate)
				So(<-codes, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestServer_NetworkTestConflictBeatsRateLimit(t *testing.T) {
	Convey("Given a rate limited server whose tests block until released", t, func() {
		src := &gatedSource{
			Source:  measurement.NewRandomSource(measurement.WithTimeScale(0)),
			entered: make(chan struct{}, 16),
			gate:    make(chan struct{}),
		}
		resolver := identity.NewResolver()
		limiter := api.NewRateLimiter(0.001, 2, api.WithLimiterResolver(resolver))
		ts := newTestServer([]service.Option{service.WithSource(src)}, api.WithResolver(resolver), api.WithRateLimiter(limiter))
		Reset(func() {
			limiter.Close()
			ts.svc.Stop()
		})

		Convey("When a client retries far past its burst while a test runs", func() {
			first := make(chan int, 1)
			go func() {
				w, _ := ts.do(http.MethodPost, "/network-test", "10.0.0.1", `{"type":"speed","duration":5}`)
				first <- w.Code
			}()
			<-src.entered

			codes := make([]int, 0, 5)
			for i := 0; i < 5; i++ {
				w, _ := ts.do(http.MethodPost, "/network-test", "10.0.0.1", `{"type":"speed","duration":5}`)
				codes = append(codes, w.Code)
			}
			close(src.gate)

			Convey("Then every retry should conflict rather than be throttled", func() {
				for _, code := range codes {
					So(code, ShouldEqual, http.StatusConflict)
				}
				So(<-first, ShouldEqual, http.StatusOK)
			})

			Convey("Then the retries should not spend the client's tokens", func() {
				So(<-first, ShouldEqual, http.StatusOK)
				w, _ := ts.do(http.MethodGet, "/feedback", "10.0.0.1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestServer_Middleware(t *testing.T) {
	Convey("Given a server with a tight rate limit", t, func() {
		resolver := identity.NewResolver()
		limiter := api.NewRateLimiter(1, 1, api.WithLimiterResolver(resolver))
		ts := newTestServer(nil, api.WithResolver(resolver), api.WithRateLimiter(limiter), api.WithVersion("1.2.3"))
		Reset(func() {
			limiter.Close()
			ts.svc.Stop()
		})

		Convey("When a client exceeds its budget", func() {
			first, _ := ts.do(http.MethodGet, "/feedback", "10.0.0.1", "")
			second, env := ts.do(http.MethodGet, "/feedback", "10.0.0.1", "")

			Convey("Then the extra request should be throttled", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusTooManyRequests)
				So(second.Header().Get("Retry-After"), ShouldNotBeEmpty)
				So(env.Success, ShouldBeFalse)
				So(limiter.Len(), ShouldEqual, 1)
			})

			Convey("Then other clients should be unaffected", func() {
				w, _ := ts.do(http.MethodGet, "/feedback", "10.0.0.2", "")
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the caller supplies a request id", func() {
			req := httptest.NewRequest(http.MethodGet, "/feedback", nil)
			req.Header.Set(api.RequestIDHeader, "req-42")
			w := httptest.NewRecorder()
			ts.mux.ServeHTTP(w, req)

			Convey("Then it should be echoed in header and body", func() {
				var env envelope
				So(json.Unmarshal(w.Body.Bytes(), &env), ShouldBeNil)
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "req-42")
				So(env.RequestID, ShouldEqual, "req-42")
			})
		})

		Convey("When health and stats are requested", func() {
			health, _ := ts.do(http.MethodGet, "/healthz", "", "")
			stats, _ := ts.do(http.MethodGet, "/stats", "", "")

			Convey("Then both should answer", func() {
				So(health.Code, ShouldEqual, http.StatusOK)
				So(health.Body.String(), ShouldContainSubstring, `"version":"1.2.3"`)
				So(stats.Code, ShouldEqual, http.StatusOK)
				So(stats.Body.String(), ShouldContainSubstring, "activeTests")
			})
		})

		Convey("When a scraper asks for metrics", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("Accept", "text/plain")
			w := httptest.NewRecorder()
			ts.mux.ServeHTTP(w, req)

			Convey("Then the Prometheus exposition should be served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "netpulse_")
			})
		})
	})
}
