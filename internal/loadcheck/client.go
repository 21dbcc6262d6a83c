package loadcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// forwardedHeader carries the synthetic client identity.
const forwardedHeader = "X-Forwarded-For"

// envelope mirrors the service response body.
type envelope struct {
	Success   bool            `json:"success"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
}

type networkTestData struct {
	TestID  string `json:"testId"`
	Results struct {
		Quality struct {
			Score float64 `json:"score"`
			Grade string  `json:"grade"`
		} `json:"quality"`
	} `json:"results"`
}

// response is a decoded service reply.
type response struct {
	Status int
	Body   envelope
}

// httpClient wraps http.Client with JSON helpers.
type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *httpClient) do(ctx context.Context, method, path, client string, body any) (response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return response{}, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return response{}, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if client != "" {
		req.Header.Set(forwardedHeader, client)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	out := response{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&out.Body); err != nil && err != io.EOF {
		return out, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return out, nil
}

func (c *httpClient) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

func (c *httpClient) startTest(ctx context.Context, client, testType string, duration int) (response, error) {
	return c.do(ctx, http.MethodPost, "/network-test", client, map[string]any{
		"type":     testType,
		"duration": duration,
	})
}

func (c *httpClient) getTest(ctx context.Context, testID string) (response, error) {
	return c.do(ctx, http.MethodGet, "/network-test?testId="+url.QueryEscape(testID), "", nil)
}

func (c *httpClient) submitFeedback(ctx context.Context, client, title string) (response, error) {
	return c.do(ctx, http.MethodPost, "/feedback", client, map[string]any{
		"type":    "general",
		"title":   title,
		"content": "load check submission from " + client,
	})
}
