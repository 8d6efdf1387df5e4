package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Client defaults.
const (
	DefaultParallelism    = 16
	DefaultRequestTimeout = 30 * time.Second
	DefaultRequestRate    = 10 // requests per second
	DefaultUserAgent      = "banalytics-harvester/1.0"
)

// maxResponseBodyBytes limits the size of fetched responses.
const maxResponseBodyBytes = 20 * 1024 * 1024 // 20 MB

// ClientConfig configures the HTTP fetch client.
type ClientConfig struct {
	// Parallelism caps the number of requests in flight at once.
	Parallelism int
	// RequestsPerSecond limits the aggregate request rate.
	RequestsPerSecond float64
	// RequestTimeout bounds a single request.
	RequestTimeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
}

// Client implements Engine over net/http. Hundreds of crawl branches call
// Do concurrently; the semaphore and rate limiter keep the vendor-facing
// load bounded.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	sem        *semaphore.Weighted
	userAgent  string
}

// NewClient creates a fetch client with the given configuration.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestRate
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Parallelism),
		sem:        semaphore.NewWeighted(int64(cfg.Parallelism)),
		userAgent:  cfg.UserAgent,
	}
}

// Do executes req and returns the response. Status codes of 400 and above
// are returned as errors; retrying them is the caller's policy, not ours.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if acquireErr := c.sem.Acquire(ctx, 1); acquireErr != nil {
		return nil, fmt.Errorf("acquire fetch slot: %w", acquireErr)
	}
	defer c.sem.Release(1)

	if waitErr := c.limiter.Wait(ctx); waitErr != nil {
		return nil, fmt.Errorf("rate limit wait: %w", waitErr)
	}

	httpReq, reqErr := c.buildRequest(ctx, req)
	if reqErr != nil {
		return nil, reqErr
	}

	resp, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, doErr)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if readErr != nil {
		return nil, fmt.Errorf("read response from %s: %w", req.URL, readErr)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: http status %d", req.URL, resp.StatusCode)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body, Request: req}, nil
}

// buildRequest converts a fetch.Request into an *http.Request.
func (c *Client) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader = http.NoBody
	if req.Body != nil {
		encoded, encErr := json.Marshal(req.Body)
		if encErr != nil {
			return nil, fmt.Errorf("encode request body for %s: %w", req.URL, encErr)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", req.URL, err)
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}
