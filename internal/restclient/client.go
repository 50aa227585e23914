package restclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"orderflow/logger"
)

// HTTPError is a non-2xx response. 4xx errors are terminal for the call;
// 5xx errors are retried before being surfaced.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s", e.Status)
}

// Retryable reports whether the response class is worth another attempt.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500
}

// TimeoutError marks a request that exceeded its deadline, distinct from
// generic network failures.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RequestInterceptor mutates an outgoing request before it is sent.
type RequestInterceptor func(*http.Request) error

// ResponseInterceptor observes a response before the body is consumed by
// the caller.
type ResponseInterceptor func(*http.Response) error

// Config carries the REST client tuning knobs.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	CacheTTL          time.Duration
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RequestsPerSecond int
	BurstSize         int
}

type cacheEntry struct {
	body    []byte
	expires time.Time
}

// Client is the polling/point-query fallback path. GET responses are
// cached per full URL, network failures and 5xx responses are retried
// with exponential backoff, and 4xx responses fail immediately.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	cacheTTL time.Duration
	cacheMu  sync.Mutex
	cache    map[string]cacheEntry

	maxAttempts    int
	retryBaseDelay time.Duration

	reqInterceptors  []RequestInterceptor
	respInterceptors []ResponseInterceptor

	log *logger.Entry
}

func New(cfg Config, log *logger.Log) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.RequestsPerSecond * 2
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		cacheTTL:       cfg.CacheTTL,
		cache:          make(map[string]cacheEntry),
		maxAttempts:    cfg.MaxAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		log:            log.WithComponent("restclient"),
	}
}

// UseRequest appends a request interceptor; interceptors run in the order
// they were registered.
func (c *Client) UseRequest(in RequestInterceptor) {
	c.reqInterceptors = append(c.reqInterceptors, in)
}

// UseResponse appends a response interceptor; interceptors run in the
// order they were registered.
func (c *Client) UseResponse(in ResponseInterceptor) {
	c.respInterceptors = append(c.respInterceptors, in)
}

// Request performs one call against the backend, honoring cache, rate
// limit and retry policy, and returns the raw response body.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	cacheable := method == http.MethodGet
	if cacheable {
		if cached, ok := c.cachedResponse(fullURL); ok {
			return cached, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.retryBaseDelay * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		respBody, err := c.do(ctx, method, fullURL, body)
		if err == nil {
			if cacheable {
				c.storeResponse(fullURL, respBody)
			}
			return respBody, nil
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.Retryable() {
			return nil, err
		}
		lastErr = err
		c.log.WithError(err).WithFields(logger.Fields{
			"method":  method,
			"url":     fullURL,
			"attempt": attempt,
		}).Warn("request attempt failed")
	}

	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, fullURL string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "orderflow/1.0")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, in := range c.reqInterceptors {
		if err := in(req); err != nil {
			return nil, fmt.Errorf("request interceptor failed: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{URL: fullURL, Err: err}
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	for _, in := range c.respInterceptors {
		if err := in(resp); err != nil {
			return nil, fmt.Errorf("response interceptor failed: %w", err)
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: respBody}
	}
	return respBody, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// cachedResponse returns a fresh cached body. Expired entries are evicted
// lazily here rather than by a background sweeper.
func (c *Client) cachedResponse(key string) ([]byte, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.cache, key)
		return nil, false
	}
	return entry.body, true
}

func (c *Client) storeResponse(key string, body []byte) {
	c.cacheMu.Lock()
	c.cache[key] = cacheEntry{body: body, expires: time.Now().Add(c.cacheTTL)}
	c.cacheMu.Unlock()
}
