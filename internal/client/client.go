// Package client wraps outbound HTTP calls to upstream data providers with
// the resilience every provider needs: minimum spacing between consecutive
// calls, retry with exponential backoff and jitter, and Retry-After
// honoring. Each source agent owns one Client instance; a Client never
// panics and always reports failure through a typed ClientError.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// ErrorKind discriminates client failures.
type ErrorKind string

const (
	// KindTransient marks an individual attempt that may be retried:
	// network errors, timeouts, HTTP 5xx and 429.
	KindTransient ErrorKind = "transient"
	// KindPermanent marks failures that retrying cannot fix: HTTP 4xx
	// other than 429.
	KindPermanent ErrorKind = "permanent"
	// KindExhausted marks a request whose retry budget ran out.
	KindExhausted ErrorKind = "exhausted"
)

// ClientError is the only error type Request returns.
type ClientError struct {
	Kind   ErrorKind
	Status int // last HTTP status, 0 when the request never got a response
	Err    error
}

func (e *ClientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream request %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream request %s: %v", e.Kind, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a non-retryable client failure.
func IsPermanent(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Kind == KindPermanent
}

// Config holds per-provider client settings.
type Config struct {
	// BaseURL is the provider root, e.g. "https://api.fda.gov".
	BaseURL string
	// Headers are sent on every request.
	Headers http.Header
	// MinInterval is the minimum spacing between consecutive calls from
	// this instance. Zero disables the gate.
	MinInterval time.Duration
	// MaxRetries caps retries after the first attempt. Defaults to 3.
	MaxRetries int
	// BackoffBase is the pre-jitter base wait; retry k waits
	// BackoffBase * 2^k plus up to one second of jitter. Defaults to 1s.
	BackoffBase time.Duration
	// Timeout bounds a single attempt. Defaults to 30s.
	Timeout time.Duration
	// HTTPClient overrides the underlying transport, e.g. an
	// oauth2-authenticated client. Its own Timeout wins when set.
	HTTPClient *http.Client
}

// Client is a rate-limited, retrying HTTP wrapper for one upstream
// provider. Safe for concurrent use; concurrent callers are serialized
// through the spacing gate.
type Client struct {
	http        *http.Client
	baseURL     string
	headers     http.Header
	minInterval time.Duration
	maxRetries  int
	backoffBase time.Duration
	logger      *zap.SugaredLogger

	// spacing gate: nextAt is the earliest moment the next call may fire.
	gateMu sync.Mutex
	nextAt time.Time
}

// New creates a Client from cfg. A nil logger is replaced with a no-op one.
func New(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		http:        hc,
		baseURL:     cfg.BaseURL,
		headers:     cfg.Headers,
		minInterval: cfg.MinInterval,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		logger:      logger,
	}
}

// waitTurn blocks the calling goroutine until the spacing gate opens, then
// claims the next slot. Returns early with the context error if the caller
// is cancelled while waiting.
func (c *Client) waitTurn(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}
	c.gateMu.Lock()
	for {
		now := time.Now()
		wait := c.nextAt.Sub(now)
		if wait <= 0 {
			c.nextAt = now.Add(c.minInterval)
			c.gateMu.Unlock()
			return nil
		}
		c.gateMu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		c.gateMu.Lock()
	}
}

// Request performs a GET against path with query params, retrying transient
// failures per the configured policy. It returns the response body on any
// 2xx status and a *ClientError otherwise. Retry k sleeps
// BackoffBase * 2^k plus uniform [0,1s) jitter, except after a 429 carrying
// Retry-After, which is honored exactly.
func (c *Client) Request(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint, err := c.buildURL(path, params)
	if err != nil {
		return nil, &ClientError{Kind: KindPermanent, Err: err}
	}

	var (
		body       []byte
		attempt    int
		retryAfter time.Duration // set when the last 429 carried Retry-After
		lastStatus int
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if retryAfter > 0 {
			d := retryAfter
			retryAfter = 0
			attempt++
			return d, false
		}
		d := c.backoffBase*(1<<attempt) + time.Duration(rand.Float64()*float64(time.Second))
		attempt++
		return d, false
	})

	doErr := retry.Do(ctx, retry.WithMaxRetries(uint64(c.maxRetries), backoff), func(ctx context.Context) error {
		if err := c.waitTurn(ctx); err != nil {
			return err // context expired while rate-limited, do not retry
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return &ClientError{Kind: KindPermanent, Err: err}
		}
		for k, vs := range c.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warnw("upstream attempt failed", "url", endpoint, "attempt", attempt+1, "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		lastStatus = resp.StatusCode

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return retry.RetryableError(err)
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
				retryAfter = d
			}
			c.logger.Warnw("upstream rate limited", "url", endpoint, "retry_after", retryAfter)
			return retry.RetryableError(fmt.Errorf("rate limited (status 429)"))

		case resp.StatusCode >= 500:
			c.logger.Warnw("upstream server error", "url", endpoint, "status", resp.StatusCode)
			return retry.RetryableError(fmt.Errorf("server error (status %d)", resp.StatusCode))

		default:
			// Remaining 4xx: the request itself is wrong, retrying is useless.
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &ClientError{
				Kind:   KindPermanent,
				Status: resp.StatusCode,
				Err:    fmt.Errorf("upstream rejected request: %s", string(msg)),
			}
		}
	})

	if doErr == nil {
		return body, nil
	}

	var ce *ClientError
	if errors.As(doErr, &ce) {
		return nil, ce
	}
	if errors.Is(doErr, context.DeadlineExceeded) || errors.Is(doErr, context.Canceled) {
		return nil, &ClientError{Kind: KindTransient, Status: lastStatus, Err: doErr}
	}
	return nil, &ClientError{Kind: KindExhausted, Status: lastStatus, Err: doErr}
}

// RequestJSON performs Request and decodes the body into v. A body that
// fails to decode is a permanent error: the upstream answered, the answer
// is malformed, and retrying will not change it.
func (c *Client) RequestJSON(ctx context.Context, path string, params url.Values, v any) error {
	body, err := c.Request(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ClientError{Kind: KindPermanent, Err: fmt.Errorf("decoding upstream response: %w", err)}
	}
	return nil
}

func (c *Client) buildURL(path string, params url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	u = u.ResolveReference(ref)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String(), nil
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
	}
	return 0, false
}
