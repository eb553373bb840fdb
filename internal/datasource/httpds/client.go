// Package httpds implements an HTTP datasource with retry/backoff and
// optional TLS verification skipping. Retries are delegated to
// go-retryablehttp: transport errors, 429 and 5xx responses are retried with
// exponential backoff, and context cancellation stops both requests and
// backoff waits.
package httpds

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"fifoexport/internal/logging"
)

// Config configures the HTTP datasource client.
//
// Zero values are given defaults:
//   - Timeout:      30s
//   - RetryWaitMin: 200ms
//   - RetryWaitMax: 5s
type Config struct {
	// Timeout is the per-request timeout applied at the http.Client level.
	// Large downloads need a generous value since it covers the body read.
	Timeout time.Duration

	// RetryMax is the number of retries after the initial request.
	// RetryMax=0 means no retries.
	RetryMax int

	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Headers are added to every request.
	Headers map[string]string

	// Transport replaces the default pooled transport. InsecureSkipVerify is
	// ignored when it is set.
	Transport http.RoundTripper
}

// StatusError is returned when the final response is not 2xx.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %s", e.URL, e.Status)
}

// Client wraps a retryablehttp.Client.
type Client struct {
	rc      *retryablehttp.Client
	headers map[string]string
}

// NewClient constructs a Client from cfg, applying defaults for zero values.
// Retry attempts are logged at debug level on log.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 200 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 5 * time.Second
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = cfg.RetryWaitMin
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = leveledLogger{s: logging.OrNop(log).Named("httpds").Sugar()}
	rc.HTTPClient.Timeout = cfg.Timeout

	switch {
	case cfg.Transport != nil:
		rc.HTTPClient.Transport = cfg.Transport
	case cfg.InsecureSkipVerify:
		if t, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
		}
	}

	return &Client{rc: rc, headers: cfg.Headers}
}

// Get issues a GET with retries. A non-2xx final response is returned as a
// *StatusError with the body already closed.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.rc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}

// Source binds c to url.
func (c *Client) Source(url string) *Source { return &Source{c: c, url: url} }

// Source is a datasource over one URL.
type Source struct {
	c   *Client
	url string
}

// Open downloads the URL. The body is streamed; it is not buffered.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.c.Get(ctx, s.url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger. Retry chatter goes
// to debug; retryablehttp reports give-ups through the returned error.
type leveledLogger struct{ s *zap.SugaredLogger }

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
