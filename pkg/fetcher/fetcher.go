package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultTimeout     = 60 * time.Second
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffCap  = 30 * time.Second

	userAgent = "aemo-scada/1.0 (+https://github.com/dtnitsch/aemo-scada)"
)

type Fetcher struct {
	client *http.Client

	MaxAttempts int
	Timeout     time.Duration // per attempt
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// IsNotFound reports whether err carries a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client:      &http.Client{},
		MaxAttempts: DefaultMaxAttempts,
		Timeout:     DefaultTimeout,
		BackoffBase: DefaultBackoffBase,
		BackoffCap:  DefaultBackoffCap,
		sleep:       sleepContext,
	}
}

// WithClient swaps the underlying HTTP client.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff returns the wait before the attempt following attempt n (1-based).
func (f *Fetcher) Backoff(attempt int) time.Duration {
	d := f.BackoffBase * time.Duration(attempt)
	if d > f.BackoffCap {
		return f.BackoffCap
	}
	return d
}

// open issues a single GET and returns the body of a 2xx response.
// The caller must close the body and cancel the returned func.
func (f *Fetcher) open(ctx context.Context, url string) (io.ReadCloser, context.CancelFunc, error) {
	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if f.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, f.Timeout)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, nil, &StatusError{Code: resp.StatusCode}
	}
	return resp.Body, cancel, nil
}

// GetBytes fetches url once and returns the response body.
func (f *Fetcher) GetBytes(ctx context.Context, url string) ([]byte, error) {
	body, cancel, err := f.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer body.Close()

	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return bodyBytes, nil
}
