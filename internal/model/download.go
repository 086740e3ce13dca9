// Package model provides acquisition of the voice-activity model file:
// a local cache that reuses pre-provisioned files and an HTTP downloader
// with retry.
package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Static errors for model downloads.
var (
	// ErrURLRequired is returned when no model URL is configured.
	ErrURLRequired = errors.New("model: URL is required")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("model: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("model: rate limited")
	// ErrRequestFailed is returned for any other non-2xx status code.
	ErrRequestFailed = errors.New("model: request failed")
)

// Fetcher writes the content at url to w.
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// Compile-time check that Downloader implements Fetcher.
var _ Fetcher = (*Downloader)(nil)

// Downloader fetches model files over HTTP with exponential backoff.
type Downloader struct {
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) DownloaderOption {
	return func(d *Downloader) {
		if n >= 0 {
			d.maxRetries = n
		}
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(b time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.baseBackoff = b
	}
}

// NewDownloader creates a Downloader.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch implements Fetcher. Each attempt is read fully before anything is
// written to w, so failed attempts leave w untouched.
func (d *Downloader) Fetch(ctx context.Context, url string, w io.Writer) error {
	if url == "" {
		return ErrURLRequired
	}

	var lastErr error
	backoff := d.baseBackoff

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("model: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		body, err := d.fetchOnce(ctx, url)
		if err == nil {
			if _, err := w.Write(body); err != nil {
				return fmt.Errorf("model: write: %w", err)
			}
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("model: max retries exceeded: %w", lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("model: create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("model: context cancelled: %w", ctx.Err())
		}
		return nil, &retryableError{err: fmt.Errorf("model: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(snippet))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(snippet))}
		}
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("model: read response: %w", err)}
	}
	return body, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
