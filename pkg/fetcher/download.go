package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dtnitsch/aemo-scada/pkg/storage"
)

// DownloadFailedError is returned once every attempt for a URL has failed.
type DownloadFailedError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download of %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadFailedError) Unwrap() error { return e.Err }

// DownloadResult describes what Download did for one destination.
type DownloadResult struct {
	Skipped  bool   // destination already present, no request made
	Attempts int    // requests issued
	Bytes    int64  // bytes written (0 when skipped)
	SHA256   string // hex digest of the written bytes (empty when skipped)
}

// Download fetches url into destPath, retrying with a capped linear backoff.
// A file at destPath is taken as proof of an earlier complete download. A 404
// is not retried.
func (f *Fetcher) Download(ctx context.Context, url, destPath string) (DownloadResult, error) {
	s := &storage.Storage{}
	if s.HasFile(destPath) {
		return DownloadResult{Skipped: true}, nil
	}

	maxAttempts := f.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		n, sum, err := f.downloadOnce(ctx, s, url, destPath)
		if err == nil {
			return DownloadResult{Attempts: attempt, Bytes: n, SHA256: sum}, nil
		}
		lastErr = err
		// A missing file is an answer, not a transient failure.
		if IsNotFound(err) {
			return DownloadResult{Attempts: attempt}, &DownloadFailedError{URL: url, Attempts: attempt, Err: err}
		}
		if ctx.Err() != nil {
			return DownloadResult{Attempts: attempt}, &DownloadFailedError{URL: url, Attempts: attempt, Err: ctx.Err()}
		}
		if attempt == maxAttempts {
			break
		}
		if err := f.sleep(ctx, f.Backoff(attempt)); err != nil {
			return DownloadResult{Attempts: attempt}, &DownloadFailedError{URL: url, Attempts: attempt, Err: err}
		}
	}
	return DownloadResult{Attempts: maxAttempts}, &DownloadFailedError{URL: url, Attempts: maxAttempts, Err: lastErr}
}

func (f *Fetcher) downloadOnce(ctx context.Context, s *storage.Storage, url, destPath string) (int64, string, error) {
	body, cancel, err := f.open(ctx, url)
	if err != nil {
		return 0, "", err
	}
	defer cancel()
	defer body.Close()

	h := sha256.New()
	var n int64
	err = s.WriteAtomic(destPath, func(w io.Writer) error {
		written, copyErr := io.Copy(io.MultiWriter(w, h), body)
		n = written
		if copyErr != nil {
			return fmt.Errorf("failed to read response body: %w", copyErr)
		}
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return n, fmt.Sprintf("%x", h.Sum(nil)), nil
}
