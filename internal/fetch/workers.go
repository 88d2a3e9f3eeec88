package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/artifact_manager"
	"github.com/dtnitsch/aemo-scada/pkg/fetcher"
	"github.com/dtnitsch/aemo-scada/pkg/manifest"
)

// downloadAll fetches every archive into the day directory using workerCount
// workers. The first failure cancels the remaining downloads. Results come
// back in refs order.
func downloadAll(ctx context.Context, logger *slog.Logger, f *fetcher.Fetcher, manager *artifact_manager.Manager, cfg *models.RunConfig, refs []models.ArchiveReference) ([]manifest.ArchiveResult, error) {
	workerCount := cfg.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(refs) {
		workerCount = len(refs)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("Starting download phase", "archives", len(refs), "workers", workerCount)
	var wg sync.WaitGroup
	jobs := make(chan Job, len(refs))
	results := make(chan Result, len(refs))

	for w := 1; w <= workerCount; w++ {
		wg.Add(1)
		go worker(ctx, w, logger, f, &wg, jobs, results, cancel)
	}

	for i, ref := range refs {
		jobs <- Job{Index: i, Name: ref.Name, URL: ref.URL, Dest: manager.ArchivePath(cfg.Date, ref.Name)}
	}
	close(jobs)

	wg.Wait()
	close(results)
	logger.Info("All download workers finished")

	archives := make([]manifest.ArchiveResult, len(refs))
	var firstErr error
	for r := range results {
		archives[r.Index] = r.Archive
		if r.Error == nil {
			continue
		}
		// Downloads cancelled because of another failure are not the cause.
		if firstErr == nil || (errors.Is(firstErr, context.Canceled) && !errors.Is(r.Error, context.Canceled)) {
			firstErr = r.Error
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return archives, nil
}

// worker downloads jobs until the channel is drained.
func worker(ctx context.Context, id int, logger *slog.Logger, f *fetcher.Fetcher, wg *sync.WaitGroup, jobs <-chan Job, results chan<- Result, cancel context.CancelFunc) {
	defer wg.Done()
	for job := range jobs {
		result := Result{
			Index:   job.Index,
			Archive: manifest.ArchiveResult{Name: job.Name, URL: job.URL, FilePath: job.Dest},
		}
		if err := ctx.Err(); err != nil {
			result.Error = &fetcher.DownloadFailedError{URL: job.URL, Err: err}
			results <- result
			continue
		}

		logger.Debug("Worker started download", "worker_id", id, "archive", job.Name)
		res, err := f.Download(ctx, job.URL, job.Dest)
		result.Archive.Skipped = res.Skipped
		result.Archive.Attempts = res.Attempts
		result.Archive.SizeBytes = res.Bytes
		result.Archive.SHA256 = res.SHA256
		if err != nil {
			logger.Error("Download failed", "worker_id", id, "archive", job.Name, "attempts", res.Attempts, "error", err)
			result.Error = err
			cancel()
			results <- result
			continue
		}

		if res.Skipped {
			logger.Debug("Archive already on disk", "archive", job.Name)
		} else {
			logger.Info("Downloaded archive", "archive", job.Name, "bytes", res.Bytes, "attempts", res.Attempts)
		}
		results <- result
	}
}
