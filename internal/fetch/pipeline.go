package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/artifact_manager"
	"github.com/dtnitsch/aemo-scada/pkg/caching"
	"github.com/dtnitsch/aemo-scada/pkg/db"
	"github.com/dtnitsch/aemo-scada/pkg/extractor"
	"github.com/dtnitsch/aemo-scada/pkg/fetcher"
	"github.com/dtnitsch/aemo-scada/pkg/lister"
	"github.com/dtnitsch/aemo-scada/pkg/manifest"
	"github.com/dtnitsch/aemo-scada/pkg/mapreduce"
	"github.com/dtnitsch/aemo-scada/pkg/pgsink"
	"github.com/dtnitsch/aemo-scada/pkg/resolver"
	"github.com/dtnitsch/aemo-scada/pkg/stitcher"
	"github.com/dtnitsch/aemo-scada/pkg/storage"
)

// Error types recorded in the ledger and the run output.
const (
	ErrorTypeInvalidArgs = "invalid_args"
	ErrorTypeNoArchives  = "no_archives"
	ErrorTypeDownload    = "download_failed"
	ErrorTypeLocked      = "day_locked"
	ErrorTypeExtract     = "extract_error"
	ErrorTypeIO          = "io_error"
)

// ExtractError wraps a failure to read one archive.
type ExtractError struct {
	Archive string
	Err     error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// ErrorType classifies a pipeline error.
func ErrorType(err error) string {
	var noArchives *lister.NoArchivesFoundError
	var download *fetcher.DownloadFailedError
	var extract *ExtractError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &noArchives):
		return ErrorTypeNoArchives
	case errors.As(err, &download):
		return ErrorTypeDownload
	case errors.Is(err, artifact_manager.ErrDayLocked):
		return ErrorTypeLocked
	case errors.As(err, &extract):
		return ErrorTypeExtract
	default:
		return ErrorTypeIO
	}
}

// Pipeline runs one trading day: list, download, extract, stitch, write.
type Pipeline struct {
	Config  *models.RunConfig
	Logger  *slog.Logger
	Fetcher *fetcher.Fetcher
	Ledger  *db.DB // nil disables the run ledger
}

// Run executes the pipeline. The returned output is populated on failure too.
// Nothing is written to OutDir unless every archive was downloaded and read.
func (p *Pipeline) Run(ctx context.Context) (*FinalOutput, error) {
	start := time.Now()
	cfg := p.Config
	out := &FinalOutput{
		Status: "failed",
		Date:   cfg.Date.Format("2006-01-02"),
		Units:  cfg.Units,
	}
	runID := p.startRun("fetch", out.Date, cfg.ListingURL)
	out.RunID = runID

	archives, table, err := p.run(ctx, out)
	out.Stats.TotalTimeSeconds = time.Since(start).Seconds()
	if err != nil {
		out.Error = err.Error()
		out.ErrorType = ErrorType(err)
		p.Logger.Error("Run failed", "date", out.Date, "error_type", out.ErrorType, "error", err)
		p.finishRun(runID, out, archives)
		return out, err
	}

	out.Status = "success"
	p.finishRun(runID, out, archives)

	if cfg.PGDSN != "" {
		n, err := p.sinkToPostgres(ctx, table, out.OutputPath)
		if err != nil {
			p.Logger.Warn("Postgres sink failed; CSV is unaffected", "error", err)
		} else {
			out.Stats.PostgresRows = n
			p.Logger.Info("Upserted readings to Postgres", "rows", n, "schema", cfg.PGSchema)
		}
	}
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, out *FinalOutput) ([]manifest.ArchiveResult, *stitcher.Table, error) {
	cfg := p.Config
	manager, err := artifact_manager.NewManager(cfg.CacheDir, cfg.LockTTL)
	if err != nil {
		return nil, nil, err
	}
	lock, err := manager.AcquireDayLock(cfg.Date)
	if err != nil {
		return nil, nil, err
	}
	defer lock.Release()

	archives, sourceURL, err := p.download(ctx, manager, out)
	if err != nil {
		return nil, nil, err
	}

	table, totals, err := ExtractAndStitch(p.Logger, archives, cfg.Units)
	if err != nil {
		return archives, nil, err
	}
	out.Archives = ArchiveOutputs(archives)
	out.Stats = NewStats(archives, totals)

	outputPath := common.OutputPath(cfg.OutDir, cfg.Date, cfg.Units)
	if len(table.Rows) == 0 {
		p.Logger.Warn("No matching rows for trading day; writing header only", "date", out.Date, "units", cfg.Units)
	}
	if err := stitcher.WriteCSV(outputPath, table); err != nil {
		return archives, nil, err
	}
	out.OutputPath = outputPath
	out.Stats.OutputRows = len(table.Rows)
	p.Logger.Info("Wrote day file", "path", outputPath, "rows", len(table.Rows), "columns", len(table.Units))

	s := &storage.Storage{}
	mf := manifest.Build(manifest.Header{
		RunID:       out.RunID,
		TradingDate: out.Date,
		Units:       table.Units,
		ListingURL:  sourceURL,
		OutputPath:  outputPath,
		OutputRows:  len(table.Rows),
	}, archives, s)
	out.Stats.TopUnits = mf.TopUnits
	if path, err := manifest.Write(manager.DayDir(cfg.Date), mf, s); err != nil {
		p.Logger.Warn("Failed to write manifest", "error", err)
	} else {
		out.ManifestPath = path
	}
	return archives, table, nil
}

// download fetches the day's archives from the configured source and returns
// them with the URL they were found at. In auto mode a daily bundle that is
// not published falls back to the current listing.
func (p *Pipeline) download(ctx context.Context, manager *artifact_manager.Manager, out *FinalOutput) ([]manifest.ArchiveResult, string, error) {
	cfg := p.Config
	source := cfg.Source
	if source == "" {
		source = models.SourceAuto
	}

	if source == models.SourceArchive || (source == models.SourceAuto && cfg.ArchiveURL != "") {
		archive, err := p.downloadBundle(ctx, manager)
		switch {
		case err == nil:
			out.Source = models.SourceArchive
			return []manifest.ArchiveResult{archive}, cfg.ArchiveURL, nil
		case !fetcher.IsNotFound(err):
			return nil, "", err
		case source == models.SourceArchive:
			return nil, "", &lister.NoArchivesFoundError{Date: out.Date, Prefix: cfg.ReportPrefix, ListingURL: archive.URL}
		}
		p.Logger.Info("Daily bundle not published; using the current listing", "url", archive.URL)
	}

	out.Source = models.SourceCurrent
	p.Logger.Info("Listing archives", "date", out.Date, "listing_url", cfg.ListingURL, "prefix", cfg.ReportPrefix)
	refs, err := lister.ListArchives(ctx, p.listingGetter(manager), cfg.ListingURL, cfg.Date, cfg.ReportPrefix)
	if err != nil {
		return nil, "", err
	}
	p.Logger.Info("Found archives", "date", out.Date, "count", len(refs))

	archives, err := downloadAll(ctx, p.Logger, p.Fetcher, manager, cfg, refs)
	if err != nil {
		return nil, "", err
	}
	return archives, cfg.ListingURL, nil
}

// downloadBundle fetches the daily archive, which nests every interval's
// archive for the day. The result carries the URL even on failure.
func (p *Pipeline) downloadBundle(ctx context.Context, manager *artifact_manager.Manager) (manifest.ArchiveResult, error) {
	cfg := p.Config
	name := models.BundleName(cfg.ReportPrefix, cfg.Date)
	archive := manifest.ArchiveResult{Name: name, FilePath: manager.ArchivePath(cfg.Date, name)}

	archiveURL := cfg.ArchiveURL
	if archiveURL == "" {
		archiveURL = models.DefaultArchiveURL
	}
	u, err := resolver.Resolve(name, archiveURL)
	if err != nil {
		return archive, fmt.Errorf("failed to resolve daily bundle: %w", err)
	}
	archive.URL = u

	p.Logger.Info("Fetching daily bundle", "date", cfg.Date.Format("2006-01-02"), "url", u)
	res, err := p.Fetcher.Download(ctx, u, archive.FilePath)
	archive.Skipped = res.Skipped
	archive.Attempts = res.Attempts
	archive.SizeBytes = res.Bytes
	archive.SHA256 = res.SHA256
	if err != nil {
		if !fetcher.IsNotFound(err) {
			p.Logger.Error("Download failed", "archive", name, "attempts", res.Attempts, "error", err)
		}
		return archive, err
	}
	p.Logger.Info("Downloaded daily bundle", "archive", name, "bytes", res.Bytes, "cached", res.Skipped)
	return archive, nil
}

// listingGetter wraps the fetcher in the on-disk listing cache when enabled.
func (p *Pipeline) listingGetter(manager *artifact_manager.Manager) lister.Getter {
	if p.Config.ListingTTL <= 0 {
		return p.Fetcher
	}
	cache, err := caching.NewCache(filepath.Join(manager.BaseDir(), ".listing"), p.Config.ListingTTL)
	if err != nil {
		p.Logger.Warn("Listing cache unavailable", "error", err)
		return p.Fetcher
	}
	return &caching.CachedGetter{Cache: cache, Next: p.Fetcher}
}

// ExtractAndStitch reads archives in the given order, records per-archive
// stats on each entry, and stitches the requested units into one table.
func ExtractAndStitch(logger *slog.Logger, archives []manifest.ArchiveResult, units []string) (*stitcher.Table, extractor.Stats, error) {
	set := extractor.NewUnitSet(units)
	opts := extractor.DefaultOptions()

	var (
		records []models.ScadaRecord
		totals  extractor.Stats
	)
	for i := range archives {
		a := &archives[i]
		recs, st, err := extractor.ExtractRecords(a.FilePath, set, opts)
		if err != nil {
			return nil, totals, &ExtractError{Archive: a.Name, Err: err}
		}
		a.Stats = st
		a.UnitCounts = mapreduce.Map(recs)
		totals.Add(st)

		if st.Malformed > 0 {
			logger.Warn("Dropped malformed rows", "archive", a.Name, "malformed", st.Malformed)
		}
		if st.Matched == 0 {
			logger.Debug("No matching rows in archive", "archive", a.Name)
		}
		records = append(records, recs...)
	}

	table := stitcher.Stitch(records, units)
	logger.Info("Stitched records", "archives", len(archives), "records", len(records), "rows", len(table.Rows))
	return table, totals, nil
}

func (p *Pipeline) startRun(command, date, source string) string {
	if p.Ledger == nil {
		return ""
	}
	runID, err := p.Ledger.StartRun(command, date, p.Config.Units, source)
	if err != nil {
		p.Logger.Warn("Failed to record run start", "error", err)
		return ""
	}
	return runID
}

func (p *Pipeline) finishRun(runID string, out *FinalOutput, archives []manifest.ArchiveResult) {
	FinishLedgerRun(p.Ledger, p.Logger, runID, out, archives)
}

// FinishLedgerRun records a run's archives and outcome. Failures only warn.
func FinishLedgerRun(ledger *db.DB, logger *slog.Logger, runID string, out *FinalOutput, archives []manifest.ArchiveResult) {
	if ledger == nil || runID == "" {
		return
	}
	for _, a := range archives {
		err := ledger.RecordArchive(runID, db.ArchiveRecord{
			Name:          a.Name,
			URL:           a.URL,
			LocalPath:     a.FilePath,
			Skipped:       a.Skipped,
			Attempts:      a.Attempts,
			SizeBytes:     a.SizeBytes,
			SHA256:        a.SHA256,
			DataRows:      a.Stats.DataRows,
			MatchedRows:   a.Stats.Matched,
			MalformedRows: a.Stats.Malformed,
		})
		if err != nil {
			logger.Warn("Failed to record archive in ledger", "archive", a.Name, "error", err)
		}
	}

	status := db.StatusSuccess
	if out.Status != "success" {
		status = db.StatusFailed
	}
	err := ledger.FinishRun(runID, db.RunResult{
		Status:          status,
		ArchiveCount:    out.Stats.Archives,
		DownloadedCount: out.Stats.Downloaded,
		SkippedCount:    out.Stats.Cached,
		DataRows:        out.Stats.DataRows,
		MatchedRows:     out.Stats.MatchedRows,
		MalformedRows:   out.Stats.MalformedRows,
		MissingValues:   out.Stats.MissingValues,
		OutputRows:      out.Stats.OutputRows,
		OutputPath:      out.OutputPath,
		ErrorType:       out.ErrorType,
		ErrorMessage:    out.Error,
	})
	if err != nil {
		logger.Warn("Failed to record run result", "run_id", runID, "error", err)
	}
}

func (p *Pipeline) sinkToPostgres(ctx context.Context, table *stitcher.Table, source string) (int, error) {
	sink, err := pgsink.Open(ctx, p.Config.PGDSN, p.Config.PGSchema)
	if err != nil {
		return 0, err
	}
	defer sink.Close()

	if err := sink.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	return sink.Upsert(ctx, pgsink.Readings(table), filepath.Base(source))
}
