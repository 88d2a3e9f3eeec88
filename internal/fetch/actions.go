package fetch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/artifact_manager"
	"github.com/dtnitsch/aemo-scada/pkg/fetcher"
	"github.com/dtnitsch/aemo-scada/pkg/lister"
)

// Process exit codes.
const (
	ExitInvalidArgs    = 1
	ExitFailure        = 2
	ExitNoArchives     = 3
	ExitDownloadFailed = 4
	ExitDayLocked      = 5
)

// ExitCode maps a pipeline error to the process exit status.
func ExitCode(err error) int {
	var noArchives *lister.NoArchivesFoundError
	var download *fetcher.DownloadFailedError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &noArchives):
		return ExitNoArchives
	case errors.As(err, &download):
		return ExitDownloadFailed
	case errors.Is(err, artifact_manager.ErrDayLocked):
		return ExitDayLocked
	default:
		return ExitFailure
	}
}

func FetchAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	cfg, err := ConfigFromFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitInvalidArgs)
	}
	format := c.String("format")
	if _, err := common.Marshal(struct{}{}, format); err != nil {
		return cli.Exit(err.Error(), ExitInvalidArgs)
	}

	f := fetcher.NewFetcher()
	f.MaxAttempts = cfg.MaxAttempts
	f.Timeout = cfg.Timeout
	f.BackoffBase = cfg.BackoffBase
	f.BackoffCap = cfg.BackoffCap

	ledger := common.OpenLedger(logger, cfg.DBPath)
	if ledger != nil {
		defer ledger.Close()
	}

	logger.Info("Starting fetch", "date", cfg.Date.Format("2006-01-02"), "units", cfg.Units, "source", cfg.Source, "workers", cfg.WorkerCount)
	p := &Pipeline{Config: cfg, Logger: logger, Fetcher: f, Ledger: ledger}
	out, runErr := p.Run(c.Context)

	if err := common.PrintOutput(os.Stdout, out, format); err != nil {
		logger.Error("Failed to print output", "error", err)
	}
	if runErr != nil {
		return cli.Exit(runErr.Error(), ExitCode(runErr))
	}
	return nil
}

// ConfigFromFlags resolves a RunConfig from the fetch command's flags.
func ConfigFromFlags(c *cli.Context) (*models.RunConfig, error) {
	if c.String("date") == "" {
		return nil, fmt.Errorf("--date is required")
	}
	date, err := common.ParseTradingDate(c.String("date"))
	if err != nil {
		return nil, err
	}
	units, err := common.ParseUnits(c.String("units"))
	if err != nil {
		return nil, fmt.Errorf("--units: %w", err)
	}

	outDir := c.String("outdir")
	if outDir == "" {
		outDir = models.DefaultOutDir
	}
	cacheDir := c.String("cache-dir")
	if cacheDir == "" {
		cacheDir = filepath.Join(outDir, "archives")
	}

	cfg := &models.RunConfig{
		Date:         date,
		Units:        units,
		OutDir:       outDir,
		CacheDir:     cacheDir,
		Source:       strings.ToLower(strings.TrimSpace(c.String("source"))),
		ArchiveURL:   c.String("archive-url"),
		ListingURL:   c.String("listing-url"),
		ReportPrefix: c.String("report-prefix"),
		WorkerCount:  c.Int("workers"),
		MaxAttempts:  c.Int("attempts"),
		Timeout:      c.Duration("timeout"),
		BackoffBase:  c.Duration("backoff-base"),
		BackoffCap:   c.Duration("backoff-cap"),
		LockTTL:      c.Duration("lock-ttl"),
		ListingTTL:   c.Duration("listing-ttl"),
		DBPath:       common.ResolveDBPath(c.String("db-path"), outDir),
		PGDSN:        strings.TrimSpace(c.String("pg-dsn")),
		PGSchema:     c.String("pg-schema"),
	}
	switch cfg.Source {
	case "":
		cfg.Source = models.SourceAuto
	case models.SourceAuto, models.SourceArchive, models.SourceCurrent:
	default:
		return nil, fmt.Errorf("--source must be auto, archive or current, got %q", cfg.Source)
	}
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = models.DefaultArchiveURL
	}
	if cfg.ListingURL == "" {
		cfg.ListingURL = models.DefaultListingURL
	}
	if cfg.ReportPrefix == "" {
		cfg.ReportPrefix = models.DefaultReportPrefix
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("--workers must be at least 1")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("--attempts must be at least 1")
	}
	return cfg, nil
}
