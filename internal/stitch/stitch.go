package stitch

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/internal/fetch"
	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/artifact_manager"
	"github.com/dtnitsch/aemo-scada/pkg/db"
	"github.com/dtnitsch/aemo-scada/pkg/manifest"
	"github.com/dtnitsch/aemo-scada/pkg/stitcher"
)

// ErrNoLocalArchives means the folder holds no archive matching the prefix.
var ErrNoLocalArchives = errors.New("no archives found")

// Options configures an offline stitch.
type Options struct {
	ZipsDir      string
	Units        []string
	OutPath      string
	ReportPrefix string
}

// LocalArchives lists the archives in dir in processing order. Files whose
// names do not carry an interval and version are skipped with a warning.
func LocalArchives(logger *slog.Logger, dir, prefix string) ([]manifest.ArchiveResult, error) {
	paths, err := artifact_manager.ListArchives(dir, prefix)
	if err != nil {
		return nil, err
	}

	refs := make([]models.ArchiveReference, 0, len(paths))
	byName := make(map[string]string, len(paths))
	for _, p := range paths {
		ref, err := models.ParseArchiveName(filepath.Base(p))
		if err != nil {
			if bundle, bundleErr := models.ParseBundleName(filepath.Base(p)); bundleErr == nil {
				ref, err = bundle, nil
			}
		}
		if err != nil {
			logger.Warn("Skipping archive with unexpected name", "path", p, "error", err)
			continue
		}
		refs = append(refs, ref)
		byName[ref.Name] = p
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no %s*.zip in %s", ErrNoLocalArchives, prefix, dir)
	}
	models.SortArchives(refs)

	archives := make([]manifest.ArchiveResult, 0, len(refs))
	for _, ref := range refs {
		path := byName[ref.Name]
		a := manifest.ArchiveResult{Name: ref.Name, FilePath: path}
		if sum, err := common.FileHash(path); err == nil {
			a.SHA256 = sum
		} else {
			logger.Debug("Failed to hash archive", "path", path, "error", err)
		}
		archives = append(archives, a)
	}
	return archives, nil
}

// Run stitches a local archive folder into one CSV.
func Run(logger *slog.Logger, opts Options, ledger *db.DB) (*fetch.FinalOutput, error) {
	start := time.Now()
	out := &fetch.FinalOutput{Status: "failed", Units: opts.Units}

	runID := ""
	if ledger != nil {
		id, err := ledger.StartRun("stitch", "", opts.Units, opts.ZipsDir)
		if err != nil {
			logger.Warn("Failed to record run start", "error", err)
		}
		runID = id
	}
	out.RunID = runID

	archives, err := run(logger, opts, out)
	out.Stats.TotalTimeSeconds = time.Since(start).Seconds()
	if err != nil {
		out.Error = err.Error()
		out.ErrorType = fetch.ErrorType(err)
		if errors.Is(err, ErrNoLocalArchives) {
			out.ErrorType = fetch.ErrorTypeNoArchives
		}
		logger.Error("Stitch failed", "zips", opts.ZipsDir, "error_type", out.ErrorType, "error", err)
	} else {
		out.Status = "success"
	}
	fetch.FinishLedgerRun(ledger, logger, runID, out, archives)
	return out, err
}

func run(logger *slog.Logger, opts Options, out *fetch.FinalOutput) ([]manifest.ArchiveResult, error) {
	archives, err := LocalArchives(logger, opts.ZipsDir, opts.ReportPrefix)
	if err != nil {
		return nil, err
	}
	logger.Info("Found local archives", "zips", opts.ZipsDir, "count", len(archives))

	table, totals, err := fetch.ExtractAndStitch(logger, archives, opts.Units)
	if err != nil {
		return archives, err
	}
	out.Archives = fetch.ArchiveOutputs(archives)
	out.Stats = fetch.NewStats(archives, totals)
	if len(table.Rows) > 0 {
		out.Date = table.Rows[0].Timestamp.Format("2006-01-02")
	}

	if len(table.Rows) == 0 {
		logger.Warn("No matching rows; writing header only", "units", opts.Units)
	}
	if err := stitcher.WriteCSV(opts.OutPath, table); err != nil {
		return archives, err
	}
	out.OutputPath = opts.OutPath
	out.Stats.OutputRows = len(table.Rows)
	logger.Info("Wrote stitched file", "path", opts.OutPath, "rows", len(table.Rows), "columns", len(table.Units))
	return archives, nil
}
