package report

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/pkg/analytics"
	"github.com/dtnitsch/aemo-scada/pkg/history"
	"github.com/dtnitsch/aemo-scada/pkg/stitcher"
	"github.com/dtnitsch/aemo-scada/pkg/storage"
)

// Options selects the day file and where reports go.
type Options struct {
	File    string // explicit day file; empty picks the newest in DataDir
	DataDir string
	OutDir  string
}

// Output is the summary printed after a report is written.
type Output struct {
	Source   string   `json:"source" yaml:"source"`
	Day      string   `json:"day" yaml:"day"`
	Rows     int      `json:"rows" yaml:"rows"`
	Units    []string `json:"units" yaml:"units"`
	YAMLPath string   `json:"yaml_path" yaml:"yaml_path"`
	JSONPath string   `json:"json_path" yaml:"json_path"`
	Notes    []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Run computes KPIs for one day file and writes report_<day>.yaml and .json.
func Run(logger *slog.Logger, opts Options) (*Output, error) {
	path := opts.File
	if path == "" {
		latest, err := history.LatestFile(opts.DataDir)
		if err != nil {
			return nil, err
		}
		path = latest
	}
	logger.Info("Building report", "file", path)

	table, err := stitcher.ReadCSV(path)
	if err != nil {
		return nil, err
	}

	r := analytics.New().BuildReport(table, filepath.Base(path))
	if r.Day == "" {
		day, ok := history.DayOf(path)
		if !ok {
			return nil, fmt.Errorf("cannot tell the day of %s: file has no rows and no dated name", path)
		}
		r.Day = day
	}

	out := &Output{Source: path, Day: r.Day, Rows: len(table.Rows), Units: table.Units}
	s := &storage.Storage{}
	for _, format := range []string{"yaml", "json"} {
		data, err := common.Marshal(r, format)
		if err != nil {
			return nil, err
		}
		dest := filepath.Join(opts.OutDir, fmt.Sprintf("report_%s.%s", r.Day, format))
		if err := s.SaveFile(dest, data); err != nil {
			return nil, err
		}
		if format == "yaml" {
			out.YAMLPath = dest
		} else {
			out.JSONPath = dest
		}
	}

	for _, k := range r.Units {
		for _, n := range k.Notes {
			out.Notes = append(out.Notes, k.Unit+": "+n)
		}
	}
	logger.Info("Wrote report", "day", r.Day, "units", len(r.Units), "yaml", out.YAMLPath, "json", out.JSONPath)
	return out, nil
}
