package fetch

import (
	"github.com/dtnitsch/aemo-scada/pkg/extractor"
	"github.com/dtnitsch/aemo-scada/pkg/manifest"
)

// Job is one archive to download.
type Job struct {
	Index int
	Name  string
	URL   string
	Dest  string
}

// Result holds the outcome of a processed job.
type Result struct {
	Index   int
	Archive manifest.ArchiveResult
	Error   error
}

// ArchiveOutput is the structured output for a single archive.
type ArchiveOutput struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	FilePath string `json:"file_path" yaml:"file_path"`
	Status   string `json:"status" yaml:"status"` // downloaded, cached, local
	Attempts int    `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Matched  int    `json:"matched_rows" yaml:"matched_rows"`
	Malform  int    `json:"malformed_rows,omitempty" yaml:"malformed_rows,omitempty"`
}

// FinalOutput is the structured output for the entire run.
type FinalOutput struct {
	Status       string          `json:"status" yaml:"status"`
	RunID        string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Date         string          `json:"date" yaml:"date"`
	Source       string          `json:"source,omitempty" yaml:"source,omitempty"` // archive or current
	Units        []string        `json:"units" yaml:"units"`
	OutputPath   string          `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	ManifestPath string          `json:"manifest_path,omitempty" yaml:"manifest_path,omitempty"`
	Error        string          `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorType    string          `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	Archives     []ArchiveOutput `json:"archives,omitempty" yaml:"archives,omitempty"`
	Stats        Stats           `json:"stats" yaml:"stats"`
}

// Stats provides summary statistics for the run.
type Stats struct {
	Archives         int      `json:"archives" yaml:"archives"`
	Downloaded       int      `json:"downloaded" yaml:"downloaded"`
	Cached           int      `json:"cached" yaml:"cached"`
	DataRows         int      `json:"data_rows" yaml:"data_rows"`
	MatchedRows      int      `json:"matched_rows" yaml:"matched_rows"`
	MalformedRows    int      `json:"malformed_rows" yaml:"malformed_rows"`
	MissingValues    int      `json:"missing_values" yaml:"missing_values"`
	OutputRows       int      `json:"output_rows" yaml:"output_rows"`
	PostgresRows     int      `json:"postgres_rows,omitempty" yaml:"postgres_rows,omitempty"`
	TotalTimeSeconds float64  `json:"total_time_seconds" yaml:"total_time_seconds"`
	TopUnits         []string `json:"top_units,omitempty" yaml:"top_units,omitempty"`
}

// NewStats summarises extracted archives.
func NewStats(archives []manifest.ArchiveResult, totals extractor.Stats) Stats {
	s := Stats{
		Archives:      len(archives),
		DataRows:      totals.DataRows,
		MatchedRows:   totals.Matched,
		MalformedRows: totals.Malformed,
		MissingValues: totals.Missing,
	}
	for _, a := range archives {
		if a.Skipped {
			s.Cached++
		} else if a.Attempts > 0 {
			s.Downloaded++
		}
	}
	return s
}

// ArchiveOutputs reports each archive's source and row counts.
func ArchiveOutputs(archives []manifest.ArchiveResult) []ArchiveOutput {
	out := make([]ArchiveOutput, 0, len(archives))
	for _, a := range archives {
		status := "downloaded"
		switch {
		case a.URL == "":
			status = "local"
		case a.Skipped:
			status = "cached"
		}
		out = append(out, ArchiveOutput{
			Name:     a.Name,
			URL:      a.URL,
			FilePath: a.FilePath,
			Status:   status,
			Attempts: a.Attempts,
			Matched:  a.Stats.Matched,
			Malform:  a.Stats.Malformed,
		})
	}
	return out
}
