package manifest

import "github.com/dtnitsch/aemo-scada/pkg/extractor"

// DayManifest records which archives produced a stitched day file.
// Written next to the day's archives so a rerun can be audited later.
type DayManifest struct {
	GeneratedAt string          `yaml:"generated_at"`
	RunID       string          `yaml:"run_id,omitempty"`
	TradingDate string          `yaml:"trading_date"`
	Units       []string        `yaml:"units"`
	ListingURL  string          `yaml:"listing_url"`
	OutputPath  string          `yaml:"output_path"`
	OutputRows  int             `yaml:"output_rows"`
	Totals      extractor.Stats `yaml:"totals"`
	TopUnits    []string        `yaml:"top_units,omitempty"`
	Archives    []ArchiveEntry  `yaml:"archives"`
}

// ArchiveEntry is the provenance of one archive, in processing order.
type ArchiveEntry struct {
	Name      string          `yaml:"name"`
	URL       string          `yaml:"url"`
	LocalPath string          `yaml:"local_path"`
	Skipped   bool            `yaml:"skipped"` // already on disk, not downloaded
	Attempts  int             `yaml:"attempts,omitempty"`
	SizeBytes int64           `yaml:"size_bytes"`
	SHA256    string          `yaml:"sha256,omitempty"`
	Records   extractor.Stats `yaml:"records"`
}
