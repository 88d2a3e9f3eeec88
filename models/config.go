// Package models defines data structures shared across the pipeline stages.
package models

import "time"

// RunConfig holds runtime configuration for a single fetch run.
// All values come from CLI flags (with .env / environment fallbacks).
type RunConfig struct {
	Date         time.Time // trading day, NEM time
	Units        []string  // canonical upper-cased DUIDs, or ["*"]
	OutDir       string
	CacheDir     string
	Source       string // auto, archive or current
	ArchiveURL   string // directory holding the daily bundles
	ListingURL   string
	ReportPrefix string
	WorkerCount  int

	MaxAttempts int
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
	LockTTL     time.Duration
	ListingTTL  time.Duration // 0 disables the listing cache

	DBPath   string // empty disables the run ledger
	PGDSN    string // empty disables the Postgres sink
	PGSchema string
}

const (
	DefaultListingURL   = "https://www.nemweb.com.au/REPORTS/CURRENT/Dispatch_SCADA/"
	DefaultArchiveURL   = "https://www.nemweb.com.au/REPORTS/ARCHIVE/Dispatch_SCADA/"
	DefaultReportPrefix = "PUBLIC_DISPATCHSCADA_"
	DefaultOutDir       = "data/aemo"
	DefaultReportsDir   = "data/reports"
	DefaultDBName       = "aemo-scada.db"
	WildcardUnit        = "*"
)

// Where fetch looks for a trading day's data. SourceAuto tries the daily
// bundle first and falls back to the current listing when it is not published.
const (
	SourceAuto    = "auto"
	SourceArchive = "archive"
	SourceCurrent = "current"
)

// BundleName is the daily archive file name for prefix and day.
func BundleName(prefix string, day time.Time) string {
	return prefix + day.Format("20060102") + ".zip"
}

// AllUnits reports whether the unit list is the wildcard.
func (c *RunConfig) AllUnits() bool {
	return len(c.Units) == 1 && c.Units[0] == WildcardUnit
}
