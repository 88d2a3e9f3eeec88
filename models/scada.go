package models

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
)

// NEMTime is the market's fixed UTC+10 clock (no daylight saving).
var NEMTime = time.FixedZone("NEM", 10*60*60)

// TimestampLayout is the layout used for timestamps in stitched CSVs.
const TimestampLayout = "2006-01-02 15:04:05"

// ScadaRecord is one unit's measured output at a 5-minute dispatch interval.
type ScadaRecord struct {
	Timestamp time.Time
	DUID      string
	MW        *float64 // nil when the feed published an empty value
}

// ArchiveReference points at one published archive for a trading day.
type ArchiveReference struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	Href        string `json:"-" yaml:"-"` // raw location as it appeared in the listing
	TradingDate string `json:"trading_date" yaml:"trading_date"`
	Interval    string `json:"interval" yaml:"interval"`
	Version     string `json:"version" yaml:"version"`
}

var archiveNamePattern = regexp.MustCompile(`(?i)^(.*?)(\d{8})(\d{4})_(\d+)\.zip$`)

// ParseArchiveName splits an archive file name into its reference fields.
// The URL is left empty; the resolver fills it in.
func ParseArchiveName(name string) (ArchiveReference, error) {
	base := path.Base(name)
	m := archiveNamePattern.FindStringSubmatch(base)
	if m == nil {
		return ArchiveReference{}, fmt.Errorf("archive name %q does not match <prefix><YYYYMMDD><HHMM>_<version>.zip", base)
	}
	return ArchiveReference{
		Name:        base,
		TradingDate: m[2],
		Interval:    m[3],
		Version:     m[4],
	}, nil
}

var bundleNamePattern = regexp.MustCompile(`(?i)^(.*\D)?(\d{8})\.zip$`)

// ParseBundleName recognises a daily bundle name, <prefix><YYYYMMDD>.zip.
// A bundle has no interval, so it sorts ahead of the day's interval archives.
func ParseBundleName(name string) (ArchiveReference, error) {
	base := path.Base(name)
	m := bundleNamePattern.FindStringSubmatch(base)
	if m == nil {
		return ArchiveReference{}, fmt.Errorf("archive name %q does not match <prefix><YYYYMMDD>.zip", base)
	}
	return ArchiveReference{Name: base, TradingDate: m[2]}, nil
}

// compareNumeric orders two unsigned decimal strings without overflowing.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// ArchiveLess orders references for processing: ascending interval, then
// numeric version, then name.
func ArchiveLess(a, b ArchiveReference) bool {
	if c := compareNumeric(a.TradingDate+a.Interval, b.TradingDate+b.Interval); c != 0 {
		return c < 0
	}
	if c := compareNumeric(a.Version, b.Version); c != 0 {
		return c < 0
	}
	return a.Name < b.Name
}

// SortArchives sorts refs by ArchiveLess. Later entries win when stitching
// overlaps.
func SortArchives(refs []ArchiveReference) {
	sort.SliceStable(refs, func(i, j int) bool {
		return ArchiveLess(refs[i], refs[j])
	})
}
