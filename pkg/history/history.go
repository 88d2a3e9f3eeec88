// Package history loads the stitched day files accumulated in an output directory.
package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/stitcher"
)

// FilePattern matches stitched day files.
const FilePattern = "aemo_*_5min.csv"

var dayPattern = regexp.MustCompile(`^aemo_(\d{4}-\d{2}-\d{2})_.*_5min\.csv$`)

var (
	ErrNoFiles     = errors.New("no day files found")
	ErrUnknownDay  = errors.New("unknown day")
	ErrUnknownUnit = errors.New("unknown unit")
)

// Point is one interval of a unit's series.
type Point struct {
	Timestamp string   `json:"timestamp"`
	MW        *float64 `json:"mw"`
}

// History is every day file in a directory, merged per day.
type History struct {
	Dir     string
	Files   []string
	Skipped map[string]string // file -> reason
	days    map[string]*stitcher.Table
}

// Files returns the day files in dir, oldest day first.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, FilePattern))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		if dayPattern.MatchString(filepath.Base(m)) {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// LatestFile returns the newest day file in dir.
func LatestFile(dir string) (string, error) {
	files, err := Files(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoFiles, dir)
	}
	return files[len(files)-1], nil
}

// DayOf returns the YYYY-MM-DD day encoded in a day file name.
func DayOf(path string) (string, bool) {
	m := dayPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Load reads every day file in dir. Files that fail to parse are recorded in
// Skipped rather than failing the load. Several files for the same day are
// merged; a later file (by name) wins for cells both define.
func Load(dir string) (*History, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	h := &History{Dir: dir, Skipped: map[string]string{}, days: map[string]*stitcher.Table{}}
	for _, f := range files {
		day, _ := DayOf(f)
		t, err := stitcher.ReadCSV(f)
		if err != nil {
			h.Skipped[f] = err.Error()
			continue
		}
		h.Files = append(h.Files, f)
		h.days[day] = merge(h.days[day], t)
	}
	return h, nil
}

func merge(into, t *stitcher.Table) *stitcher.Table {
	if into == nil {
		return t
	}
	var records []models.ScadaRecord
	for _, src := range []*stitcher.Table{into, t} {
		for _, row := range src.Rows {
			for i, unit := range src.Units {
				if row.Values[i] != nil {
					records = append(records, models.ScadaRecord{Timestamp: row.Timestamp, DUID: unit, MW: row.Values[i]})
				}
			}
		}
	}
	units := append([]string{}, into.Units...)
	for _, u := range t.Units {
		if into.Column(u) < 0 {
			units = append(units, u)
		}
	}
	merged := stitcher.Stitch(records, units)
	// Keep timestamps that only had empty cells.
	seen := make(map[int64]bool, len(merged.Rows))
	for _, r := range merged.Rows {
		seen[r.Timestamp.Unix()] = true
	}
	for _, src := range []*stitcher.Table{into, t} {
		for _, row := range src.Rows {
			if !seen[row.Timestamp.Unix()] {
				seen[row.Timestamp.Unix()] = true
				merged.Rows = append(merged.Rows, stitcher.Row{Timestamp: row.Timestamp, Values: make([]*float64, len(units))})
			}
		}
	}
	sort.Slice(merged.Rows, func(i, j int) bool {
		return merged.Rows[i].Timestamp.Before(merged.Rows[j].Timestamp)
	})
	return merged
}

// Days lists the days present, ascending.
func (h *History) Days() []string {
	days := make([]string, 0, len(h.days))
	for d := range h.days {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// Units lists every unit column across all days, sorted.
func (h *History) Units() []string {
	seen := map[string]bool{}
	var units []string
	for _, t := range h.days {
		for _, u := range t.Units {
			if !seen[u] {
				seen[u] = true
				units = append(units, u)
			}
		}
	}
	sort.Strings(units)
	return units
}

// Table returns the merged table for a day.
func (h *History) Table(day string) (*stitcher.Table, error) {
	t, ok := h.days[day]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDay, day)
	}
	return t, nil
}

// Series returns a unit's values for one day, or across all days when day is empty.
func (h *History) Series(day, unit string) ([]Point, error) {
	unit = strings.ToUpper(strings.TrimSpace(unit))
	days := h.Days()
	if day != "" {
		if _, ok := h.days[day]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDay, day)
		}
		days = []string{day}
	}

	found := false
	points := []Point{}
	for _, d := range days {
		t := h.days[d]
		col := t.Column(unit)
		if col < 0 {
			continue
		}
		found = true
		for _, row := range t.Rows {
			points = append(points, Point{
				Timestamp: row.Timestamp.In(models.NEMTime).Format(models.TimestampLayout),
				MW:        row.Values[col],
			})
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, unit)
	}
	return points, nil
}
