// Package extractor reads SCADA records out of published MMS report archives.
//
// The payload is an AEMO MMS CSV: "C" rows are comments, "I" rows name the
// columns of a (report, sub-report) pair and "D" rows carry data.
package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dtnitsch/aemo-scada/models"
)

var ErrNoCSV = errors.New("archive contains no CSV member")

// Options select which report rows are extracted.
type Options struct {
	Report    string // e.g. DISPATCH
	SubReport string // e.g. UNIT_SCADA
}

func DefaultOptions() Options {
	return Options{Report: "DISPATCH", SubReport: "UNIT_SCADA"}
}

// Stats counts what happened to the rows of one archive.
type Stats struct {
	DataRows    int `json:"data_rows" yaml:"data_rows"`     // D rows of the expected kind
	Matched     int `json:"matched" yaml:"matched"`         // emitted as records
	Unrequested int `json:"unrequested" yaml:"unrequested"` // other units
	Malformed   int `json:"malformed" yaml:"malformed"`     // dropped: bad timestamp/value/shape
	Missing     int `json:"missing" yaml:"missing"`         // emitted with an empty value
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.DataRows += o.DataRows
	s.Matched += o.Matched
	s.Unrequested += o.Unrequested
	s.Malformed += o.Malformed
	s.Missing += o.Missing
}

// UnitSet is the set of requested DUIDs; the wildcard admits every unit.
type UnitSet struct {
	all   bool
	units map[string]struct{}
}

func NewUnitSet(units []string) UnitSet {
	s := UnitSet{units: make(map[string]struct{}, len(units))}
	for _, u := range units {
		u = strings.ToUpper(strings.TrimSpace(u))
		if u == models.WildcardUnit {
			s.all = true
			continue
		}
		if u != "" {
			s.units[u] = struct{}{}
		}
	}
	return s
}

func (s UnitSet) Contains(duid string) bool {
	if s.all {
		return true
	}
	_, ok := s.units[duid]
	return ok
}

var timestampLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses an MMS settlement timestamp in NEM time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, models.NEMTime); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

type columns struct {
	timestamp, duid, value int
}

// fallbackColumns matches the fixed DISPATCH,UNIT_SCADA layout.
var fallbackColumns = columns{timestamp: 4, duid: 5, value: 6}

// ExtractRecords opens an archive and returns the requested units' records.
// Row-level problems are counted in Stats, never returned as errors.
func ExtractRecords(archivePath string, units UnitSet, opts Options) ([]models.ScadaRecord, Stats, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	return extractFromZip(&zr.Reader, units, opts, 0)
}

// ExtractBytes is ExtractRecords for an archive already in memory.
func ExtractBytes(raw []byte, units UnitSet, opts Options) ([]models.ScadaRecord, Stats, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open archive: %w", err)
	}
	return extractFromZip(zr, units, opts, 0)
}

func extractFromZip(zr *zip.Reader, units UnitSet, opts Options, depth int) ([]models.ScadaRecord, Stats, error) {
	var nested []*zip.File
	for _, f := range zr.File {
		lower := strings.ToLower(f.Name)
		if strings.HasSuffix(lower, ".csv") {
			rc, err := f.Open()
			if err != nil {
				return nil, Stats{}, fmt.Errorf("failed to open %s: %w", f.Name, err)
			}
			defer rc.Close()
			return ParseCSV(rc, units, opts)
		}
		if strings.HasSuffix(lower, ".zip") {
			nested = append(nested, f)
		}
	}

	// Daily archive bundles wrap each interval's zip inside another zip.
	if len(nested) == 0 || depth > 0 {
		return nil, Stats{}, ErrNoCSV
	}
	sortMembers(nested)

	var all []models.ScadaRecord
	var total Stats
	for _, f := range nested {
		raw, err := readZipMember(f)
		if err != nil {
			return nil, Stats{}, err
		}
		inner, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
		if err != nil {
			return nil, Stats{}, fmt.Errorf("failed to open nested archive %s: %w", f.Name, err)
		}
		recs, st, err := extractFromZip(inner, units, opts, depth+1)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("nested archive %s: %w", f.Name, err)
		}
		all = append(all, recs...)
		total.Add(st)
	}
	return all, total, nil
}

// sortMembers puts nested archives in processing order so later versions of
// an interval win. Names that do not parse sort by name ahead of the rest.
func sortMembers(files []*zip.File) {
	refs := make(map[*zip.File]models.ArchiveReference, len(files))
	for _, f := range files {
		ref, err := models.ParseArchiveName(f.Name)
		if err != nil {
			ref = models.ArchiveReference{Name: path.Base(f.Name)}
		}
		refs[f] = ref
	}
	sort.SliceStable(files, func(i, j int) bool {
		return models.ArchiveLess(refs[files[i]], refs[files[j]])
	})
}

func readZipMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return raw, nil
}

// ParseCSV extracts records from an MMS CSV stream.
func ParseCSV(r io.Reader, units UnitSet, opts Options) ([]models.ScadaRecord, Stats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		stats   Stats
		records []models.ScadaRecord
		cols    = fallbackColumns
	)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				stats.Malformed++
				continue
			}
			return nil, stats, fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(row) < 3 || !isKind(row, opts) {
			continue
		}

		switch strings.ToUpper(strings.TrimSpace(row[0])) {
		case "I":
			if c, ok := headerColumns(row); ok {
				cols = c
			}
		case "D":
			stats.DataRows++
			rec, keep, ok := parseDataRow(row, cols, units)
			if !ok {
				stats.Malformed++
				continue
			}
			if !keep {
				stats.Unrequested++
				continue
			}
			if rec.MW == nil {
				stats.Missing++
			}
			stats.Matched++
			records = append(records, rec)
		}
	}
	return records, stats, nil
}

func isKind(row []string, opts Options) bool {
	return strings.EqualFold(strings.TrimSpace(row[1]), opts.Report) &&
		strings.EqualFold(strings.TrimSpace(row[2]), opts.SubReport)
}

func headerColumns(row []string) (columns, bool) {
	c := columns{timestamp: -1, duid: -1, value: -1}
	for i, name := range row {
		switch strings.ToUpper(strings.TrimSpace(name)) {
		case "SETTLEMENTDATE":
			c.timestamp = i
		case "DUID":
			c.duid = i
		case "SCADAVALUE":
			c.value = i
		}
	}
	return c, c.timestamp >= 0 && c.duid >= 0 && c.value >= 0
}

// parseDataRow returns the record, whether its unit was requested, and
// whether the row was well-formed.
func parseDataRow(row []string, cols columns, units UnitSet) (models.ScadaRecord, bool, bool) {
	if len(row) <= cols.timestamp || len(row) <= cols.duid || len(row) <= cols.value {
		return models.ScadaRecord{}, false, false
	}

	duid := strings.ToUpper(strings.TrimSpace(row[cols.duid]))
	if duid == "" {
		return models.ScadaRecord{}, false, false
	}
	if !units.Contains(duid) {
		return models.ScadaRecord{}, false, true
	}

	ts, err := ParseTimestamp(row[cols.timestamp])
	if err != nil || ts.Minute()%5 != 0 || ts.Second() != 0 {
		return models.ScadaRecord{}, false, false
	}

	rec := models.ScadaRecord{Timestamp: ts, DUID: duid}
	if raw := strings.TrimSpace(row[cols.value]); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.ScadaRecord{}, false, false
		}
		// NaN and Inf are published placeholders, not readings.
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			rec.MW = &v
		}
	}
	return rec, true, true
}
