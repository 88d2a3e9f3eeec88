// Package stitcher joins per-archive SCADA records into one wide table per day.
package stitcher

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/storage"
)

// Row is one 5-minute interval; Values align with Table.Units.
type Row struct {
	Timestamp time.Time
	Values    []*float64
}

// Table is the stitched day: one row per distinct timestamp, ascending.
type Table struct {
	Units []string
	Rows  []Row
}

// Stitch applies records in slice order. For a repeated (timestamp, unit)
// the later record wins. A unit list of "*" yields every observed DUID,
// sorted; otherwise the columns are exactly units in the given order.
func Stitch(records []models.ScadaRecord, units []string) *Table {
	cols := normaliseUnits(units)
	if isWildcard(cols) {
		cols = observedUnits(records)
	}

	index := make(map[string]int, len(cols))
	for i, u := range cols {
		index[u] = i
	}

	rows := make(map[int64]*Row)
	for _, rec := range records {
		col, ok := index[strings.ToUpper(rec.DUID)]
		if !ok {
			continue
		}
		key := rec.Timestamp.Unix()
		row, ok := rows[key]
		if !ok {
			row = &Row{Timestamp: rec.Timestamp.In(models.NEMTime), Values: make([]*float64, len(cols))}
			rows[key] = row
		}
		row.Values[col] = rec.MW
	}

	t := &Table{Units: cols, Rows: make([]Row, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, *r)
	}
	sort.Slice(t.Rows, func(i, j int) bool {
		return t.Rows[i].Timestamp.Before(t.Rows[j].Timestamp)
	})
	return t
}

func normaliseUnits(units []string) []string {
	out := make([]string, 0, len(units))
	seen := make(map[string]bool, len(units))
	for _, u := range units {
		u = strings.ToUpper(strings.TrimSpace(u))
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func isWildcard(units []string) bool {
	for _, u := range units {
		if u == models.WildcardUnit {
			return true
		}
	}
	return false
}

func observedUnits(records []models.ScadaRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		u := strings.ToUpper(r.DUID)
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

// Column returns the index of unit in the table, or -1.
func (t *Table) Column(unit string) int {
	unit = strings.ToUpper(strings.TrimSpace(unit))
	for i, u := range t.Units {
		if u == unit {
			return i
		}
	}
	return -1
}

// Missing counts empty cells.
func (t *Table) Missing() int {
	n := 0
	for _, r := range t.Rows {
		for _, v := range r.Values {
			if v == nil {
				n++
			}
		}
	}
	return n
}

// Encode writes the table as CSV: header "timestamp,<UNIT>...", then rows.
func (t *Table) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"timestamp"}, t.Units...)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for _, r := range t.Rows {
		rec[0] = r.Timestamp.In(models.NEMTime).Format(models.TimestampLayout)
		for i, v := range r.Values {
			if v == nil {
				rec[i+1] = ""
				continue
			}
			rec[i+1] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSV atomically replaces path with the encoded table.
func WriteCSV(path string, t *Table) error {
	var s storage.Storage
	if err := s.WriteAtomic(path, t.Encode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadCSV loads a table written by WriteCSV.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return t, nil
}

// Decode parses the CSV produced by Encode.
func Decode(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, err
	}
	if len(header) == 0 || !strings.EqualFold(strings.TrimPrefix(header[0], "\ufeff"), "timestamp") {
		return nil, fmt.Errorf("first column must be timestamp, got %q", header)
	}

	t := &Table{Units: normaliseUnits(header[1:])}
	if len(t.Units) != len(header)-1 {
		return nil, fmt.Errorf("duplicate or empty unit columns in %q", header)
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ts, err := time.ParseInLocation(models.TimestampLayout, rec[0], models.NEMTime)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := Row{Timestamp: ts, Values: make([]*float64, len(t.Units))}
		for i, cell := range rec[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, t.Units[i], err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			row.Values[i] = &v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
