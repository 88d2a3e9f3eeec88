package mapreduce

import (
	"fmt"
	"io"
	"sort"
)

// UnitCount is one DUID and the number of rows seen for it.
type UnitCount struct {
	Unit  string `json:"unit" yaml:"unit"`
	Count int    `json:"count" yaml:"count"`
}

// Ranked orders counts by descending count, then unit name.
// n <= 0 returns every unit.
func Ranked(counts map[string]int, n int) []UnitCount {
	ss := make([]UnitCount, 0, len(counts))
	for k, v := range counts {
		ss = append(ss, UnitCount{k, v})
	}

	sort.Slice(ss, func(i, j int) bool {
		if ss[i].Count != ss[j].Count {
			return ss[i].Count > ss[j].Count
		}
		return ss[i].Unit < ss[j].Unit
	})

	if n > 0 && len(ss) > n {
		ss = ss[:n]
	}
	return ss
}

// TopUnits returns the top N units formatted as "unit:count" (e.g., "CLUNY:288").
func TopUnits(counts map[string]int, n int) []string {
	ranked := Ranked(counts, n)
	units := make([]string, len(ranked))
	for i, uc := range ranked {
		units[i] = fmt.Sprintf("%s:%d", uc.Unit, uc.Count)
	}
	return units
}

// PrintTopUnits prints the top N units in a numbered list format.
func PrintTopUnits(w io.Writer, counts map[string]int, n int) {
	for i, uc := range Ranked(counts, n) {
		fmt.Fprintf(w, "%d. %s: %d\n", i+1, uc.Unit, uc.Count)
	}
}
