package mapreduce

import "github.com/dtnitsch/aemo-scada/models"

// Map counts rows per DUID for a single archive's records.
func Map(records []models.ScadaRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.DUID]++
	}
	return counts
}

// Reduce aggregates a slice of per-archive unit counts into a single map.
func Reduce(intermediate []map[string]int) map[string]int {
	finalResults := make(map[string]int)

	for _, counts := range intermediate {
		for unit, count := range counts {
			finalResults[unit] += count
		}
	}

	return finalResults
}
