package inspect

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/extractor"
	"github.com/dtnitsch/aemo-scada/pkg/mapreduce"
)

// Census is the unit inventory of a set of archives.
type Census struct {
	Archives      int                   `json:"archives" yaml:"archives"`
	DataRows      int                   `json:"data_rows" yaml:"data_rows"`
	MalformedRows int                   `json:"malformed_rows" yaml:"malformed_rows"`
	TotalUnits    int                   `json:"total_units" yaml:"total_units"`
	Units         []mapreduce.UnitCount `json:"units" yaml:"units"`

	counts map[string]int
}

// Counts returns rows per DUID across all archives.
func (c *Census) Counts() map[string]int {
	return c.counts
}

// Take reads every archive and counts rows per DUID. top limits the ranked
// list; top <= 0 keeps every unit.
func Take(logger *slog.Logger, paths []string, top int) (*Census, error) {
	set := extractor.NewUnitSet([]string{models.WildcardUnit})
	opts := extractor.DefaultOptions()

	perArchive := make([]map[string]int, 0, len(paths))
	c := &Census{Archives: len(paths)}
	for _, p := range paths {
		records, st, err := extractor.ExtractRecords(p, set, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(p), err)
		}
		c.DataRows += st.DataRows
		c.MalformedRows += st.Malformed
		counts := mapreduce.Map(records)
		perArchive = append(perArchive, counts)
		logger.Debug("Inspected archive", "archive", filepath.Base(p), "rows", st.DataRows, "units", len(counts))
	}

	c.counts = mapreduce.Reduce(perArchive)
	c.TotalUnits = len(c.counts)
	c.Units = mapreduce.Ranked(c.counts, top)
	return c, nil
}
