package db

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/models"
	dbpkg "github.com/dtnitsch/aemo-scada/pkg/db"
)

// OpenFromFlags opens the ledger named by --db-path (default under --outdir).
func OpenFromFlags(c *cli.Context) (*dbpkg.DB, error) {
	outDir := c.String("outdir")
	if outDir == "" {
		outDir = models.DefaultOutDir
	}
	path := common.ResolveDBPath(c.String("db-path"), outDir)
	if path == "" {
		return nil, fmt.Errorf("run ledger is disabled (--db-path %s)", dbpkg.DisabledPath)
	}
	database, err := dbpkg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// RunIDOrLatest returns arg, or the most recent run ID when arg is empty.
func RunIDOrLatest(arg string, database *dbpkg.DB) (string, error) {
	if arg != "" {
		return arg, nil
	}
	runs, err := database.ListRuns(1)
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs found. Run 'aemo-scada fetch --date ... --units ...' first")
	}
	return runs[0].RunID, nil
}
