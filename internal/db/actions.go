package db

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/internal/fetch"
	dbpkg "github.com/dtnitsch/aemo-scada/pkg/db"
)

func RunsAction(c *cli.Context) error {
	database, err := OpenFromFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), fetch.ExitFailure)
	}
	defer database.Close()

	runs, err := database.ListRuns(c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to list runs: %v", err), fetch.ExitFailure)
	}

	if format := c.String("format"); format != "" && format != "text" {
		return common.PrintOutput(os.Stdout, runs, format)
	}
	PrintRuns(os.Stdout, runs)
	return nil
}

// RunShowAction prints one run (the latest when no ID is given) with its archives.
func RunShowAction(c *cli.Context) error {
	database, err := OpenFromFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), fetch.ExitFailure)
	}
	defer database.Close()

	runID, err := RunIDOrLatest(c.Args().First(), database)
	if err != nil {
		return cli.Exit(err.Error(), fetch.ExitFailure)
	}

	run, err := database.GetRun(runID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to get run: %v", err), fetch.ExitFailure)
	}

	format := c.String("format")
	if format == "" {
		format = "yaml"
	}
	return common.PrintOutput(os.Stdout, run, format)
}

// PrintRuns renders runs as a fixed-width table.
func PrintRuns(w io.Writer, runs []dbpkg.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}

	fmt.Fprintf(w, "%-36s %-8s %-10s %-8s %-20s %-8s %-8s %-8s %s\n",
		"Run ID", "Command", "Date", "Status", "Started", "Archives", "Rows", "Bad", "Units")
	fmt.Fprintln(w, strings.Repeat("-", 130))

	for _, r := range runs {
		fmt.Fprintf(w, "%-36s %-8s %-10s %-8s %-20s %-8d %-8d %-8d %s\n",
			r.RunID,
			r.Command,
			r.TradingDate,
			r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.ArchiveCount,
			r.OutputRows,
			r.MalformedRows,
			strings.Join(r.Units, ","),
		)
	}

	fmt.Fprintf(w, "\nTotal: %d runs\n", len(runs))
	fmt.Fprintf(w, "\nTip: Use 'aemo-scada runs show <run-id>' to see details\n")
}
