package stitch

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/internal/fetch"
	"github.com/dtnitsch/aemo-scada/models"
)

func StitchAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	opts := Options{
		ZipsDir:      c.String("zips"),
		OutPath:      c.String("out"),
		ReportPrefix: c.String("report-prefix"),
	}
	if opts.ZipsDir == "" {
		return cli.Exit("--zips is required", fetch.ExitInvalidArgs)
	}
	units, err := common.ParseUnits(c.String("units"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("--units: %v", err), fetch.ExitInvalidArgs)
	}
	opts.Units = units
	if opts.ReportPrefix == "" {
		opts.ReportPrefix = models.DefaultReportPrefix
	}
	if opts.OutPath == "" {
		opts.OutPath = fmt.Sprintf("aemo_stitched_%s_5min.csv", common.UnitTag(units))
	}
	format := c.String("format")
	if _, err := common.Marshal(struct{}{}, format); err != nil {
		return cli.Exit(err.Error(), fetch.ExitInvalidArgs)
	}

	ledger := common.OpenLedger(logger, common.ResolveDBPath(c.String("db-path"), c.String("outdir")))
	if ledger != nil {
		defer ledger.Close()
	}

	out, runErr := Run(logger, opts, ledger)
	if err := common.PrintOutput(os.Stdout, out, format); err != nil {
		logger.Error("Failed to print output", "error", err)
	}
	if runErr != nil {
		code := fetch.ExitCode(runErr)
		if errors.Is(runErr, ErrNoLocalArchives) {
			code = fetch.ExitNoArchives
		}
		return cli.Exit(runErr.Error(), code)
	}
	return nil
}
