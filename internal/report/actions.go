package report

import (
	"errors"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/internal/fetch"
	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/history"
)

func ReportAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	opts := Options{
		File:    c.String("file"),
		DataDir: c.String("data-dir"),
		OutDir:  c.String("outdir"),
	}
	if opts.DataDir == "" {
		opts.DataDir = models.DefaultOutDir
	}
	if opts.OutDir == "" {
		opts.OutDir = models.DefaultReportsDir
	}
	format := c.String("format")
	if _, err := common.Marshal(struct{}{}, format); err != nil {
		return cli.Exit(err.Error(), fetch.ExitInvalidArgs)
	}

	out, err := Run(logger, opts)
	if err != nil {
		if errors.Is(err, history.ErrNoFiles) {
			return cli.Exit(err.Error(), fetch.ExitNoArchives)
		}
		return cli.Exit(err.Error(), fetch.ExitFailure)
	}
	return common.PrintOutput(os.Stdout, out, format)
}
