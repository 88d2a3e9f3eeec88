package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/aemo-scada/internal/db"
	"github.com/dtnitsch/aemo-scada/internal/fetch"
	"github.com/dtnitsch/aemo-scada/internal/inspect"
	"github.com/dtnitsch/aemo-scada/internal/report"
	"github.com/dtnitsch/aemo-scada/internal/serve"
	"github.com/dtnitsch/aemo-scada/internal/stitch"
	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/artifact_manager"
	"github.com/dtnitsch/aemo-scada/pkg/dashboard"
	fetcherpkg "github.com/dtnitsch/aemo-scada/pkg/fetcher"
	"github.com/dtnitsch/aemo-scada/pkg/help"
	"github.com/dtnitsch/aemo-scada/pkg/pgsink"
)

func main() {
	_ = godotenv.Load() // missing .env is fine

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(fetch.ExitInvalidArgs)
	}
}

func outDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "outdir",
		Usage:   "Directory for day CSVs, archives and the run ledger",
		Value:   models.DefaultOutDir,
		EnvVars: []string{"AEMO_DATA_DIR"},
	}
}

func dbPathFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-path",
		Usage:   "Run ledger path (default <outdir>/aemo-scada.db, 'off' disables)",
		EnvVars: []string{"AEMO_DB_PATH"},
	}
}

func reportPrefixFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "report-prefix",
		Usage:   "Archive name prefix",
		Value:   models.DefaultReportPrefix,
		EnvVars: []string{"AEMO_REPORT_PREFIX"},
	}
}

func formatFlag(value, usage string) *cli.StringFlag {
	return &cli.StringFlag{Name: "format", Value: value, Usage: usage}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "aemo-scada",
		Usage: "Fetch AEMO NEMweb DISPATCHSCADA archives and stitch per-day unit CSVs",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Only log errors"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Log debug detail"},
		},
		Commands: []*cli.Command{
			{
				Name:   "fetch",
				Usage:  "Download one trading day and write the stitched CSV",
				Action: fetch.FetchAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Usage: "Trading day, YYYY-MM-DD (required)"},
					&cli.StringFlag{Name: "units", Usage: "Comma-separated DUIDs, or * for all (required)"},
					outDirFlag(),
					&cli.StringFlag{
						Name:  "source",
						Usage: "auto (daily bundle, then current listing), archive or current",
						Value: models.SourceAuto,
					},
					&cli.StringFlag{
						Name:    "archive-url",
						Usage:   "Directory holding the daily bundles",
						Value:   models.DefaultArchiveURL,
						EnvVars: []string{"AEMO_ARCHIVE_URL"},
					},
					&cli.StringFlag{
						Name:    "listing-url",
						Usage:   "Directory listing to scan",
						Value:   models.DefaultListingURL,
						EnvVars: []string{"AEMO_LISTING_URL"},
					},
					reportPrefixFlag(),
					&cli.StringFlag{
						Name:    "cache-dir",
						Usage:   "Archive cache (default <outdir>/archives)",
						EnvVars: []string{"AEMO_CACHE_DIR"},
					},
					&cli.IntFlag{Name: "workers", Value: 1, Usage: "Concurrent downloads"},
					&cli.IntFlag{Name: "attempts", Value: fetcherpkg.DefaultMaxAttempts, Usage: "Attempts per archive"},
					&cli.DurationFlag{Name: "timeout", Value: fetcherpkg.DefaultTimeout, Usage: "Per-attempt timeout"},
					&cli.DurationFlag{Name: "backoff-base", Value: fetcherpkg.DefaultBackoffBase, Usage: "Wait after the first failed attempt"},
					&cli.DurationFlag{Name: "backoff-cap", Value: fetcherpkg.DefaultBackoffCap, Usage: "Longest wait between attempts"},
					&cli.DurationFlag{Name: "listing-ttl", Usage: "Reuse a fetched listing for this long (0 = always refetch)"},
					&cli.DurationFlag{Name: "lock-ttl", Value: artifact_manager.DefaultLockTTL, Usage: "Age after which a day lock is considered stale"},
					dbPathFlag(),
					&cli.StringFlag{Name: "pg-dsn", Usage: "Postgres DSN for the optional upsert", EnvVars: []string{"PG_DSN"}},
					&cli.StringFlag{Name: "pg-schema", Value: pgsink.DefaultSchema, Usage: "Postgres schema"},
					formatFlag("json", "Run summary format: json|yaml"),
				},
			},
			{
				Name:   "stitch",
				Usage:  "Stitch a local folder of archives into one CSV",
				Action: stitch.StitchAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "zips", Usage: "Folder of archives (required)"},
					&cli.StringFlag{Name: "units", Usage: "Comma-separated DUIDs, or * for all (required)"},
					&cli.StringFlag{Name: "out", Usage: "Output CSV path"},
					reportPrefixFlag(),
					outDirFlag(),
					dbPathFlag(),
					formatFlag("json", "Run summary format: json|yaml"),
				},
			},
			{
				Name:   "inspect",
				Usage:  "List the units present in archives with row counts",
				Action: inspect.InspectAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "zips", Usage: "Folder of archives"},
					&cli.StringFlag{Name: "zip", Usage: "Single archive"},
					&cli.IntFlag{Name: "top", Value: 25, Usage: "Units to show (0 = all)"},
					reportPrefixFlag(),
					formatFlag("text", "Output format: text|json|yaml"),
				},
			},
			{
				Name:   "report",
				Usage:  "Write per-unit KPIs for a day CSV",
				Action: report.ReportAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "Day CSV (default newest in --data-dir)"},
					&cli.StringFlag{Name: "data-dir", Value: models.DefaultOutDir, EnvVars: []string{"AEMO_DATA_DIR"}, Usage: "Folder of day CSVs"},
					&cli.StringFlag{Name: "outdir", Value: models.DefaultReportsDir, Usage: "Report folder"},
					formatFlag("json", "Summary format: json|yaml"),
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve day CSVs and KPIs over HTTP",
				Action: serve.ServeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Value: dashboard.DefaultAddr, Usage: "Listen address (PORT env sets the port)"},
					&cli.StringFlag{Name: "data-dir", Value: models.DefaultOutDir, EnvVars: []string{"AEMO_DATA_DIR"}, Usage: "Folder of day CSVs"},
				},
			},
			{
				Name:   "runs",
				Usage:  "List recent runs from the ledger",
				Action: db.RunsAction,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Runs to show (0 = all)"},
					outDirFlag(),
					dbPathFlag(),
					formatFlag("text", "Output format: text|json|yaml"),
				},
				Subcommands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "Show one run with its archives (latest when no ID)",
						ArgsUsage: "[run-id]",
						Action:    db.RunShowAction,
						Flags: []cli.Flag{
							outDirFlag(),
							dbPathFlag(),
							formatFlag("yaml", "Output format: yaml|json"),
						},
					},
				},
			},
			{
				Name:  "quickstart",
				Usage: "Print a YAML quick reference",
				Action: func(c *cli.Context) error {
					fmt.Print(help.ColdstartYAML)
					return nil
				},
			},
		},
	}
}
