package serve

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/internal/fetch"
	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/dashboard"
)

func ServeAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	cfg := dashboard.Config{
		Addr:    ListenAddr(c.String("addr"), c.IsSet("addr"), os.Getenv("PORT")),
		DataDir: c.String("data-dir"),
	}
	if cfg.DataDir == "" {
		cfg.DataDir = models.DefaultOutDir
	}

	logger.Info("Starting dashboard API", "addr", cfg.Addr, "data_dir", cfg.DataDir)
	if err := dashboard.New(cfg).Run(c.Context); err != nil {
		logger.Error("Dashboard API stopped", "error", err)
		return cli.Exit(err.Error(), fetch.ExitFailure)
	}
	logger.Info("Dashboard API stopped")
	return nil
}

// ListenAddr picks the listen address. An explicit --addr wins, then $PORT.
func ListenAddr(addr string, explicit bool, port string) string {
	if explicit && addr != "" {
		return addr
	}
	if port != "" {
		return ":" + port
	}
	if addr != "" {
		return addr
	}
	return dashboard.DefaultAddr
}
