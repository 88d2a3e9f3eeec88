package inspect

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/aemo-scada/internal/common"
	"github.com/dtnitsch/aemo-scada/internal/fetch"
	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/artifact_manager"
	"github.com/dtnitsch/aemo-scada/pkg/mapreduce"
)

func InspectAction(c *cli.Context) error {
	logger := common.NewLogger(c)

	var paths []string
	switch {
	case c.String("zip") != "":
		paths = []string{c.String("zip")}
	case c.String("zips") != "":
		prefix := c.String("report-prefix")
		if prefix == "" {
			prefix = models.DefaultReportPrefix
		}
		found, err := artifact_manager.ListArchives(c.String("zips"), prefix)
		if err != nil {
			return cli.Exit(err.Error(), fetch.ExitFailure)
		}
		if len(found) == 0 {
			return cli.Exit(fmt.Sprintf("no %s*.zip in %s", prefix, c.String("zips")), fetch.ExitNoArchives)
		}
		paths = found
	default:
		return cli.Exit("one of --zip or --zips is required", fetch.ExitInvalidArgs)
	}

	top := c.Int("top")
	census, err := Take(logger, paths, top)
	if err != nil {
		return cli.Exit(err.Error(), fetch.ExitFailure)
	}

	format := strings.ToLower(c.String("format"))
	if format == "" || format == "text" {
		fmt.Printf("Archives: %d  Rows: %d  Malformed: %d  Units: %d\n",
			census.Archives, census.DataRows, census.MalformedRows, census.TotalUnits)
		fmt.Println(strings.Repeat("-", 40))
		mapreduce.PrintTopUnits(os.Stdout, census.Counts(), top)
		return nil
	}
	if err := common.PrintOutput(os.Stdout, census, format); err != nil {
		return cli.Exit(err.Error(), fetch.ExitInvalidArgs)
	}
	return nil
}
