package common

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/db"
)

// NewLogger builds the JSON stderr logger from the global --quiet/--verbose flags.
func NewLogger(c *cli.Context) *slog.Logger {
	logLevel := slog.LevelInfo
	if c.Bool("verbose") {
		logLevel = slog.LevelDebug
	}
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// ParseUnits splits a comma list into canonical upper-cased DUIDs, dropping
// blanks and duplicates. "*" anywhere in the list means every unit.
func ParseUnits(raw string) ([]string, error) {
	var units []string
	seen := make(map[string]bool)
	for _, u := range strings.Split(raw, ",") {
		u = strings.ToUpper(strings.TrimSpace(u))
		if u == "" || seen[u] {
			continue
		}
		if u == models.WildcardUnit {
			return []string{models.WildcardUnit}, nil
		}
		if strings.ContainsAny(u, `/\ `) {
			return nil, fmt.Errorf("invalid unit %q", u)
		}
		seen[u] = true
		units = append(units, u)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no units given")
	}
	return units, nil
}

// UnitTag is the units part of an output file name.
func UnitTag(units []string) string {
	if len(units) == 1 && units[0] == models.WildcardUnit {
		return "ALL"
	}
	return strings.Join(units, "_")
}

// OutputPath returns <outdir>/aemo_<YYYY-MM-DD>_<UNITS>_5min.csv.
func OutputPath(outDir string, day time.Time, units []string) string {
	return filepath.Join(outDir, fmt.Sprintf("aemo_%s_%s_5min.csv", day.Format("2006-01-02"), UnitTag(units)))
}

// ParseTradingDate accepts YYYY-MM-DD or YYYYMMDD and returns midnight NEM time.
func ParseTradingDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.ParseInLocation(layout, s, models.NEMTime); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
}

// ContentHash computes SHA256 hash of content and returns hex string.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// FileHash hashes a file's content without loading it whole.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Marshal renders v as indented JSON or YAML.
func Marshal(v any, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(v)
	case "", "json":
		return json.MarshalIndent(v, "", "  ")
	default:
		return nil, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

// PrintOutput writes v to w in the requested format.
func PrintOutput(w io.Writer, v any, format string) error {
	data, err := Marshal(v, format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(string(data), "\n"))
	return err
}

// ResolveDBPath applies the ledger default of <outdir>/aemo-scada.db.
// "off" disables the ledger and yields "".
func ResolveDBPath(flag, outDir string) string {
	switch strings.TrimSpace(flag) {
	case db.DisabledPath:
		return ""
	case "":
		return filepath.Join(outDir, models.DefaultDBName)
	default:
		return flag
	}
}

// OpenLedger opens the run ledger. A failure is logged and the run continues
// without one.
func OpenLedger(logger *slog.Logger, path string) *db.DB {
	if path == "" {
		return nil
	}
	ledger, err := db.Open(path)
	if err != nil {
		logger.Warn("Run ledger unavailable", "db_path", path, "error", err)
		return nil
	}
	return ledger
}
