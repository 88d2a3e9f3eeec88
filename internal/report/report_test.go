package report

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/aemo-scada/pkg/analytics"
	"github.com/dtnitsch/aemo-scada/pkg/history"
)

func discard() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

func writeDay(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_LatestFile(t *testing.T) {
	data := t.TempDir()
	writeDay(t, data, "aemo_2025-10-26_CLUNY_5min.csv", "timestamp,CLUNY\n2025-10-26 00:05:00,1\n")
	writeDay(t, data, "aemo_2025-10-27_CLUNY_5min.csv",
		"timestamp,CLUNY\n2025-10-27 00:05:00,12\n2025-10-27 00:10:00,24\n")
	outDir := filepath.Join(t.TempDir(), "reports")

	out, err := Run(discard(), Options{DataDir: data, OutDir: outDir})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Day != "2025-10-27" || out.Rows != 2 {
		t.Errorf("output = %+v", out)
	}
	if out.YAMLPath != filepath.Join(outDir, "report_2025-10-27.yaml") {
		t.Errorf("YAMLPath = %q", out.YAMLPath)
	}

	raw, err := os.ReadFile(out.JSONPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromJSON analytics.Report
	if err := json.Unmarshal(raw, &fromJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	raw, err = os.ReadFile(out.YAMLPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML analytics.Report
	if err := yaml.Unmarshal(raw, &fromYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}

	for _, r := range []analytics.Report{fromJSON, fromYAML} {
		if len(r.Units) != 1 || r.Units[0].Unit != "CLUNY" {
			t.Fatalf("units = %+v", r.Units)
		}
		// (12 + 24) MW over 5-minute intervals.
		if got := r.Units[0].EnergyMWh; math.Abs(got-3) > 1e-9 {
			t.Errorf("EnergyMWh = %v, want 3", got)
		}
	}
}

func TestRun_HeaderOnlyFileUsesNameForDay(t *testing.T) {
	data := t.TempDir()
	path := writeDay(t, data, "aemo_2025-10-28_CLUNY_5min.csv", "timestamp,CLUNY\n")

	out, err := Run(discard(), Options{File: path, OutDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Day != "2025-10-28" || out.Rows != 0 {
		t.Errorf("output = %+v", out)
	}
}

func TestRun_NoFiles(t *testing.T) {
	_, err := Run(discard(), Options{DataDir: t.TempDir(), OutDir: t.TempDir()})
	if !errors.Is(err, history.ErrNoFiles) {
		t.Errorf("Run() error = %v, want ErrNoFiles", err)
	}
}
