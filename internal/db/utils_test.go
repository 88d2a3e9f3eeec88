package db

import (
	"bytes"
	"strings"
	"testing"

	dbpkg "github.com/dtnitsch/aemo-scada/pkg/db"
)

func setupTestDB(t *testing.T) *dbpkg.DB {
	t.Helper()
	database, err := dbpkg.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestRunIDOrLatest(t *testing.T) {
	database := setupTestDB(t)

	if _, err := RunIDOrLatest("", database); err == nil {
		t.Error("expected error with empty ledger")
	}

	first, err := database.StartRun("fetch", "2025-10-26", []string{"CLUNY"}, "listing")
	if err != nil {
		t.Fatal(err)
	}
	second, err := database.StartRun("fetch", "2025-10-27", []string{"CLUNY"}, "listing")
	if err != nil {
		t.Fatal(err)
	}

	got, err := RunIDOrLatest("", database)
	if err != nil {
		t.Fatalf("RunIDOrLatest() error = %v", err)
	}
	if got != second {
		t.Errorf("latest = %q, want %q", got, second)
	}
	if got, _ := RunIDOrLatest(first, database); got != first {
		t.Errorf("explicit = %q, want %q", got, first)
	}
}

func TestPrintRuns(t *testing.T) {
	database := setupTestDB(t)
	runID, err := database.StartRun("fetch", "2025-10-27", []string{"CLUNY", "AGLSOM"}, "listing")
	if err != nil {
		t.Fatal(err)
	}
	runs, err := database.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	PrintRuns(&buf, runs)

	out := buf.String()
	for _, want := range []string{runID, "2025-10-27", "running", "CLUNY,AGLSOM", "Total: 1 runs"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
