package extractor

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dtnitsch/aemo-scada/internal/mmstest"
	"github.com/dtnitsch/aemo-scada/models"
)

func TestExtractRecords_FiltersUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PUBLIC_DISPATCHSCADA_202510270000_1.zip")
	mmstest.WriteArchive(t, path, "PUBLIC_DISPATCHSCADA_202510270000_1.zip",
		mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "CLUNY", Value: "12.5"},
		mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "BAYSW1", Value: "650"},
		mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "aglsom", Value: "-3.25"},
	)

	recs, stats, err := ExtractRecords(path, NewUnitSet([]string{"CLUNY", "AGLSOM"}), DefaultOptions())
	if err != nil {
		t.Fatalf("ExtractRecords() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if stats.DataRows != 3 || stats.Matched != 2 || stats.Unrequested != 1 {
		t.Errorf("stats = %+v, want 3 data rows, 2 matched, 1 unrequested", stats)
	}

	want := time.Date(2025, 10, 27, 0, 5, 0, 0, models.NEMTime)
	for _, r := range recs {
		if r.DUID == "BAYSW1" {
			t.Error("unrequested unit extracted")
		}
		if !r.Timestamp.Equal(want) {
			t.Errorf("%s timestamp = %v, want %v", r.DUID, r.Timestamp, want)
		}
	}
	if recs[1].DUID != "AGLSOM" || recs[1].MW == nil || *recs[1].MW != -3.25 {
		t.Errorf("recs[1] = %+v, want AGLSOM -3.25", recs[1])
	}
}

func TestParseCSV_MalformedRowsCounted(t *testing.T) {
	body := mmstest.CSV(
		mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "CLUNY", Value: "1"},
		mmstest.Reading{Timestamp: "not a date", DUID: "CLUNY", Value: "2"},
		mmstest.Reading{Timestamp: "2025/10/27 00:10:00", DUID: "CLUNY", Value: "n/a"},
		mmstest.Reading{Timestamp: "2025/10/27 00:12:00", DUID: "CLUNY", Value: "3"},
		mmstest.Reading{Timestamp: "2025/10/27 00:15:00", DUID: "CLUNY", Value: ""},
	)
	body += "D,DISPATCH,UNIT_SCADA,1\n"

	recs, stats, err := ParseCSV(strings.NewReader(body), NewUnitSet([]string{"CLUNY"}), DefaultOptions())
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if stats.Malformed != 4 {
		t.Errorf("Malformed = %d, want 4", stats.Malformed)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[1].MW != nil {
		t.Errorf("empty value parsed as %v, want missing", *recs[1].MW)
	}
	if stats.Missing != 1 {
		t.Errorf("Missing = %d, want 1", stats.Missing)
	}
}

func TestParseCSV_NonFiniteValuesMissing(t *testing.T) {
	tests := []string{"NaN", "nan", "Inf", "+Inf", "-Inf", "infinity"}
	for _, value := range tests {
		t.Run(value, func(t *testing.T) {
			body := mmstest.CSV(mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "CLUNY", Value: value})

			recs, stats, err := ParseCSV(strings.NewReader(body), NewUnitSet([]string{"CLUNY"}), DefaultOptions())
			if err != nil {
				t.Fatalf("ParseCSV() error = %v", err)
			}
			if len(recs) != 1 {
				t.Fatalf("got %d records, want 1", len(recs))
			}
			if recs[0].MW != nil {
				t.Errorf("MW = %v, want missing", *recs[0].MW)
			}
			if stats.Missing != 1 || stats.Malformed != 0 {
				t.Errorf("stats = %+v, want 1 missing, 0 malformed", stats)
			}
		})
	}
}

func TestParseCSV_OtherReportKindsIgnored(t *testing.T) {
	body := "I,DISPATCH,INTERCONNECTORRES,1,SETTLEMENTDATE,INTERCONNECTORID,MWFLOW\n" +
		"D,DISPATCH,INTERCONNECTORRES,1,\"2025/10/27 00:05:00\",CLUNY,99\n" +
		mmstest.CSV(mmstest.Reading{Timestamp: "2025/10/27 00:05:00", DUID: "CLUNY", Value: "7"})

	recs, stats, err := ParseCSV(strings.NewReader(body), NewUnitSet([]string{"CLUNY"}), DefaultOptions())
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(recs) != 1 || *recs[0].MW != 7 {
		t.Errorf("records = %+v, want single value 7", recs)
	}
	if stats.DataRows != 1 {
		t.Errorf("DataRows = %d, want 1", stats.DataRows)
	}
}

func TestParseCSV_HeaderDrivenColumns(t *testing.T) {
	body := "I,DISPATCH,UNIT_SCADA,2,DUID,SETTLEMENTDATE,SCADAVALUE\n" +
		"D,DISPATCH,UNIT_SCADA,2,CLUNY,\"2025/10/27 00:05:00\",4.5\n"

	recs, _, err := ParseCSV(strings.NewReader(body), NewUnitSet([]string{"*"}), DefaultOptions())
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(recs) != 1 || recs[0].DUID != "CLUNY" || *recs[0].MW != 4.5 {
		t.Errorf("records = %+v, want CLUNY 4.5", recs)
	}
}

func TestExtractBytes_NoCSV(t *testing.T) {
	raw := mmstest.Zip(t, "readme.txt", "hello")
	_, _, err := ExtractBytes(raw, NewUnitSet([]string{"CLUNY"}), DefaultOptions())
	if !errors.Is(err, ErrNoCSV) {
		t.Errorf("ExtractBytes() error = %v, want ErrNoCSV", err)
	}
}

func TestExtractBytes_NestedArchive(t *testing.T) {
	const (
		v1   = "PUBLIC_DISPATCHSCADA_202510270005_1.zip"
		v2   = "PUBLIC_DISPATCHSCADA_202510270005_2.zip"
		next = "PUBLIC_DISPATCHSCADA_202510270010_1.zip"
	)
	reading := func(ts, value string) mmstest.Reading {
		return mmstest.Reading{Timestamp: ts, DUID: "CLUNY", Value: value}
	}
	raw := mmstest.Bundle(t,
		mmstest.Member{Name: next, Body: mmstest.Archive(t, next, reading("2025/10/27 00:10:00", "3"))},
		mmstest.Member{Name: v2, Body: mmstest.Archive(t, v2, reading("2025/10/27 00:05:00", "2"))},
		mmstest.Member{Name: v1, Body: mmstest.Archive(t, v1, reading("2025/10/27 00:05:00", "1"))},
	)

	recs, stats, err := ExtractBytes(raw, NewUnitSet([]string{"CLUNY"}), DefaultOptions())
	if err != nil {
		t.Fatalf("ExtractBytes() error = %v", err)
	}
	if stats.Matched != 3 {
		t.Errorf("Matched = %d, want 3", stats.Matched)
	}

	// Members come back in processing order regardless of their order in the bundle.
	want := []float64{1, 2, 3}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i, w := range want {
		if recs[i].MW == nil || *recs[i].MW != w {
			t.Errorf("recs[%d] = %+v, want %v", i, recs[i], w)
		}
	}
}

func TestUnitSet(t *testing.T) {
	s := NewUnitSet([]string{" cluny ", "AGLSOM", ""})
	if !s.Contains("CLUNY") || !s.Contains("AGLSOM") {
		t.Error("requested units not contained")
	}
	if s.Contains("BAYSW1") {
		t.Error("unrequested unit contained")
	}
	if !NewUnitSet([]string{"*"}).Contains("ANYTHING") {
		t.Error("wildcard set does not contain unit")
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, in := range []string{"2025/10/27 00:05:00", "2025-10-27 00:05:00", "2025/10/27 00:05", "2025-10-27T00:05:00"} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) error = %v", in, err)
			continue
		}
		if got.Format(models.TimestampLayout) != "2025-10-27 00:05:00" {
			t.Errorf("ParseTimestamp(%q) = %v", in, got)
		}
	}
}
