// Package mmstest builds synthetic MMS SCADA archives for tests.
package mmstest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
)

// Reading is one D row of DISPATCH,UNIT_SCADA.
type Reading struct {
	Timestamp string // "2025/10/27 00:05:00"
	DUID      string
	Value     string
}

// CSV renders readings in the MMS layout published by the SCADA feed.
func CSV(readings ...Reading) string {
	var sb strings.Builder
	sb.WriteString("C,NEMP.WORLD,DISPATCHSCADA,AEMO,PUBLIC,2025/10/27,00:00:14,0000000487654321,DISPATCHSCADA,0000000487654320\n")
	sb.WriteString("I,DISPATCH,UNIT_SCADA,1,SETTLEMENTDATE,DUID,SCADAVALUE,LASTCHANGED\n")
	for _, r := range readings {
		fmt.Fprintf(&sb, "D,DISPATCH,UNIT_SCADA,1,\"%s\",%s,%s,\"%s\"\n", r.Timestamp, r.DUID, r.Value, r.Timestamp)
	}
	fmt.Fprintf(&sb, "C,\"END OF REPORT\",%d\n", len(readings)+4)
	return sb.String()
}

// Zip wraps a CSV body in a single-member archive.
func Zip(t testing.TB, member, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(member)
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// Archive builds the zip for an archive name, naming the member like the feed does.
func Archive(t testing.TB, archiveName string, readings ...Reading) []byte {
	t.Helper()
	member := strings.TrimSuffix(archiveName, ".zip") + ".CSV"
	return Zip(t, member, CSV(readings...))
}

// WriteArchive writes Archive output to path.
func WriteArchive(t testing.TB, path, archiveName string, readings ...Reading) {
	t.Helper()
	if err := os.WriteFile(path, Archive(t, archiveName, readings...), 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

// Member is one entry of a Bundle.
type Member struct {
	Name string
	Body []byte
}

// Bundle wraps interval archives in a daily archive, in the given order.
func Bundle(t testing.TB, members ...Member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.Name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write(m.Body); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
