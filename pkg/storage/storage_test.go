package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveFile(t *testing.T) {
	s := &Storage{}
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	if err := s.SaveFile(path, []byte("timestamp,CLUNY\n")); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	got, err := s.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "timestamp,CLUNY\n" {
		t.Errorf("content = %q, want %q", got, "timestamp,CLUNY\n")
	}
	if !s.HasFile(path) {
		t.Error("HasFile() = false after SaveFile")
	}

	stats, err := s.GetFileStats(path)
	if err != nil {
		t.Fatalf("GetFileStats() error = %v", err)
	}
	if stats.SizeBytes != int64(len("timestamp,CLUNY\n")) {
		t.Errorf("SizeBytes = %d, want %d", stats.SizeBytes, len("timestamp,CLUNY\n"))
	}
}

func TestWriteAtomic_FailureLeavesNothing(t *testing.T) {
	s := &Storage{}
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.zip")

	boom := errors.New("connection reset")
	err := s.WriteAtomic(path, func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteAtomic() error = %v, want %v", err, boom)
	}
	if s.HasFile(path) {
		t.Error("destination exists after failed write")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory has %d leftover entries, want 0", len(entries))
	}
}

func TestHasFile_Directory(t *testing.T) {
	s := &Storage{}
	if s.HasFile(t.TempDir()) {
		t.Error("HasFile() = true for a directory")
	}
	if s.HasFile(filepath.Join(t.TempDir(), "missing")) {
		t.Error("HasFile() = true for a missing path")
	}
}
