package manifest

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/aemo-scada/pkg/extractor"
	"github.com/dtnitsch/aemo-scada/pkg/mapreduce"
	"github.com/dtnitsch/aemo-scada/pkg/storage"
)

const FileName = "manifest.yaml"

// ArchiveResult is what the pipeline knows about one processed archive.
type ArchiveResult struct {
	Name       string
	URL        string
	FilePath   string
	Skipped    bool
	Attempts   int
	SizeBytes  int64 // from the download; zero means stat the file
	SHA256     string
	Stats      extractor.Stats
	UnitCounts map[string]int
}

// Header carries the run-level fields of a manifest.
type Header struct {
	RunID       string
	TradingDate string
	Units       []string
	ListingURL  string
	OutputPath  string
	OutputRows  int
}

// Build assembles a DayManifest from per-archive results.
func Build(h Header, results []ArchiveResult, s *storage.Storage) DayManifest {
	m := DayManifest{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		RunID:       h.RunID,
		TradingDate: h.TradingDate,
		Units:       h.Units,
		ListingURL:  h.ListingURL,
		OutputPath:  h.OutputPath,
		OutputRows:  h.OutputRows,
	}

	counts := make([]map[string]int, 0, len(results))
	for _, r := range results {
		entry := ArchiveEntry{
			Name:      r.Name,
			URL:       r.URL,
			LocalPath: r.FilePath,
			Skipped:   r.Skipped,
			Attempts:  r.Attempts,
			SizeBytes: r.SizeBytes,
			SHA256:    r.SHA256,
			Records:   r.Stats,
		}
		if entry.SizeBytes == 0 && r.FilePath != "" {
			if stats, err := s.GetFileStats(r.FilePath); err == nil {
				entry.SizeBytes = stats.SizeBytes
			}
		}
		m.Totals.Add(r.Stats)
		if r.UnitCounts != nil {
			counts = append(counts, r.UnitCounts)
		}
		m.Archives = append(m.Archives, entry)
	}
	m.TopUnits = mapreduce.TopUnits(mapreduce.Reduce(counts), 10)
	return m
}

// Write saves the manifest as YAML into dir and returns its path.
func Write(dir string, m DayManifest, s *storage.Storage) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("error marshalling manifest: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := s.SaveFile(path, data); err != nil {
		return "", fmt.Errorf("error saving manifest: %w", err)
	}
	return path, nil
}

// Read loads a manifest written by Write.
func Read(path string, s *storage.Storage) (*DayManifest, error) {
	data, err := s.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m DayManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}
	return &m, nil
}
