package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one ledger row.
type Run struct {
	RunID           string    `yaml:"run_id" json:"run_id"`
	Command         string    `yaml:"command" json:"command"`
	TradingDate     string    `yaml:"trading_date" json:"trading_date"`
	Units           []string  `yaml:"units" json:"units"`
	Source          string    `yaml:"source" json:"source"`
	Status          string    `yaml:"status" json:"status"`
	ArchiveCount    int       `yaml:"archive_count" json:"archive_count"`
	DownloadedCount int       `yaml:"downloaded_count" json:"downloaded_count"`
	SkippedCount    int       `yaml:"skipped_count" json:"skipped_count"`
	DataRows        int       `yaml:"data_rows" json:"data_rows"`
	MatchedRows     int       `yaml:"matched_rows" json:"matched_rows"`
	MalformedRows   int       `yaml:"malformed_rows" json:"malformed_rows"`
	MissingValues   int       `yaml:"missing_values" json:"missing_values"`
	OutputRows      int       `yaml:"output_rows" json:"output_rows"`
	OutputPath      string    `yaml:"output_path,omitempty" json:"output_path,omitempty"`
	ErrorType       string    `yaml:"error_type,omitempty" json:"error_type,omitempty"`
	ErrorMessage    string    `yaml:"error_message,omitempty" json:"error_message,omitempty"`
	StartedAt       time.Time `yaml:"started_at" json:"started_at"`
	FinishedAt      time.Time `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`

	Archives []ArchiveRecord `yaml:"archives,omitempty" json:"archives,omitempty"`
}

// ArchiveRecord is one archive used by a run.
type ArchiveRecord struct {
	Name          string `yaml:"name" json:"name"`
	URL           string `yaml:"url,omitempty" json:"url,omitempty"`
	LocalPath     string `yaml:"local_path" json:"local_path"`
	Skipped       bool   `yaml:"skipped" json:"skipped"`
	Attempts      int    `yaml:"attempts" json:"attempts"`
	SizeBytes     int64  `yaml:"size_bytes" json:"size_bytes"`
	SHA256        string `yaml:"sha256,omitempty" json:"sha256,omitempty"`
	DataRows      int    `yaml:"data_rows" json:"data_rows"`
	MatchedRows   int    `yaml:"matched_rows" json:"matched_rows"`
	MalformedRows int    `yaml:"malformed_rows" json:"malformed_rows"`
}

// RunResult holds the fields set when a run finishes.
type RunResult struct {
	Status          string
	ArchiveCount    int
	DownloadedCount int
	SkippedCount    int
	DataRows        int
	MatchedRows     int
	MalformedRows   int
	MissingValues   int
	OutputRows      int
	OutputPath      string
	ErrorType       string
	ErrorMessage    string
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StartRun inserts a running row and returns its new run ID.
func (db *DB) StartRun(command, tradingDate string, units []string, source string) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO runs (run_id, command, trading_date, units, source, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, command, tradingDate, strings.Join(units, ","), source, StatusRunning, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return runID, nil
}

// RecordArchive appends an archive to a run.
func (db *DB) RecordArchive(runID string, a ArchiveRecord) error {
	_, err := db.Exec(`
		INSERT INTO run_archives (run_id, name, url, local_path, skipped, attempts, size_bytes, sha256,
		                          data_rows, matched_rows, malformed_rows)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, a.Name, a.URL, a.LocalPath, a.Skipped, a.Attempts, a.SizeBytes, a.SHA256,
		a.DataRows, a.MatchedRows, a.MalformedRows)
	if err != nil {
		return fmt.Errorf("failed to record archive: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (db *DB) FinishRun(runID string, r RunResult) error {
	res, err := db.Exec(`
		UPDATE runs
		SET status = ?, archive_count = ?, downloaded_count = ?, skipped_count = ?,
		    data_rows = ?, matched_rows = ?, malformed_rows = ?, missing_values = ?,
		    output_rows = ?, output_path = ?, error_type = ?, error_message = ?, finished_at = ?
		WHERE run_id = ?
	`, r.Status, r.ArchiveCount, r.DownloadedCount, r.SkippedCount,
		r.DataRows, r.MatchedRows, r.MalformedRows, r.MissingValues,
		r.OutputRows, r.OutputPath, r.ErrorType, r.ErrorMessage, formatTime(time.Now()), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `
	run_id, command, trading_date, units, source, status,
	archive_count, downloaded_count, skipped_count, data_rows, matched_rows,
	malformed_rows, missing_values, output_rows, output_path,
	error_type, error_message, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var (
		r                                            Run
		units                                        string
		source, outputPath, errType, errMsg, started sql.NullString
		finished                                     sql.NullString
	)
	err := s.Scan(&r.RunID, &r.Command, &r.TradingDate, &units, &source, &r.Status,
		&r.ArchiveCount, &r.DownloadedCount, &r.SkippedCount, &r.DataRows, &r.MatchedRows,
		&r.MalformedRows, &r.MissingValues, &r.OutputRows, &outputPath,
		&errType, &errMsg, &started, &finished)
	if err != nil {
		return Run{}, err
	}
	if units != "" {
		r.Units = strings.Split(units, ",")
	}
	r.Source = source.String
	r.OutputPath = outputPath.String
	r.ErrorType = errType.String
	r.ErrorMessage = errMsg.String
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its archives.
func (db *DB) GetRun(runID string) (*Run, error) {
	r, err := scanRun(db.QueryRow("SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	r.Archives, err = db.GetRunArchives(runID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRunArchives returns a run's archives in the order they were recorded.
func (db *DB) GetRunArchives(runID string) ([]ArchiveRecord, error) {
	rows, err := db.Query(`
		SELECT name, url, local_path, skipped, attempts, size_bytes, sha256,
		       data_rows, matched_rows, malformed_rows
		FROM run_archives
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run archives: %w", err)
	}
	defer rows.Close()

	var archives []ArchiveRecord
	for rows.Next() {
		var (
			a                    ArchiveRecord
			url, localPath, hash sql.NullString
		)
		if err := rows.Scan(&a.Name, &url, &localPath, &a.Skipped, &a.Attempts, &a.SizeBytes, &hash,
			&a.DataRows, &a.MatchedRows, &a.MalformedRows); err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		a.URL = url.String
		a.LocalPath = localPath.String
		a.SHA256 = hash.String
		archives = append(archives, a)
	}
	return archives, rows.Err()
}
