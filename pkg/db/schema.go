package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

-- One row per fetch/stitch run
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,          -- uuid
    command TEXT NOT NULL,            -- fetch, stitch
    trading_date TEXT NOT NULL,       -- YYYY-MM-DD
    units TEXT NOT NULL,              -- comma separated DUIDs, or *
    source TEXT,                      -- listing URL or local archive dir
    status TEXT NOT NULL DEFAULT 'running', -- running, success, failed

    archive_count INTEGER DEFAULT 0,
    downloaded_count INTEGER DEFAULT 0,
    skipped_count INTEGER DEFAULT 0,
    data_rows INTEGER DEFAULT 0,
    matched_rows INTEGER DEFAULT 0,
    malformed_rows INTEGER DEFAULT 0,
    missing_values INTEGER DEFAULT 0,
    output_rows INTEGER DEFAULT 0,
    output_path TEXT,

    error_type TEXT,
    error_message TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_date ON runs(trading_date);

-- Archives processed by a run, in processing order
CREATE TABLE IF NOT EXISTS run_archives (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT,
    local_path TEXT,
    skipped BOOLEAN DEFAULT 0,
    attempts INTEGER DEFAULT 0,
    size_bytes INTEGER DEFAULT 0,
    sha256 TEXT,
    data_rows INTEGER DEFAULT 0,
    matched_rows INTEGER DEFAULT 0,
    malformed_rows INTEGER DEFAULT 0,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_run_archives_run ON run_archives(run_id);
`
