package help

const ColdstartYAML = `# aemo-scada Quick Start

inputs:
  listing: "https://www.nemweb.com.au/REPORTS/CURRENT/Dispatch_SCADA/ (override with --listing-url or AEMO_LISTING_URL)"
  archive: "https://www.nemweb.com.au/REPORTS/ARCHIVE/Dispatch_SCADA/ daily bundles (override with --archive-url or AEMO_ARCHIVE_URL)"
  archives: "PUBLIC_DISPATCHSCADA_<YYYYMMDD><HHMM>_<version>.zip, one per 5-minute interval"
  bundles: "PUBLIC_DISPATCHSCADA_<YYYYMMDD>.zip, one per day, nesting the interval archives"
  source: "--source auto tries the daily bundle, then the current listing; archive or current pins one"
  units: "Comma-separated DUIDs (case-insensitive), or * for every unit"

commands:
  fetch_day: |
    aemo-scada fetch --date 2025-10-27 --units CLUNY,AGLSOM

  fetch_all_units: |
    aemo-scada fetch --date 2025-10-27 --units '*' --workers 4

  fetch_yaml_summary: |
    aemo-scada fetch --date 2025-10-27 --units CLUNY --format yaml

  stitch_local_folder: |
    aemo-scada stitch --zips ./zips --units CLUNY,AGLSOM --out cluny_aglsom.csv

  inspect_units: |
    aemo-scada inspect --zips data/aemo/archives/20251027 --top 20

  daily_report: |
    aemo-scada report --data-dir data/aemo --outdir data/reports

  dashboard_api: |
    aemo-scada serve --data-dir data/aemo --addr :8080

  list_runs: |
    aemo-scada runs --limit 20

  run_details: |
    aemo-scada runs show <run-id>

key_files:
  - "data/aemo/aemo_<date>_<UNITS>_5min.csv (one row per interval, one column per unit)"
  - "data/aemo/archives/<YYYYMMDD>/*.zip (downloaded archives, reused on rerun)"
  - "data/aemo/archives/<YYYYMMDD>/manifest.yaml (archives, hashes and row counts)"
  - "data/aemo/aemo-scada.db (run ledger, SQLite)"
  - "data/reports/report_<date>.yaml|json (per-unit KPIs)"

csv_contract:
  - "Header: timestamp,<UNIT>,<UNIT>... in the order given to --units"
  - "Timestamps: YYYY-MM-DD HH:MM:SS, NEM time (UTC+10, no daylight saving)"
  - "Rows ascending, one per distinct interval"
  - "Empty cell = no reading for that unit and interval"
  - "Header-only file when no requested unit reported that day"

environment:
  AEMO_DATA_DIR: "--outdir"
  AEMO_CACHE_DIR: "--cache-dir"
  AEMO_LISTING_URL: "--listing-url"
  AEMO_ARCHIVE_URL: "--archive-url"
  AEMO_REPORT_PREFIX: "--report-prefix"
  AEMO_DB_PATH: "--db-path (off disables the ledger)"
  PG_DSN: "--pg-dsn (optional Postgres upsert)"
  PORT: "serve listen port"

error_behavior:
  - "Downloads retry with backoff (--attempts, --backoff-base, --backoff-cap)"
  - "Any failed download aborts the run; finished downloads are kept"
  - "Malformed rows are dropped and counted (stats.malformed_rows)"
  - "Exit codes: 0=success, 1=bad arguments, 2=other failure, 3=no archives, 4=download failed, 5=day locked"
`
