// Package pgsink upserts stitched SCADA readings into Postgres.
package pgsink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dtnitsch/aemo-scada/pkg/stitcher"
)

const (
	DefaultSchema = "public"
	TableName     = "scada_readings"
	batchSize     = 1000
)

// Reading is one (unit, interval) cell of a stitched day. MW is nil for a
// missing value.
type Reading struct {
	DUID string
	TS   time.Time
	MW   *float64
}

// Readings flattens a table into rows in timestamp then column order.
func Readings(t *stitcher.Table) []Reading {
	out := make([]Reading, 0, len(t.Rows)*len(t.Units))
	for _, row := range t.Rows {
		for i, unit := range t.Units {
			out = append(out, Reading{DUID: unit, TS: row.Timestamp, MW: row.Values[i]})
		}
	}
	return out
}

type Sink struct {
	pool  *pgxpool.Pool
	table string // sanitized schema.table
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn, schema string) (*Sink, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &Sink{pool: pool, table: QualifiedTable(schema)}, nil
}

// QualifiedTable returns the quoted schema-qualified readings table.
func QualifiedTable(schema string) string {
	return pgx.Identifier{schema, TableName}.Sanitize()
}

func (s *Sink) Close() {
	s.pool.Close()
}

func createTableSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
    duid TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    mw DOUBLE PRECISION,
    source TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (duid, ts)
)`
}

func upsertSQL(table string) string {
	return `INSERT INTO ` + table + ` (duid, ts, mw, source, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (duid, ts) DO UPDATE
SET mw = EXCLUDED.mw,
    source = EXCLUDED.source,
    updated_at = NOW()`
}

// EnsureSchema creates the readings table if it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL(s.table)); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

// Upsert writes readings in batches; a later write for the same (duid, ts)
// replaces the earlier one. source names the CSV the readings came from.
func (s *Sink) Upsert(ctx context.Context, readings []Reading, source string) (int, error) {
	query := upsertSQL(s.table)
	written := 0
	for start := 0; start < len(readings); start += batchSize {
		end := min(start+batchSize, len(readings))
		chunk := readings[start:end]

		batch := &pgx.Batch{}
		for _, r := range chunk {
			batch.Queue(query, r.DUID, r.TS, r.MW, source)
		}

		res := s.pool.SendBatch(ctx, batch)
		for range chunk {
			if _, err := res.Exec(); err != nil {
				_ = res.Close()
				return written, fmt.Errorf("failed to upsert readings: %w", err)
			}
			written++
		}
		if err := res.Close(); err != nil {
			return written, fmt.Errorf("failed to close batch: %w", err)
		}
	}
	return written, nil
}
