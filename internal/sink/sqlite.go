// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuGH/nlbridge/internal/netlogo"
	"github.com/ManuGH/nlbridge/internal/persistence/sqlite"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS singles (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	collection  TEXT NOT NULL,
	body        TEXT NOT NULL,
	exported_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	time_stamp     TEXT PRIMARY KEY,
	per_run_labels TEXT NOT NULL,
	per_run_values TEXT NOT NULL,
	tick_labels    TEXT NOT NULL,
	exported_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ticks (
	time_stamp TEXT NOT NULL REFERENCES runs(time_stamp) ON DELETE CASCADE,
	tick       INTEGER NOT NULL,
	vals       TEXT NOT NULL,
	PRIMARY KEY (time_stamp, tick)
);
CREATE TABLE IF NOT EXISTS actions (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	line    TEXT NOT NULL,
	at      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS table_opens (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL
);`

// SQLite stores runs as rows: one row per run, one row per tick.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens and migrates the run database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(db, sqliteSchemaVersion, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sink: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func mustJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func (s *SQLite) ExportData(ctx context.Context, data map[string]any) error {
	body, err := mustJSON(data)
	if err != nil {
		return fmt.Errorf("sink: encode record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO singles (collection, body, exported_at) VALUES (?, ?, ?)`,
		fmt.Sprint(data["collection_name"]), body, s.now().Unix())
	if err != nil {
		return fmt.Errorf("sink: insert record: %w", err)
	}
	return nil
}

func (s *SQLite) ExportRun(ctx context.Context, run netlogo.Run) error {
	labels, err := mustJSON(run.PerRunLabels)
	if err != nil {
		return err
	}
	values, err := mustJSON(run.PerRunValues)
	if err != nil {
		return err
	}
	tickLabels, err := mustJSON(run.PerTickLabels)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (time_stamp, per_run_labels, per_run_values, tick_labels, exported_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.TimeStamp, labels, values, tickLabels, s.now().Unix()); err != nil {
		return fmt.Errorf("sink: insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ticks WHERE time_stamp = ?`, run.TimeStamp); err != nil {
		return fmt.Errorf("sink: reset ticks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ticks (time_stamp, tick, vals) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sink: prepare ticks: %w", err)
	}
	defer stmt.Close()
	for i, row := range run.PerTickValues {
		vals, err := mustJSON(row)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, run.TimeStamp, i, vals); err != nil {
			return fmt.Errorf("sink: insert tick %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) OpenTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO table_opens (at) VALUES (?)`, s.now().Unix())
	return err
}

func (s *SQLite) LogAction(ctx context.Context, line string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO actions (line, at) VALUES (?, ?)`, line, s.now().Unix())
	return err
}

// RunCount returns the number of stored runs.
func (s *SQLite) RunCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error { return s.db.Close() }
