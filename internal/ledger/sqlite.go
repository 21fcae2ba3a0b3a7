// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ManuGH/nlbridge/internal/persistence/sqlite"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS exported_runs (
	namespace   TEXT NOT NULL,
	time_stamp  TEXT NOT NULL,
	exported_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	PRIMARY KEY (namespace, time_stamp)
);`

// SQLite persists the ledger in a SQLite table keyed by namespace.
type SQLite struct {
	db *sql.DB
	ns string
}

// OpenSQLite opens (and migrates) the ledger database at path.
func OpenSQLite(path, namespace string) (*SQLite, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(db, sqliteSchemaVersion, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &SQLite{db: db, ns: namespace}, nil
}

func (s *SQLite) Has(ctx context.Context, ts string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM exported_runs WHERE namespace = ? AND time_stamp = ?`, s.ns, ts).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: sqlite lookup: %w", err)
	}
	return true, nil
}

func (s *SQLite) Add(ctx context.Context, ts string) error {
	if ts == "" {
		return ErrEmptyTimestamp
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO exported_runs (namespace, time_stamp) VALUES (?, ?)`, s.ns, ts)
	if err != nil {
		return fmt.Errorf("ledger: sqlite insert: %w", err)
	}
	return nil
}

func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exported_runs WHERE namespace = ?`, s.ns).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger: sqlite count: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
