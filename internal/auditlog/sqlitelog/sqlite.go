// Package sqlitelog is the SQLite audit log backend.
package sqlitelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/magpie/internal/auditlog"
	"github.com/FranksOps/magpie/internal/status"
)

// ensure sqliteStore implements auditlog.Store
var _ auditlog.Store = (*sqliteStore)(nil)

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sku TEXT NOT NULL,
	name TEXT,
	score REAL,
	url TEXT,
	file TEXT,
	status TEXT NOT NULL,
	run_id TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_sku ON audit_log (sku, id);
`

// New creates a SQLite-backed auditlog.Store.
func New(dsn string) (auditlog.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite audit log: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating audit log schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Append(ctx context.Context, entry *auditlog.Entry) error {
	query := `
	INSERT INTO audit_log (sku, name, score, url, file, status, run_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.SKU,
		entry.Name,
		entry.Score,
		entry.URL,
		entry.File,
		string(entry.Status),
		entry.RunID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("appending entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) Blocked(ctx context.Context, sku string, policy auditlog.ResumePolicy) (bool, error) {
	query := `SELECT status FROM audit_log WHERE sku = ? ORDER BY id DESC LIMIT 1`

	var st string
	err := s.db.QueryRowContext(ctx, query, sku).Scan(&st)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying audit log: %w", err)
	}
	return policy.Blocks(status.Status(st)), nil
}

func (s *sqliteStore) Entries(ctx context.Context) ([]*auditlog.Entry, error) {
	query := `SELECT sku, name, score, url, file, status, run_id, created_at FROM audit_log ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*auditlog.Entry
	for rows.Next() {
		var (
			e         auditlog.Entry
			st        string
			createdAt string
		)
		if err := rows.Scan(&e.SKU, &e.Name, &e.Score, &e.URL, &e.File, &st, &e.RunID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Status = status.Status(st)
		if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			e.Timestamp = ts
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	return entries, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
