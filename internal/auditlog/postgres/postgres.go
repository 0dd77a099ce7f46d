// Package postgres is the Postgres audit log backend, for catalogs
// shared between machines.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/magpie/internal/auditlog"
	"github.com/FranksOps/magpie/internal/status"
)

// ensure postgresStore implements auditlog.Store
var _ auditlog.Store = (*postgresStore)(nil)

type postgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	sku TEXT NOT NULL,
	name TEXT,
	score DOUBLE PRECISION,
	url TEXT,
	file TEXT,
	status TEXT NOT NULL,
	run_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_sku ON audit_log (sku, id);
`

// New creates a Postgres-backed auditlog.Store.
func New(ctx context.Context, dsn string) (auditlog.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating audit log schema: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) Append(ctx context.Context, entry *auditlog.Entry) error {
	query := `
	INSERT INTO audit_log (sku, name, score, url, file, status, run_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		entry.SKU,
		entry.Name,
		entry.Score,
		entry.URL,
		entry.File,
		string(entry.Status),
		entry.RunID,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending entry: %w", err)
	}
	return nil
}

func (s *postgresStore) Blocked(ctx context.Context, sku string, policy auditlog.ResumePolicy) (bool, error) {
	query := `SELECT status FROM audit_log WHERE sku = $1 ORDER BY id DESC LIMIT 1`

	var st string
	err := s.pool.QueryRow(ctx, query, sku).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying audit log: %w", err)
	}
	return policy.Blocks(status.Status(st)), nil
}

func (s *postgresStore) Entries(ctx context.Context) ([]*auditlog.Entry, error) {
	query := `SELECT sku, name, score, url, file, status, run_id, created_at FROM audit_log ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*auditlog.Entry
	for rows.Next() {
		var (
			e  auditlog.Entry
			st string
		)
		if err := rows.Scan(&e.SKU, &e.Name, &e.Score, &e.URL, &e.File, &st, &e.RunID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Status = status.Status(st)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	return entries, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
