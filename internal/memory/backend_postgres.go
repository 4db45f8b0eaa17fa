package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend persists documents as JSONB rows in PostgreSQL. Saves are a
// compare-and-swap on the version column, so several replicas can share one
// database without losing updates.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresBackend{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_documents (
			name TEXT PRIMARY KEY,
			version BIGINT NOT NULL,
			body JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context, name string) (Document, error) {
	var (
		body    string
		version int64
	)
	err := b.pool.QueryRow(ctx,
		`SELECT body::text, version FROM memory_documents WHERE name=$1`, name,
	).Scan(&body, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("load %s: %w", name, err)
	}
	return Document{Data: []byte(body), Version: version}, nil
}

func (b *PostgresBackend) Save(ctx context.Context, name string, data []byte, expected int64) (int64, error) {
	var query string
	args := []any{name, string(data)}
	if expected == 0 {
		query = `INSERT INTO memory_documents (name, version, body) VALUES ($1, 1, $2::jsonb)
			 ON CONFLICT (name) DO NOTHING`
	} else {
		query = `UPDATE memory_documents SET body=$2::jsonb, version=version+1, updated_at=now()
			 WHERE name=$1 AND version=$3`
		args = append(args, expected)
	}

	tag, err := b.pool.Exec(ctx, query, args...)
	if err != nil {
		return expected, fmt.Errorf("save %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return expected, ErrVersionConflict
	}
	return expected + 1, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
