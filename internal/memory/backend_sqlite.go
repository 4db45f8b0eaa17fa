package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend stores documents in an embedded SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer; database/sql serializes callers on the one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS memory_documents (
		name TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		body TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Load(ctx context.Context, name string) (Document, error) {
	var (
		body    string
		version int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT body, version FROM memory_documents WHERE name = ?`, name,
	).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("load %s: %w", name, err)
	}
	return Document{Data: []byte(body), Version: version}, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, name string, data []byte, expected int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var (
		res sql.Result
		err error
	)
	if expected == 0 {
		res, err = b.db.ExecContext(ctx,
			`INSERT INTO memory_documents (name, version, body, updated_at) VALUES (?, 1, ?, ?)
			 ON CONFLICT(name) DO NOTHING`,
			name, string(data), now,
		)
	} else {
		res, err = b.db.ExecContext(ctx,
			`UPDATE memory_documents SET body = ?, version = version + 1, updated_at = ?
			 WHERE name = ? AND version = ?`,
			string(data), now, name, expected,
		)
	}
	if err != nil {
		return expected, fmt.Errorf("save %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return expected, fmt.Errorf("save %s: %w", name, err)
	}
	if n == 0 {
		return expected, ErrVersionConflict
	}
	return expected + 1, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
