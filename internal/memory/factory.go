package memory

import (
	"context"
	"fmt"
	"strings"
)

// BackendOptions selects and configures the persistence backend.
type BackendOptions struct {
	Kind        string // auto, memory, file, sqlite, postgres
	DataDir     string
	SQLitePath  string
	DatabaseURL string
}

// NewBackend creates the configured backend. In auto mode postgres wins when
// a database URL is set, then sqlite, then JSON files.
func NewBackend(ctx context.Context, opts BackendOptions) (Backend, string, error) {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	if kind == "" || kind == "auto" {
		switch {
		case strings.TrimSpace(opts.DatabaseURL) != "":
			kind = "postgres"
		case strings.TrimSpace(opts.SQLitePath) != "":
			kind = "sqlite"
		default:
			kind = "file"
		}
	}

	switch kind {
	case "memory":
		return NewMemoryBackend(), kind, nil
	case "file":
		b, err := NewFileBackend(opts.DataDir)
		if err != nil {
			return nil, kind, err
		}
		return b, kind, nil
	case "sqlite":
		if strings.TrimSpace(opts.SQLitePath) == "" {
			return nil, kind, fmt.Errorf("sqlite backend requires a database path")
		}
		b, err := NewSQLiteBackend(ctx, opts.SQLitePath)
		if err != nil {
			return nil, kind, err
		}
		return b, kind, nil
	case "postgres":
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, kind, fmt.Errorf("postgres backend requires a database url")
		}
		b, err := NewPostgresBackend(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, kind, err
		}
		return b, kind, nil
	default:
		return nil, kind, fmt.Errorf("unsupported store backend %q", opts.Kind)
	}
}
