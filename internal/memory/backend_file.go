package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend stores each document as <dir>/<name>.json. Saves write a
// temporary file in the same directory and rename it over the target so a
// reader never observes a partially written collection. Versions are
// tracked per process; run a single writer process per directory.
type FileBackend struct {
	dir      string
	mu       sync.Mutex
	versions map[string]int64
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{dir: dir, versions: make(map[string]int64)}, nil
}

func (b *FileBackend) path(name string) string {
	return filepath.Join(b.dir, name+".json")
}

func (b *FileBackend) Load(_ context.Context, name string) (Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := os.ReadFile(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Document{Version: b.versions[name]}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", name, err)
	}
	if b.versions[name] == 0 {
		b.versions[name] = 1
	}
	return Document{Data: data, Version: b.versions[name]}, nil
}

func (b *FileBackend) Save(_ context.Context, name string, data []byte, expected int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.versions[name]
	if cur == 0 {
		if _, err := os.Stat(b.path(name)); err == nil {
			cur = 1
		}
	}
	if cur != expected {
		return cur, ErrVersionConflict
	}

	tmp, err := os.CreateTemp(b.dir, name+".*.tmp")
	if err != nil {
		return cur, fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return cur, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return cur, fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return cur, fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, b.path(name)); err != nil {
		cleanup()
		return cur, fmt.Errorf("rename %s: %w", name, err)
	}

	b.versions[name] = cur + 1
	return cur + 1, nil
}

func (b *FileBackend) Close() error { return nil }
