package memory

import (
	"context"
	"sync"
)

// Document is a persisted collection and the version it was read at.
// A missing document has nil Data and Version 0.
type Document struct {
	Data    []byte
	Version int64
}

// Backend persists named JSON documents with compare-and-swap saves.
type Backend interface {
	Load(ctx context.Context, name string) (Document, error)
	// Save stores data if the current version equals expected and returns
	// the new version. Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, name string, data []byte, expected int64) (int64, error)
	Close() error
}

// MemoryBackend keeps documents in process memory. Used for tests and
// ephemeral local runs.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]Document)}
}

func (b *MemoryBackend) Load(_ context.Context, name string) (Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	doc := b.docs[name]
	if doc.Data != nil {
		doc.Data = append([]byte(nil), doc.Data...)
	}
	return doc, nil
}

func (b *MemoryBackend) Save(_ context.Context, name string, data []byte, expected int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.docs[name]
	if cur.Version != expected {
		return cur.Version, ErrVersionConflict
	}
	next := Document{Data: append([]byte(nil), data...), Version: expected + 1}
	b.docs[name] = next
	return next.Version, nil
}

func (b *MemoryBackend) Close() error { return nil }
