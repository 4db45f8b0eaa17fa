package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const maxSaveAttempts = 3

// collection serializes the read-modify-write cycle of one persisted
// document. The mutex covers concurrent turns in this process; the backend
// version check covers other writers sharing the same backend.
type collection[T any] struct {
	name      string
	backend   Backend
	logger    *zap.Logger
	mu        sync.Mutex
	onRecover func(collection string)
}

func newCollection[T any](name string, backend Backend, logger *zap.Logger) *collection[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &collection[T]{name: name, backend: backend, logger: logger}
}

// load reads and decodes the document. Undecodable data is reported and
// treated as an empty collection at the stored version, so the next save
// replaces it.
func (c *collection[T]) load(ctx context.Context) (T, int64, error) {
	var value T
	doc, err := c.backend.Load(ctx, c.name)
	if err != nil {
		return value, 0, &StorageError{Collection: c.name, Op: "load", Err: err}
	}
	if len(doc.Data) == 0 {
		return value, doc.Version, nil
	}
	if err := json.Unmarshal(doc.Data, &value); err != nil {
		c.recovered(&StorageError{Collection: c.name, Op: "decode", Err: err})
		var empty T
		return empty, doc.Version, nil
	}
	return value, doc.Version, nil
}

// snapshot returns the current value. Backend failures degrade to the empty
// collection with a warning.
func (c *collection[T]) snapshot(ctx context.Context) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, _, err := c.load(ctx)
	if err != nil {
		c.recovered(err)
	}
	return value
}

// update applies fn to the current value and saves it when fn reports a
// change. Conflicting concurrent writers cause a reload and retry.
func (c *collection[T]) update(ctx context.Context, fn func(*T) (bool, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 1; ; attempt++ {
		value, version, err := c.load(ctx)
		if err != nil {
			return err
		}
		changed, err := fn(&value)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return &StorageError{Collection: c.name, Op: "encode", Err: err}
		}
		_, err = c.backend.Save(ctx, c.name, data, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= maxSaveAttempts {
			return &StorageError{Collection: c.name, Op: "save", Err: err}
		}
		c.logger.Debug("collection changed concurrently, retrying",
			zap.String("collection", c.name),
			zap.Int("attempt", attempt))
	}
}

func (c *collection[T]) recovered(err error) {
	c.logger.Warn("persisted collection unreadable, using empty collection",
		zap.String("collection", c.name),
		zap.Error(err))
	if c.onRecover != nil {
		c.onRecover(c.name)
	}
}
