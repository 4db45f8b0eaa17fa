package memory

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is returned by Backend.Save when the stored document
// changed since it was loaded.
var ErrVersionConflict = errors.New("document version conflict")

// StorageError reports an unreadable or unwritable persisted collection.
type StorageError struct {
	Collection string
	Op         string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
