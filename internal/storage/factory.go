package storage

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedStore = errors.New("unsupported store backend")

// NewStore opens the backend named by kind. Kind matching ignores case and
// surrounding space; an empty kind selects the memory store.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if sqlitePath == "" {
			return nil, fmt.Errorf("sqlite store needs a database path")
		}
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStore, kind)
	}
}

// CloseIfSupported closes stores that hold resources and ignores the rest.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
