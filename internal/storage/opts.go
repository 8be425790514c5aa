package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// ErrLocked is returned by Open when another process holds the database.
var ErrLocked = errors.New("database is locked by another process")

// dbOptions returns the options used for repository metadata. Writes are
// synced so a reported success survives a crash.
func dbOptions(path string) badger.Options {
	return badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil) // Disable logging noise
}

// Open opens (creating if needed) the metadata database at path. Badger holds
// a directory lock for as long as the database stays open.
func Open(path string) (*badger.DB, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := badger.Open(dbOptions(path))
	if err != nil {
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, fmt.Errorf("opening database: %w: %v", ErrLocked, err)
		}
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}

// OpenInMemory opens a throwaway database, used by tests.
func OpenInMemory() (*badger.DB, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithDir("").
		WithValueDir("").
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	return db, nil
}
