package recordstore

import (
	"fmt"
	"strings"

	"github.com/modshield/modshield/util/cliutil"
)

// Opens a store from a URL-ish configuration string:
//
//	memory://
//	redis://host:6379/0 (or rediss://)
//	bolt:///path/to/file.db
//	pebble:///path/to/dir
//	sqlite://path/to/file.db, postgres://...
//
// Callers should close the returned store if it implements io.Closer.
func Open(storeURL string, maxConnections int) (RecordStore, error) {
	switch {
	case storeURL == "" || strings.HasPrefix(storeURL, "memory://"):
		return NewMemStore(), nil
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		s, err := NewRedisStore(storeURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis record store: %w", err)
		}
		return s, nil
	case strings.HasPrefix(storeURL, "bolt://"):
		s, err := NewBoltStore(storeURL[len("bolt://"):])
		if err != nil {
			return nil, fmt.Errorf("initializing bolt record store: %w", err)
		}
		return s, nil
	case strings.HasPrefix(storeURL, "pebble://"):
		s, err := NewPebbleStore(storeURL[len("pebble://"):])
		if err != nil {
			return nil, fmt.Errorf("initializing pebble record store: %w", err)
		}
		return s, nil
	default:
		db, err := cliutil.SetupDatabase(storeURL, maxConnections)
		if err != nil {
			return nil, err
		}
		s, err := NewSQLStore(db)
		if err != nil {
			return nil, fmt.Errorf("initializing sql record store: %w", err)
		}
		return s, nil
	}
}
