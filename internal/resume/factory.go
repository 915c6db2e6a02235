package resume

import (
	"fmt"
	"path/filepath"

	"github.com/stwalsh4118/marquee/internal/config"
)

// Supported storage backends
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// OpenStorage creates the storage backend named in cfg. Unknown backends fail.
func OpenStorage(cfg *config.ResumeConfig) (Storage, error) {
	switch cfg.Backend {
	case BackendNone:
		return NullStorage{}, nil
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendSQLite, "":
		if cfg.Path == "" {
			return NewMemoryStorage(), nil
		}
		return NewSQLStorage(cfg.Path)
	case BackendBadger:
		if cfg.Path == "" {
			return NewBadgerStorage("")
		}
		return NewBadgerStorage(filepath.Clean(cfg.Path))
	default:
		return nil, fmt.Errorf("unknown resume store backend: %s (supported: none, memory, sqlite, badger)", cfg.Backend)
	}
}

// Open creates a Store for cfg
func Open(cfg *config.ResumeConfig) (*Store, error) {
	storage, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(storage, cfg.Retention), nil
}
