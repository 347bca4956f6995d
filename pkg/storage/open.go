package storage

import (
	"fmt"
	"log/slog"

	"github.com/jllopis/slotsave/pkg/codec"
	"github.com/jllopis/slotsave/pkg/config"
	"github.com/jllopis/slotsave/pkg/resilience"
)

// CloseFunc releases resources held by a backend opened with Open.
type CloseFunc func() error

// Open builds the backend selected by cfg.Storage.Backend using the codec
// named by cfg.Save.Codec. When cfg.Storage.RetryAttempts is above one the
// backend is wrapped with WithRetry.
func Open(cfg *config.Config, logger *slog.Logger) (Storage, CloseFunc, error) {
	s, closeFn, err := open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.RetryAttempts > 1 {
		rc := resilience.DefaultRetryConfig().WithMaxAttempts(cfg.Storage.RetryAttempts)
		return WithRetry(s, rc), closeFn, nil
	}
	return s, closeFn, nil
}

func open(cfg *config.Config, logger *slog.Logger) (Storage, CloseFunc, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("storage: config is nil")
	}
	c, err := codec.ByName(cfg.Save.Codec)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Storage.Backend {
	case "", "file":
		fs, err := NewFileStorage(cfg.Save.Dir(), cfg.Save.Extension, c, WithFileLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return fs, func() error { return nil }, nil
	case "sqlite":
		db, err := OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: open sqlite %s: %w", cfg.Storage.SQLitePath, err)
		}
		sq, err := NewSQLiteStorage(db, c)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sq, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
}
