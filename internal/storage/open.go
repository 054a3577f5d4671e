package storage

import (
	"context"
	"errors"
	"strings"

	"telekinesis/internal/pattern"
	logx "telekinesis/pkg/logx"
)

// Store is the persistence API used by the daemon.
type Store interface {
	pattern.Store

	AppendRun(ctx context.Context, r Run) error
	// RecentRuns returns up to limit runs, oldest first.
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	PutPattern(ctx context.Context, name string, kind pattern.Kind, pts []pattern.Point) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
