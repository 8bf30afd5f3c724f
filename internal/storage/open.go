package storage

import (
	"context"
	"fmt"
	"strings"

	logx "woonbot/pkg/logx"
)

type Store interface {
	RecordApplication(ctx context.Context, a Application) error
	// HasApplied reports whether a successful, non dry-run application for
	// the listing exists.
	HasApplied(ctx context.Context, listingID string) (bool, error)
	// RecentApplications returns the newest applications first.
	RecentApplications(ctx context.Context, limit int) ([]Application, error)
	AppendRun(ctx context.Context, r Run) error
	SavePrefs(ctx context.Context, p Prefs) error
	// LoadPrefs returns zero Prefs and no error when nothing was saved.
	LoadPrefs(ctx context.Context) (Prefs, error)
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when
// storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
