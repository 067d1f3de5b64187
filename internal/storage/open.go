package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "feedbot/pkg/logx"
)

// Store is the minimal persistence API used by the feeder and report loop.
type Store interface {
	AppendFeed(ctx context.Context, e FeedEvent) error
	RecentFeeds(ctx context.Context, limit int) ([]FeedEvent, error)
	CountSince(ctx context.Context, since time.Time) (total, failed int, err error)
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

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
