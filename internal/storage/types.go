package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "file": dependency-free file backend (jsonl)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Trigger values for FeedEvent.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// FeedEvent records one dispense attempt.
// Keep it compact and schema-stable.
type FeedEvent struct {
	At      time.Time
	Trigger string // "scheduled" or "manual"
	OK      bool
	Error   string
	TookMS  int64
}
