package storage

// Package storage persists the feed history.
//
// It currently supports:
//   - Feed event appends (scheduled and manual dispenses)
//   - Recent-event and count-since queries for /history and the daily report
