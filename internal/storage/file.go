package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "feedbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Events are appended to <prefix>.feeds.jsonl as JSON Lines. Queries scan
// the file; the feed history is small (a handful of events per day), so no
// index is kept.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	file *os.File
}

type feedRecord struct {
	At      string `json:"at"`
	Trigger string `json:"trigger"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	TookMS  int64  `json:"took_ms,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	feedsPath := filepath.Join(dir, base) + ".feeds.jsonl"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(feedsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: feedsPath, file: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendFeed(ctx context.Context, e FeedEvent) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("feeds file closed")
	}
	return json.NewEncoder(s.file).Encode(feedRecord{
		At:      e.At.UTC().Format(time.RFC3339Nano),
		Trigger: e.Trigger,
		OK:      e.OK,
		Error:   e.Error,
		TookMS:  e.TookMS,
	})
}

func (s *fileStore) RecentFeeds(ctx context.Context, limit int) ([]FeedEvent, error) {
	_ = ctx
	if limit <= 0 {
		limit = 10
	}
	all, err := s.scan()
	if err != nil {
		return nil, err
	}
	// Newest first.
	var out []FeedEvent
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *fileStore) CountSince(ctx context.Context, since time.Time) (int, int, error) {
	_ = ctx
	all, err := s.scan()
	if err != nil {
		return 0, 0, err
	}
	var total, failed int
	for _, e := range all {
		if e.At.Before(since) {
			continue
		}
		total++
		if !e.OK {
			failed++
		}
	}
	return total, failed, nil
}

func (s *fileStore) scan() ([]FeedEvent, error) {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []FeedEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r feedRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		e := FeedEvent{Trigger: r.Trigger, OK: r.OK, Error: r.Error, TookMS: r.TookMS}
		if t, perr := time.Parse(time.RFC3339Nano, r.At); perr == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
