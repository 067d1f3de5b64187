package schedule

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	logx "feedbot/pkg/logx"
)

// Store persists the schedule as a JSON array of "HH:MM" strings.
// Single-process, single-writer; no locking needed.
type Store struct {
	path string
	log  logx.Logger
}

func NewStore(path string, log logx.Logger) *Store {
	if path == "" {
		path = "./schedule.json"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, log: log}
}

// Load reads the persisted schedule. An absent or unparsable file degrades
// to the built-in default; Load never fails.
func (s *Store) Load() []string {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("schedule load failed; using default", logx.String("path", s.path), logx.Err(err))
		}
		return Default()
	}

	var times []string
	if err := json.Unmarshal(b, &times); err != nil {
		s.log.Warn("schedule file unparsable; using default", logx.String("path", s.path), logx.Err(err))
		return Default()
	}

	// Drop anything that is not a strict HH:MM entry; keep the rest sorted
	// and duplicate-free so the in-memory invariants hold even for files
	// edited by hand.
	out := make([]string, 0, len(times))
	seen := make(map[string]struct{}, len(times))
	for _, t := range times {
		if !Valid(t) {
			s.log.Warn("ignoring invalid schedule entry", logx.String("entry", t))
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Save writes the schedule atomically (tmp + rename). Best-effort: failure
// is logged and returned, but callers treat it as non-fatal.
func (s *Store) Save(times []string) error {
	b, err := json.Marshal(times)
	if err != nil {
		s.log.Warn("schedule save failed", logx.Err(err))
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Warn("schedule save failed", logx.String("path", s.path), logx.Err(err))
			return err
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		s.log.Warn("schedule save failed", logx.String("path", s.path), logx.Err(err))
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Warn("schedule save failed", logx.String("path", s.path), logx.Err(err))
		return err
	}
	return nil
}
