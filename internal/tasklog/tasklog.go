// Package tasklog opens one append-only log stream per task id.
//
// Every task has its own log stream keyed by task id; this mirrors
// internal/logger's process-wide handler construction but scoped to a single
// file per task instead of one shared destination.
package tasklog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store lazily opens and caches one *slog.Logger per task id, each backed by
// its own append-only file under dir.
type Store struct {
	dir   string
	level slog.Leveler

	mu      sync.Mutex
	files   map[uint]*os.File
	loggers map[uint]*slog.Logger
}

// NewStore creates a Store rooted at dir. dir is created on first use.
func NewStore(dir string, level slog.Leveler) *Store {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Store{
		dir:     dir,
		level:   level,
		files:   make(map[uint]*os.File),
		loggers: make(map[uint]*slog.Logger),
	}
}

// Logger returns the log stream for taskID, opening its backing file on
// first use.
func (s *Store) Logger(taskID uint) (*slog.Logger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.loggers[taskID]; ok {
		return l, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("tasklog: create dir %q: %w", s.dir, err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%d.log", taskID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tasklog: open %q: %w", path, err)
	}

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: s.level})
	l := slog.New(handler).With(slog.Uint64("task_id", uint64(taskID)))

	s.files[taskID] = f
	s.loggers[taskID] = l
	return l, nil
}

// Close closes the backing file for taskID, if open. Safe to call even if
// the task was never logged to.
func (s *Store) Close(taskID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[taskID]
	if !ok {
		return nil
	}
	delete(s.files, taskID)
	delete(s.loggers, taskID)
	return f.Close()
}

// CloseAll closes every open log stream, for use on process shutdown.
func (s *Store) CloseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, id)
		delete(s.loggers, id)
	}
	return firstErr
}

// Path returns the backing file path for taskID without opening it.
func (s *Store) Path(taskID uint) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.log", taskID))
}
