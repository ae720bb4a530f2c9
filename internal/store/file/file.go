// Package file keeps the task snapshot in a JSON file on local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

// Store writes each snapshot to a temp file next to the target and renames
// it into place, so readers never see a half-written document.
type Store struct {
	path string
	mu   sync.Mutex
}

var _ store.Backend = (*Store)(nil)

// New returns a store for path and makes sure its directory exists.
// The store is returned even when the directory cannot be created, so the
// caller can log the error and keep running in memory.
func New(path string) (*Store, error) {
	s := &Store{path: path}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return s, fmt.Errorf("failed to create data directory: %w", err)
	}
	return s, nil
}

// Path returns the snapshot location.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(_ context.Context) ([]*domain.MonitorTask, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	tasks, err := store.Decode(data)
	if err != nil {
		return nil, true, err
	}
	return tasks, true, nil
}

func (s *Store) Save(_ context.Context, tasks []*domain.MonitorTask) error {
	data, err := store.Encode(tasks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// SavedAt returns the modification time of the snapshot file.
func (s *Store) SavedAt(_ context.Context) (time.Time, bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	return info.ModTime(), true, nil
}
