// Package store persists the whole task registry as a single snapshot.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
)

// Gateway reads and overwrites the durable snapshot of every task.
type Gateway interface {
	// Load returns the stored tasks. found is false when no snapshot
	// exists yet, which is not an error.
	Load(ctx context.Context) (tasks []*domain.MonitorTask, found bool, err error)

	// Save replaces the snapshot with tasks.
	Save(ctx context.Context, tasks []*domain.MonitorTask) error
}

// Freshness reports when the snapshot was last written. found is false
// when nothing has been saved yet.
type Freshness interface {
	SavedAt(ctx context.Context) (at time.Time, found bool, err error)
}

// Backend is a snapshot store that can also report its age.
type Backend interface {
	Gateway
	Freshness
}

// Encode renders tasks as the snapshot document, a JSON array.
func Encode(tasks []*domain.MonitorTask) ([]byte, error) {
	if tasks == nil {
		tasks = []*domain.MonitorTask{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot document. Records written before daily
// records existed come back with an empty history and an active status.
// Records without an id or with an unknown status are dropped: nothing
// could poll, reset or collect them.
func Decode(data []byte) ([]*domain.MonitorTask, error) {
	var tasks []*domain.MonitorTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	out := make([]*domain.MonitorTask, 0, len(tasks))
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			continue
		}
		if t.DailyRecords == nil {
			t.DailyRecords = []domain.DailyRecord{}
		}
		if t.Status == "" {
			t.Status = domain.StatusActive
		}
		if !t.Status.Valid() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
