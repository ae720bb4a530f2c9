// Package redis keeps the task snapshot in a single Redis key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
	"github.com/redis/go-redis/v9"
)

// Store handles the snapshot key. The whole registry is written in one
// transaction, so there is never a partial snapshot to read.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

var _ store.Backend = (*Store)(nil)

// NewStore creates a new Redis snapshot store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		now:    time.Now,
	}
}

func (s *Store) Load(ctx context.Context) ([]*domain.MonitorTask, bool, error) {
	data, err := s.client.Get(ctx, KeySnapshot).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	tasks, err := store.Decode(data)
	if err != nil {
		return nil, true, err
	}
	return tasks, true, nil
}

func (s *Store) Save(ctx context.Context, tasks []*domain.MonitorTask) error {
	data, err := store.Encode(tasks)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, KeySnapshot, data, 0)
		pipe.Set(ctx, KeySnapshotSavedAt, s.now().UTC().Format(time.RFC3339), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// SavedAt returns the time of the last successful Save, if any.
func (s *Store) SavedAt(ctx context.Context) (time.Time, bool, error) {
	v, err := s.client.Get(ctx, KeySnapshotSavedAt).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get snapshot time: %w", err)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid snapshot time %q: %w", v, err)
	}
	return t, true, nil
}
