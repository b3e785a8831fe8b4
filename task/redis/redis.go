// Package redis provides a durable task.Store backed by Redis. Tasks are
// stored as JSON values under a configurable key prefix; an optional
// retention TTL bounds storage growth (retention is a deployment concern,
// the orchestrator never deletes tasks itself).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentharness/agentharness/a2a"
	"github.com/agentharness/agentharness/task"
)

// Options configures the redis task store.
type Options struct {
	// KeyPrefix namespaces task keys.
	KeyPrefix string
	// Retention bounds how long a saved task is kept. Zero means no expiry.
	Retention time.Duration
}

// Store implements task.Store on a Redis client.
type Store struct {
	client *redis.Client
	opts   Options
}

// NewStore wraps an existing Redis client.
func NewStore(client *redis.Client, optFns ...func(o *Options)) *Store {
	opts := Options{KeyPrefix: "agentharness:task:"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, opts: opts}
}

func (s *Store) key(taskID string) string { return s.opts.KeyPrefix + taskID }

// Save stores the task as JSON, refreshing the retention TTL.
func (s *Store) Save(ctx context.Context, t *a2a.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", t.ID, err)
	}
	if err := s.client.Set(ctx, s.key(t.ID), data, s.opts.Retention).Err(); err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// Get loads and decodes the task, mapping a missing key to task.ErrNotFound.
func (s *Store) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	data, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	var t a2a.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &t, nil
}
