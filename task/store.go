// Package task persists durable task state. The orchestrator depends only on
// the Store interface; implementations must be atomic per task id.
package task

import (
	"context"
	"errors"

	"github.com/agentharness/agentharness/a2a"
)

// ErrNotFound is returned by Get when no task exists for the id.
var ErrNotFound = errors.New("task not found")

// Store persists tasks. Save overwrites the full task snapshot; Get returns
// ErrNotFound for unknown ids.
type Store interface {
	Save(ctx context.Context, task *a2a.Task) error
	Get(ctx context.Context, taskID string) (*a2a.Task, error)
}
