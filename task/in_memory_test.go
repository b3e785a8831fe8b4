package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentharness/agentharness/a2a"
)

func TestInMemoryStore_SaveGet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	tsk := &a2a.Task{
		ID:        "task-1",
		ContextID: "ctx-1",
		Status:    a2a.TaskStatus{State: a2a.TaskStateWorking},
		History:   []a2a.Message{a2a.NewMessage(a2a.RoleUser, a2a.TextPart{Text: "hi"})},
	}
	require.NoError(t, store.Save(ctx, tsk))

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", got.ID)
	assert.Len(t, got.History, 1)
}

func TestInMemoryStore_NotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_Isolation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	tsk := &a2a.Task{ID: "task-1", Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}
	require.NoError(t, store.Save(ctx, tsk))

	// Mutating the saved pointer must not affect the stored snapshot.
	tsk.Status.State = a2a.TaskStateFailed
	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateWorking, got.Status.State)

	// Mutating a retrieved snapshot must not affect the store either.
	got.History = append(got.History, a2a.NewMessage(a2a.RoleUser, a2a.TextPart{Text: "x"}))
	again, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Empty(t, again.History)
}

func TestInMemoryStore_Overwrite(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &a2a.Task{ID: "task-1", Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}))
	require.NoError(t, store.Save(ctx, &a2a.Task{ID: "task-1", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}}))

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
}
