package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/pkg/types"
)

// TestAppendReplayOrder tests that log entries replay in append order
func TestAppendReplayOrder(t *testing.T) {
	store := testStore(t)

	ops := []LogOp{OpCreateTask, OpUpdateTask, OpDeleteTask}
	for _, op := range ops {
		require.NoError(t, store.AppendLog(&LogEntry{Op: op, Data: []byte(`"task-1"`)}))
	}

	var seen []LogOp
	err := store.ReplayLog(func(entry *LogEntry) error {
		seen = append(seen, entry.Op)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ops, seen)
}

// TestLogAppliesAfterAppend tests the write-ahead discipline: the
// wrapper logs first, then applies to the table
func TestLogAppliesAfterAppend(t *testing.T) {
	store := testStore(t)
	wal := NewLog(store)

	task := &types.Task{ID: "task-1", State: types.TaskPending}
	require.NoError(t, wal.CreateTask(task))

	task.State = types.TaskReady
	require.NoError(t, wal.UpdateTask(task))

	// Table state reflects the mutation
	got, err := store.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskReady, got.State)

	// Log holds both entries
	count := 0
	require.NoError(t, store.ReplayLog(func(entry *LogEntry) error {
		count++
		return nil
	}))
	assert.Equal(t, 2, count)
}

// TestReplayRebuildsState tests recovering tables into a fresh store
// from the surviving log
func TestReplayRebuildsState(t *testing.T) {
	source := testStore(t)
	wal := NewLog(source)

	require.NoError(t, wal.CreateTenant(&types.Tenant{
		ID:         "tenant-a",
		Guaranteed: types.Vector{types.ResourceCPU: 4},
	}))
	require.NoError(t, wal.CreateNode(&types.Node{ID: "node-1", Health: types.NodeHealthy}))

	task := &types.Task{ID: "task-1", TenantID: "tenant-a", State: types.TaskPending}
	require.NoError(t, wal.CreateTask(task))
	task.State = types.TaskCompleted
	require.NoError(t, wal.UpdateTask(task))

	require.NoError(t, wal.CreateTask(&types.Task{ID: "task-2", TenantID: "tenant-a"}))
	require.NoError(t, wal.DeleteTask("task-2"))

	fresh := testStore(t)
	require.NoError(t, Replay(source, fresh))

	got, err := fresh.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.State, "last write wins on replay")

	_, err = fresh.GetTask("task-2")
	assert.ErrorIs(t, err, ErrNotFound, "deletions replay too")

	tenant, err := fresh.GetTenant("tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 4.0, tenant.Guaranteed[types.ResourceCPU])

	_, err = fresh.GetNode("node-1")
	assert.NoError(t, err)
}
