package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/pkg/storage"
	"github.com/droverhq/drover/pkg/types"
)

type staticSource struct {
	blob []byte
	err  error
}

func (s staticSource) Snapshot(ctx context.Context) ([]byte, error) {
	return s.blob, s.err
}

type blockingSource struct{}

func (blockingSource) Snapshot(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testManager(t *testing.T) (*Manager, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store, types.DefaultPolicy()), store
}

// TestCheckpointRoundTrip tests write, integrity hash and recovery
func TestCheckpointRoundTrip(t *testing.T) {
	m, _ := testManager(t)
	task := &types.Task{ID: "task-1"}
	blob := []byte("opaque state")

	cp, err := m.Checkpoint(context.Background(), task, staticSource{blob: blob})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cp.Seq)
	assert.Equal(t, int64(len(blob)), cp.Size)

	sum := sha256.Sum256(blob)
	assert.Equal(t, hex.EncodeToString(sum[:]), cp.SHA256)

	got, data, err := m.Recover(task)
	require.NoError(t, err)
	assert.Equal(t, cp.ID, got.ID)
	assert.Equal(t, blob, data)
}

// TestCheckpointSequenceMonotonic tests that checkpoints supersede,
// never overwrite
func TestCheckpointSequenceMonotonic(t *testing.T) {
	m, store := testManager(t)
	task := &types.Task{ID: "task-1"}

	for i := 1; i <= 3; i++ {
		cp, err := m.Checkpoint(context.Background(), task,
			staticSource{blob: []byte(fmt.Sprintf("state %d", i))})
		require.NoError(t, err)
		assert.Equal(t, uint64(i), cp.Seq)
	}

	cps, err := store.ListCheckpointsByTask("task-1")
	require.NoError(t, err)
	require.Len(t, cps, 3, "older checkpoints survive new writes")
	assert.Equal(t, uint64(3), cps[0].Seq, "listing is newest first")
}

// TestRecoverFallsBackPastCorruption tests that a torn newest
// checkpoint falls back to the previous verified one
func TestRecoverFallsBackPastCorruption(t *testing.T) {
	m, store := testManager(t)
	task := &types.Task{ID: "task-1"}

	good, err := m.Checkpoint(context.Background(), task, staticSource{blob: []byte("good state")})
	require.NoError(t, err)

	// Simulate a torn write: index entry whose hash does not match the
	// stored blob
	torn := &types.Checkpoint{
		ID:        "torn",
		TaskID:    "task-1",
		Seq:       good.Seq + 1,
		Location:  "task-1/torn",
		SHA256:    "0000000000000000000000000000000000000000000000000000000000000000",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.PutCheckpoint(torn, []byte("partial garbage")))

	got, data, err := m.Recover(task)
	require.NoError(t, err)
	assert.Equal(t, good.ID, got.ID)
	assert.Equal(t, []byte("good state"), data)
}

// TestRecoverNoValidCheckpoint tests the scratch-restart signal
func TestRecoverNoValidCheckpoint(t *testing.T) {
	m, _ := testManager(t)

	_, _, err := m.Recover(&types.Task{ID: "never-checkpointed"})
	assert.ErrorIs(t, err, ErrNoValidCheckpoint)
}

// TestRecoverIdempotent tests that repeated recovery yields the same
// checkpoint and blob
func TestRecoverIdempotent(t *testing.T) {
	m, _ := testManager(t)
	task := &types.Task{ID: "task-1"}

	_, err := m.Checkpoint(context.Background(), task, staticSource{blob: []byte("state")})
	require.NoError(t, err)

	first, firstBlob, err := m.Recover(task)
	require.NoError(t, err)
	second, secondBlob, err := m.Recover(task)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, firstBlob, secondBlob)
}

// TestCheckpointTimeout tests the snapshot deadline
func TestCheckpointTimeout(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	policy := types.DefaultPolicy()
	policy.CheckpointTimeout = 50 * time.Millisecond
	m := NewManager(store, policy)

	start := time.Now()
	_, err = m.Checkpoint(context.Background(), &types.Task{ID: "task-1"}, blockingSource{})
	assert.ErrorIs(t, err, ErrCheckpointTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestGCRetention tests that GC keeps only the newest checkpoints
func TestGCRetention(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	policy := types.DefaultPolicy()
	policy.CheckpointKeep = 2
	m := NewManager(store, policy)
	task := &types.Task{ID: "task-1"}

	for i := 0; i < 5; i++ {
		_, err := m.Checkpoint(context.Background(), task, staticSource{blob: []byte{byte(i)}})
		require.NoError(t, err)
	}

	require.NoError(t, m.GC("task-1"))

	cps, err := store.ListCheckpointsByTask("task-1")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, uint64(5), cps[0].Seq)
	assert.Equal(t, uint64(4), cps[1].Seq)
}

// TestPurge tests terminal cleanup
func TestPurge(t *testing.T) {
	m, store := testManager(t)
	task := &types.Task{ID: "task-1"}

	_, err := m.Checkpoint(context.Background(), task, staticSource{blob: []byte("state")})
	require.NoError(t, err)

	require.NoError(t, m.Purge("task-1"))

	cps, err := store.ListCheckpointsByTask("task-1")
	require.NoError(t, err)
	assert.Empty(t, cps)
}
