package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/droverhq/drover/pkg/log"
	"github.com/droverhq/drover/pkg/metrics"
	"github.com/droverhq/drover/pkg/storage"
	"github.com/droverhq/drover/pkg/types"
	"github.com/google/uuid"
)

var (
	// ErrCheckpointTimeout is returned when a snapshot does not
	// complete within the configured bound
	ErrCheckpointTimeout = errors.New("checkpoint timeout")

	// ErrStorageUnavailable is returned when the checkpoint store
	// rejects the write after retries
	ErrStorageUnavailable = errors.New("checkpoint storage unavailable")

	// ErrNoValidCheckpoint is returned by Recover when no checkpoint
	// passes integrity verification; the task restarts from scratch
	ErrNoValidCheckpoint = errors.New("no valid checkpoint")
)

// Source produces the opaque state blob for a task. Implemented by the
// executor's task handle; the manager never inspects blob contents.
type Source interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Manager persists task state and restores it after preemption or
// failure. Writes are bounded by a timeout and retried with
// exponential backoff; blobs carry a SHA-256 hash verified on read.
type Manager struct {
	store storage.Store

	mu      sync.Mutex
	seqs    map[string]uint64 // task ID -> last issued sequence
	timeout time.Duration
	retries int
	keep    int
}

// NewManager creates a checkpoint manager over the given store
func NewManager(store storage.Store, p types.Policy) *Manager {
	m := &Manager{
		store: store,
		seqs:  make(map[string]uint64),
	}
	m.Configure(p)
	return m
}

// Configure replaces timeout and retry limits. Applied at round
// boundaries.
func (m *Manager) Configure(p types.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = p.CheckpointTimeout
	m.retries = p.CheckpointRetries
	m.keep = p.CheckpointKeep
}

// nextSeq issues the next strictly increasing sequence number for a
// task, resuming from persisted checkpoints after a restart
func (m *Manager) nextSeq(taskID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seqs[taskID]; !ok {
		cps, err := m.store.ListCheckpointsByTask(taskID)
		if err != nil {
			return 0, err
		}
		if len(cps) > 0 {
			m.seqs[taskID] = cps[0].Seq // newest first
		}
	}
	m.seqs[taskID]++
	return m.seqs[taskID], nil
}

// Checkpoint snapshots a task's state and persists it. The whole
// operation is bounded by the configured timeout; storage writes are
// retried with exponential backoff up to the retry limit before the
// error escalates to the caller's timeout policy.
func (m *Manager) Checkpoint(ctx context.Context, task *types.Task, source Source) (*types.Checkpoint, error) {
	m.mu.Lock()
	timeout := m.timeout
	retries := m.retries
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := metrics.NewTimer()

	blob, err := source.Snapshot(ctx)
	if err != nil {
		metrics.CheckpointFailures.Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("task %s: %w", task.ID, ErrCheckpointTimeout)
		}
		return nil, fmt.Errorf("task %s snapshot: %w", task.ID, err)
	}

	seq, err := m.nextSeq(task.ID)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(blob)
	cp := &types.Checkpoint{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Seq:       seq,
		Size:      int64(len(blob)),
		Location:  fmt.Sprintf("%s/%d", task.ID, seq),
		SHA256:    hex.EncodeToString(sum[:]),
		CreatedAt: time.Now(),
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	err = backoff.Retry(func() error {
		return m.store.PutCheckpoint(cp, blob)
	}, policy)
	if err != nil {
		metrics.CheckpointFailures.Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("task %s: %w", task.ID, ErrCheckpointTimeout)
		}
		return nil, fmt.Errorf("task %s: %w: %v", task.ID, ErrStorageUnavailable, err)
	}

	metrics.CheckpointsWritten.Inc()
	timer.ObserveDuration(metrics.CheckpointDuration)
	return cp, nil
}

// Recover returns the newest integrity-verified checkpoint and its
// blob. Corrupt checkpoints are skipped in favor of the next most
// recent; with none valid, ErrNoValidCheckpoint is returned and the
// caller restarts the task from scratch with an incremented retry
// count. Recovery is idempotent: it mutates nothing, so repeated
// attempts from the same checkpoint yield equivalent state.
func (m *Manager) Recover(task *types.Task) (*types.Checkpoint, []byte, error) {
	cps, err := m.store.ListCheckpointsByTask(task.ID)
	if err != nil {
		return nil, nil, err
	}

	logger := log.WithComponent("checkpoint")
	for _, cp := range cps {
		blob, err := m.store.GetCheckpointBlob(cp.Location)
		if err != nil {
			logger.Warn().Str("task_id", task.ID).Uint64("seq", cp.Seq).
				Err(err).Msg("checkpoint blob unreadable, falling back")
			continue
		}
		sum := sha256.Sum256(blob)
		if hex.EncodeToString(sum[:]) != cp.SHA256 {
			logger.Warn().Str("task_id", task.ID).Uint64("seq", cp.Seq).
				Msg("checkpoint failed integrity check, falling back")
			continue
		}
		return cp, blob, nil
	}

	return nil, nil, fmt.Errorf("task %s: %w", task.ID, ErrNoValidCheckpoint)
}

// GC removes superseded checkpoints beyond the retention count,
// newest kept first. Checkpoints are superseded, never overwritten, so
// this is the only deletion path.
func (m *Manager) GC(taskID string) error {
	m.mu.Lock()
	keep := m.keep
	m.mu.Unlock()

	cps, err := m.store.ListCheckpointsByTask(taskID)
	if err != nil {
		return err
	}
	if len(cps) <= keep {
		return nil
	}
	for _, cp := range cps[keep:] {
		if err := m.store.DeleteCheckpoint(cp); err != nil {
			return err
		}
	}
	return nil
}

// Purge removes every checkpoint for a task (terminal cleanup)
func (m *Manager) Purge(taskID string) error {
	cps, err := m.store.ListCheckpointsByTask(taskID)
	if err != nil {
		return err
	}
	for _, cp := range cps {
		if err := m.store.DeleteCheckpoint(cp); err != nil {
			return err
		}
	}
	m.mu.Lock()
	delete(m.seqs, taskID)
	m.mu.Unlock()
	return nil
}
