package scheduler

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/droverhq/drover/pkg/types"
)

// LocalExecutor runs tasks in-process as timed simulations. It exists
// for development and tests; real deployments plug in an Executor
// backed by their execution substrate.
type LocalExecutor struct {
	duration time.Duration
}

// NewLocalExecutor creates an executor whose tasks complete after the
// given wall-clock duration of accumulated run time
func NewLocalExecutor(duration time.Duration) *LocalExecutor {
	return &LocalExecutor{duration: duration}
}

// StartTask begins a simulated run. A checkpoint blob, if given,
// restores the task's accumulated progress so suspended work is not
// repeated.
func (e *LocalExecutor) StartTask(ctx context.Context, task *types.Task, nodeID string, checkpoint []byte) (TaskHandle, error) {
	var progress time.Duration
	if len(checkpoint) == 8 {
		progress = time.Duration(binary.BigEndian.Uint64(checkpoint))
	}
	h := &localHandle{
		started:  time.Now(),
		progress: progress,
		done:     make(chan Result, 1),
		stop:     make(chan struct{}),
	}
	go h.run(e.duration)
	return h, nil
}

type localHandle struct {
	mu       sync.Mutex
	started  time.Time
	progress time.Duration // accumulated before this run
	stopped  bool
	done     chan Result
	stop     chan struct{}
}

func (h *localHandle) run(total time.Duration) {
	remaining := total - h.progress
	if remaining <= 0 {
		h.done <- Result{}
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		h.done <- Result{}
	case <-h.stop:
	}
}

// Snapshot captures accumulated progress as an 8-byte big-endian
// duration in nanoseconds
func (h *localHandle) Snapshot(ctx context.Context) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	elapsed := h.progress
	if !h.stopped {
		elapsed += time.Since(h.started)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(elapsed))
	return buf, nil
}

func (h *localHandle) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	h.progress += time.Since(h.started)
	close(h.stop)
	return nil
}

func (h *localHandle) Done() <-chan Result {
	return h.done
}
