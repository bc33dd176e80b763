package scheduler

import (
	"context"

	"github.com/droverhq/drover/pkg/types"
)

// Result is the terminal outcome a task handle reports
type Result struct {
	Err   error
	Fatal bool // true for task-reported unrecoverable failures
}

// TaskHandle observes and controls one executing task. Returned by an
// Executor when the core delegates a placement.
type TaskHandle interface {
	// Snapshot produces the task's opaque checkpoint blob. Must
	// respect ctx cancellation; the core bounds it with the
	// checkpoint timeout.
	Snapshot(ctx context.Context) ([]byte, error)

	// Stop terminates execution. Best-effort within ctx.
	Stop(ctx context.Context) error

	// Done is closed-with-value when the task finishes on its own
	Done() <-chan Result
}

// Executor starts task bodies on worker nodes. The core schedules but
// never executes directly; everything past the assignment handle is
// the worker's concern. checkpointBlob is nil for a fresh start and
// carries the verified blob when resuming from a checkpoint.
type Executor interface {
	StartTask(ctx context.Context, task *types.Task, nodeID string, checkpointBlob []byte) (TaskHandle, error)
}
