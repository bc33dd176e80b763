package types

import (
	"time"
)

// Task is a user-submitted unit of work tracked by the scheduler core.
// Once submitted it is owned exclusively by the core and mutated only
// through the defined commands (submit, cancel, update-priority).
type Task struct {
	ID             string
	TenantID       string
	Kind           TaskKind
	Request        Vector
	StaticPriority int
	Deadline       *time.Time
	DependsOn      []string
	State          TaskState
	CheckpointRef  string // ID of the latest checkpoint, empty if none
	RetryCount     int
	MaxRetries     int
	NodeID         string // assigned node while running
	ReasonCode     ReasonCode
	SubmittedSeq   uint64 // monotonic submission order, FIFO tie-break
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the task has reached a final state
func (t *Task) Terminal() bool {
	switch t.State {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// TaskState represents the lifecycle state of a task
type TaskState string

const (
	TaskPending      TaskState = "pending"      // submitted, dependencies unmet
	TaskReady        TaskState = "ready"        // dependencies met, awaiting resources
	TaskRunning      TaskState = "running"      // assigned and executing
	TaskCheckpointed TaskState = "checkpointed" // suspended, state persisted
	TaskCompleted    TaskState = "completed"
	TaskFailed       TaskState = "failed"
	TaskCancelled    TaskState = "cancelled"
)

// ReasonCode is the structured cause attached to a terminal state.
// Submitters see a reason code, never an internal error.
type ReasonCode string

const (
	ReasonNone             ReasonCode = ""
	ReasonSucceeded        ReasonCode = "succeeded"
	ReasonFatalTaskError   ReasonCode = "fatal_task_error"
	ReasonRetriesExhausted ReasonCode = "retries_exhausted"
	ReasonCancelled        ReasonCode = "cancelled"
	ReasonLossyCancelled   ReasonCode = "cancelled_lossy"
	ReasonNodeFailure      ReasonCode = "node_failure"
)

// Tenant is an accounting entity with guaranteed and burst quotas.
// Usage above Guaranteed and up to BurstCeiling is permitted only
// while idle capacity exists and is the first to be reclaimed.
type Tenant struct {
	ID           string
	Guaranteed   Vector
	BurstCeiling Vector
	Usage        Vector
	CreatedAt    time.Time
}

// NodeHealth represents the observed health of a worker node
type NodeHealth string

const (
	NodeHealthy     NodeHealth = "healthy"
	NodeDegraded    NodeHealth = "degraded"
	NodeUnreachable NodeHealth = "unreachable"
)

// Node is a worker with capacity tracked by the resource ledger
type Node struct {
	ID            string
	Capacity      Vector
	Allocated     Vector
	Health        NodeHealth
	Residents     []string // task IDs currently placed here
	LastHeartbeat time.Time
	CreatedAt     time.Time
}

// Checkpoint is a persisted, resumable snapshot of a running task.
// Immutable once written; later checkpoints supersede earlier ones
// without overwriting them.
type Checkpoint struct {
	ID        string
	TaskID    string
	Seq       uint64 // strictly increasing per task
	Size      int64
	Location  string // key of the blob in checkpoint storage
	SHA256    string // integrity hash of the blob
	CreatedAt time.Time
}

// TaskKind selects kind-specific behavior (checkpointability, retry
// policy) via the capability table in kinds.go
type TaskKind string

const (
	KindGeneric    TaskKind = "generic"
	KindBuild      TaskKind = "build"
	KindMLJob      TaskKind = "mljob"
	KindSimulation TaskKind = "simulation"
	KindService    TaskKind = "service"
)

// Assignment records a (task, node) placement decision for one round
type Assignment struct {
	TaskID   string
	NodeID   string
	Burst    bool // placed against burst quota rather than guaranteed
	Assigned time.Time
}

// UtilizationSnapshot is the externally visible usage view consumed by
// reporting and chargeback tools
type UtilizationSnapshot struct {
	TakenAt time.Time
	Nodes   map[string]NodeUtilization
	Tenants map[string]TenantUtilization
}

// NodeUtilization is per-node capacity and allocation
type NodeUtilization struct {
	Capacity  Vector
	Allocated Vector
	Health    NodeHealth
}

// TenantUtilization is per-tenant entitlement and usage
type TenantUtilization struct {
	Guaranteed   Vector
	BurstCeiling Vector
	Usage        Vector
	DominantUse  float64 // dominant share of cluster capacity
}
