package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/pkg/storage"
	"github.com/droverhq/drover/pkg/types"
)

const (
	pollInterval = 10 * time.Millisecond
	waitBudget   = 10 * time.Second
)

func fastPolicy() types.Policy {
	p := types.DefaultPolicy()
	p.RoundInterval = 20 * time.Millisecond
	p.HeartbeatTimeout = time.Hour // health checks exercised separately
	p.Reclamation = types.ReclaimImmediate
	p.CheckpointTimeout = 2 * time.Second
	p.CancelTimeout = 2 * time.Second
	return p
}

// startCore spins up a core over a fresh store with a simulated
// executor whose tasks run for taskDuration
func startCore(t *testing.T, policy types.Policy, taskDuration time.Duration) *Core {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)

	core, err := New(Config{
		Store:    store,
		Executor: NewLocalExecutor(taskDuration),
		Policy:   policy,
	})
	require.NoError(t, err)
	core.Start()
	t.Cleanup(func() {
		core.Stop()
		store.Close()
	})
	return core
}

func registerTenant(t *testing.T, core *Core, id string, guaranteed, ceiling float64) {
	t.Helper()
	require.NoError(t, core.RegisterTenant(&types.Tenant{
		ID:           id,
		Guaranteed:   types.Vector{types.ResourceCPU: guaranteed},
		BurstCeiling: types.Vector{types.ResourceCPU: ceiling},
	}))
}

func registerNode(t *testing.T, core *Core, id string, cpu float64) {
	t.Helper()
	require.NoError(t, core.RegisterNode(&types.Node{
		ID:       id,
		Capacity: types.Vector{types.ResourceCPU: cpu},
	}))
}

// waitForState polls task status until the expected state is reached
func waitForState(t *testing.T, core *Core, taskID string, want types.TaskState) TaskStatus {
	t.Helper()
	var status TaskStatus
	require.Eventually(t, func() bool {
		var err error
		status, err = core.GetTaskStatus(taskID)
		return err == nil && status.State == want
	}, waitBudget, pollInterval, "task %s never reached %s (last: %+v)", taskID, want, status)
	return status
}

// TestSubmitValidation tests submission-time rejections
func TestSubmitValidation(t *testing.T) {
	core := startCore(t, fastPolicy(), 50*time.Millisecond)
	registerTenant(t, core, "tenant-a", 4, 8)

	_, err := core.SubmitTask(TaskSpec{
		TenantID: "nobody",
		Request:  types.Vector{types.ResourceCPU: 1},
	})
	assert.ErrorIs(t, err, ErrUnknownTenant)

	_, err = core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Request:  types.Vector{"plutonium": 1},
	})
	assert.ErrorIs(t, err, ErrInvalidResourceClass)

	// a -> b -> a cycle
	_, err = core.SubmitTask(TaskSpec{
		TenantID:  "tenant-a",
		Request:   types.Vector{types.ResourceCPU: 1},
		DependsOn: []string{"submitted-later"},
	})
	assert.NoError(t, err, "forward dependencies are legal")
}

// TestTaskRunsToCompletion tests the happy path end to end
func TestTaskRunsToCompletion(t *testing.T) {
	core := startCore(t, fastPolicy(), 50*time.Millisecond)
	registerTenant(t, core, "tenant-a", 4, 8)
	registerNode(t, core, "node-1", 8)

	id, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Request:  types.Vector{types.ResourceCPU: 2},
	})
	require.NoError(t, err)

	status := waitForState(t, core, id, types.TaskCompleted)
	assert.Equal(t, types.ReasonSucceeded, status.Reason)

	// Capacity returned after completion
	snap, err := core.GetUtilizationSnapshot()
	require.NoError(t, err)
	assert.True(t, snap.Tenants["tenant-a"].Usage.IsZero())
}

// TestDependencyOrdering tests that dependents wait for their parents
func TestDependencyOrdering(t *testing.T) {
	core := startCore(t, fastPolicy(), 100*time.Millisecond)
	registerTenant(t, core, "tenant-a", 8, 8)
	registerNode(t, core, "node-1", 8)

	parent, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Request:  types.Vector{types.ResourceCPU: 1},
	})
	require.NoError(t, err)

	child, err := core.SubmitTask(TaskSpec{
		TenantID:  "tenant-a",
		Request:   types.Vector{types.ResourceCPU: 1},
		DependsOn: []string{parent},
	})
	require.NoError(t, err)

	// The child must not start while the parent runs
	status, err := core.GetTaskStatus(child)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, status.State)

	waitForState(t, core, parent, types.TaskCompleted)
	waitForState(t, core, child, types.TaskCompleted)
}

// TestCancelPending tests cancelling before placement
func TestCancelPending(t *testing.T) {
	core := startCore(t, fastPolicy(), time.Hour)
	registerTenant(t, core, "tenant-a", 4, 8)
	// No node: the task stays ready forever

	id, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Request:  types.Vector{types.ResourceCPU: 1},
	})
	require.NoError(t, err)

	require.NoError(t, core.CancelTask(id))
	status := waitForState(t, core, id, types.TaskCancelled)
	assert.Equal(t, types.ReasonCancelled, status.Reason)

	// Idempotent
	assert.NoError(t, core.CancelTask(id))
	assert.NoError(t, core.CancelTask("never-existed"))
}

// TestCancelRunning tests checkpoint-then-terminate cancellation
func TestCancelRunning(t *testing.T) {
	core := startCore(t, fastPolicy(), time.Hour)
	registerTenant(t, core, "tenant-a", 4, 8)
	registerNode(t, core, "node-1", 8)

	id, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Request:  types.Vector{types.ResourceCPU: 1},
	})
	require.NoError(t, err)
	waitForState(t, core, id, types.TaskRunning)

	require.NoError(t, core.CancelTask(id))
	status := waitForState(t, core, id, types.TaskCancelled)
	assert.Equal(t, types.ReasonCancelled, status.Reason)
	assert.NotEmpty(t, status.CheckpointRef, "running cancellation checkpoints first")
}

// TestFailedDependencyBlocksDependent tests that a cancelled parent
// never readies its children
func TestFailedDependencyBlocksDependent(t *testing.T) {
	core := startCore(t, fastPolicy(), time.Hour)
	registerTenant(t, core, "tenant-a", 4, 8)
	// No node, so the parent stays ready and cancellation is immediate

	parent, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Request:  types.Vector{types.ResourceCPU: 1},
	})
	require.NoError(t, err)
	child, err := core.SubmitTask(TaskSpec{
		TenantID:  "tenant-a",
		Request:   types.Vector{types.ResourceCPU: 1},
		DependsOn: []string{parent},
	})
	require.NoError(t, err)

	require.NoError(t, core.CancelTask(parent))
	registerNode(t, core, "node-1", 8)

	// Give the loop several rounds; the child must stay pending
	time.Sleep(300 * time.Millisecond)
	status, err := core.GetTaskStatus(child)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, status.State)
}

// TestDeadlineWinsTheOnlySlot tests that deadline urgency outranks
// static priority when both compete for one slot
func TestDeadlineWinsTheOnlySlot(t *testing.T) {
	core := startCore(t, fastPolicy(), time.Hour)
	registerTenant(t, core, "tenant-a", 8, 8)

	deadline := time.Now().Add(time.Minute)
	urgent, err := core.SubmitTask(TaskSpec{
		TenantID:       "tenant-a",
		Request:        types.Vector{types.ResourceCPU: 1},
		StaticPriority: 1,
		Deadline:       &deadline,
	})
	require.NoError(t, err)
	heavy, err := core.SubmitTask(TaskSpec{
		TenantID:       "tenant-a",
		Request:        types.Vector{types.ResourceCPU: 1},
		StaticPriority: 5,
	})
	require.NoError(t, err)

	// One slot appears; the urgent task must take it
	registerNode(t, core, "node-1", 1)
	waitForState(t, core, urgent, types.TaskRunning)

	status, err := core.GetTaskStatus(heavy)
	require.NoError(t, err)
	assert.Equal(t, types.TaskReady, status.State)
}

// TestBurstReclamation tests the quota trigger: a bursting tenant is
// preempted back toward its guarantee when the capacity owner demands
func TestBurstReclamation(t *testing.T) {
	core := startCore(t, fastPolicy(), time.Hour)
	registerTenant(t, core, "tenant-a", 4, 8)
	registerTenant(t, core, "tenant-b", 4, 8)
	registerNode(t, core, "node-1", 8)

	// A bursts to the full node
	var aTasks []string
	for i := 0; i < 2; i++ {
		id, err := core.SubmitTask(TaskSpec{
			TenantID: "tenant-a",
			Kind:     types.KindMLJob,
			Request:  types.Vector{types.ResourceCPU: 4},
		})
		require.NoError(t, err)
		aTasks = append(aTasks, id)
	}
	for _, id := range aTasks {
		waitForState(t, core, id, types.TaskRunning)
	}

	// B demands its guarantee
	bTask, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-b",
		Kind:     types.KindMLJob,
		Request:  types.Vector{types.ResourceCPU: 4},
	})
	require.NoError(t, err)

	waitForState(t, core, bTask, types.TaskRunning)

	// A is back at its guarantee, with one task suspended with state
	require.Eventually(t, func() bool {
		snap, err := core.GetUtilizationSnapshot()
		return err == nil && snap.Tenants["tenant-a"].Usage[types.ResourceCPU] <= 4
	}, waitBudget, pollInterval)

	suspended := 0
	for _, id := range aTasks {
		status, err := core.GetTaskStatus(id)
		require.NoError(t, err)
		if status.State != types.TaskRunning {
			suspended++
			assert.NotEmpty(t, status.CheckpointRef, "preempted task keeps its checkpoint")
		}
	}
	assert.Equal(t, 1, suspended)
}

// TestNonCheckpointableNeverPreempted tests the hard constraint on
// kinds that cannot checkpoint
func TestNonCheckpointableNeverPreempted(t *testing.T) {
	core := startCore(t, fastPolicy(), time.Hour)
	registerTenant(t, core, "tenant-a", 2, 8)
	registerTenant(t, core, "tenant-b", 4, 8)
	registerNode(t, core, "node-1", 4)

	// A bursts with a build task, which can never be preempted
	build, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Kind:     types.KindBuild,
		Request:  types.Vector{types.ResourceCPU: 4},
	})
	require.NoError(t, err)
	waitForState(t, core, build, types.TaskRunning)

	_, err = core.SubmitTask(TaskSpec{
		TenantID: "tenant-b",
		Kind:     types.KindMLJob,
		Request:  types.Vector{types.ResourceCPU: 4},
	})
	require.NoError(t, err)

	// Several rounds later the build task must still be running
	time.Sleep(500 * time.Millisecond)
	status, err := core.GetTaskStatus(build)
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, status.State)
}

// TestNodeFailureRecovery tests heartbeat expiry routing residents
// through checkpoint recovery
func TestNodeFailureRecovery(t *testing.T) {
	policy := fastPolicy()
	policy.HeartbeatTimeout = 200 * time.Millisecond
	core := startCore(t, policy, time.Hour)
	registerTenant(t, core, "tenant-a", 4, 8)
	registerNode(t, core, "node-1", 8)

	id, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Kind:     types.KindMLJob,
		Request:  types.Vector{types.ResourceCPU: 2},
	})
	require.NoError(t, err)
	waitForState(t, core, id, types.TaskRunning)

	// Stop heartbeating; the node goes unreachable and the task comes
	// off it. With no healthy node left it waits as ready.
	require.Eventually(t, func() bool {
		status, err := core.GetTaskStatus(id)
		return err == nil && status.State == types.TaskReady && status.NodeID == ""
	}, waitBudget, pollInterval)

	// A replacement node picks it up
	registerNode(t, core, "node-2", 8)
	status := waitForState(t, core, id, types.TaskRunning)
	assert.Equal(t, "node-2", status.NodeID)
}

// TestSlowHeartbeatsDegradeNode tests that a node whose heartbeats lag
// past half the timeout stops receiving new placements while its
// residents keep running, and returns to service on the next heartbeat
func TestSlowHeartbeatsDegradeNode(t *testing.T) {
	policy := fastPolicy()
	policy.HeartbeatTimeout = 2 * time.Second
	core := startCore(t, policy, time.Hour)
	registerTenant(t, core, "tenant-a", 4, 8)
	registerNode(t, core, "node-1", 8)

	resident, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Kind:     types.KindMLJob,
		Request:  types.Vector{types.ResourceCPU: 2},
	})
	require.NoError(t, err)
	waitForState(t, core, resident, types.TaskRunning)

	// Stop heartbeating. Past half the timeout the node is degraded
	// but its resident stays where it is.
	require.Eventually(t, func() bool {
		return nodeHealth(t, core, "node-1") == types.NodeDegraded
	}, waitBudget, pollInterval)
	status, err := core.GetTaskStatus(resident)
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, status.State)

	// New work is withheld from a degraded node
	waiting, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Kind:     types.KindMLJob,
		Request:  types.Vector{types.ResourceCPU: 2},
	})
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)
	status, err = core.GetTaskStatus(waiting)
	require.NoError(t, err)
	assert.Equal(t, types.TaskReady, status.State)

	// A heartbeat restores the node and the withheld task lands on it
	require.NoError(t, core.Heartbeat("node-1"))
	status = waitForState(t, core, waiting, types.TaskRunning)
	assert.Equal(t, "node-1", status.NodeID)
}

func nodeHealth(t *testing.T, core *Core, nodeID string) types.NodeHealth {
	t.Helper()
	snap, err := core.GetUtilizationSnapshot()
	require.NoError(t, err)
	return snap.Nodes[nodeID].Health
}

// TestTerminalStatusSurvivesGC tests that a finished task's status is
// still served after the accounting window expires its record from
// the store
func TestTerminalStatusSurvivesGC(t *testing.T) {
	policy := fastPolicy()
	policy.AccountingWindow = 50 * time.Millisecond
	core := startCore(t, policy, 50*time.Millisecond)
	registerTenant(t, core, "tenant-a", 4, 8)
	registerNode(t, core, "node-1", 8)

	id, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Kind:     types.KindMLJob,
		Request:  types.Vector{types.ResourceCPU: 2},
	})
	require.NoError(t, err)
	waitForState(t, core, id, types.TaskCompleted)

	// Wait out the accounting window so round GC drops the record
	require.Eventually(t, func() bool {
		_, err := core.store.GetTask(id)
		return errors.Is(err, storage.ErrNotFound)
	}, waitBudget, pollInterval)

	status, err := core.GetTaskStatus(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, status.State)
	assert.Equal(t, types.ReasonSucceeded, status.Reason)
}

// TestRestartRestoresState tests crash recovery from the store
func TestRestartRestoresState(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)

	policy := fastPolicy()
	core, err := New(Config{
		Store:    store,
		Executor: NewLocalExecutor(time.Hour),
		Policy:   policy,
	})
	require.NoError(t, err)
	core.Start()

	registerTenant(t, core, "tenant-a", 4, 8)
	registerNode(t, core, "node-1", 8)
	id, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Kind:     types.KindMLJob,
		Request:  types.Vector{types.ResourceCPU: 2},
	})
	require.NoError(t, err)
	waitForState(t, core, id, types.TaskRunning)

	// Crash: no graceful task teardown
	core.Stop()
	require.NoError(t, store.Close())

	store, err = storage.NewBoltStore(dir)
	require.NoError(t, err)
	core, err = New(Config{
		Store:    store,
		Executor: NewLocalExecutor(50 * time.Millisecond),
		Policy:   policy,
	})
	require.NoError(t, err)
	core.Start()
	t.Cleanup(func() {
		core.Stop()
		store.Close()
	})

	// The formerly running task is rescheduled and finishes
	waitForState(t, core, id, types.TaskCompleted)
}

// TestUpdatePriorityReorders tests that a priority bump takes effect
// at the next round
func TestUpdatePriorityReorders(t *testing.T) {
	core := startCore(t, fastPolicy(), time.Hour)
	registerTenant(t, core, "tenant-a", 8, 8)

	first, err := core.SubmitTask(TaskSpec{
		TenantID:       "tenant-a",
		Request:        types.Vector{types.ResourceCPU: 1},
		StaticPriority: 2,
	})
	require.NoError(t, err)
	second, err := core.SubmitTask(TaskSpec{
		TenantID:       "tenant-a",
		Request:        types.Vector{types.ResourceCPU: 1},
		StaticPriority: 2,
	})
	require.NoError(t, err)

	require.NoError(t, core.UpdatePriority(second, 9))
	registerNode(t, core, "node-1", 1)

	waitForState(t, core, second, types.TaskRunning)
	status, err := core.GetTaskStatus(first)
	require.NoError(t, err)
	assert.Equal(t, types.TaskReady, status.State)
}

// TestBurstDeniedWithoutIdleCapacity tests that burst admission needs
// idle capacity to lend
func TestBurstDeniedWithoutIdleCapacity(t *testing.T) {
	core := startCore(t, fastPolicy(), time.Hour)
	registerTenant(t, core, "tenant-a", 2, 8)
	registerNode(t, core, "node-1", 2)

	inside, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Request:  types.Vector{types.ResourceCPU: 2},
	})
	require.NoError(t, err)
	waitForState(t, core, inside, types.TaskRunning)

	// Above guarantee with zero idle: stays ready
	burst, err := core.SubmitTask(TaskSpec{
		TenantID: "tenant-a",
		Request:  types.Vector{types.ResourceCPU: 1},
	})
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	status, err := core.GetTaskStatus(burst)
	require.NoError(t, err)
	assert.Equal(t, types.TaskReady, status.State)
}
