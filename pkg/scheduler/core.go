package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/droverhq/drover/pkg/checkpoint"
	"github.com/droverhq/drover/pkg/depgraph"
	"github.com/droverhq/drover/pkg/events"
	"github.com/droverhq/drover/pkg/fairness"
	"github.com/droverhq/drover/pkg/ledger"
	"github.com/droverhq/drover/pkg/log"
	"github.com/droverhq/drover/pkg/metrics"
	"github.com/droverhq/drover/pkg/priority"
	"github.com/droverhq/drover/pkg/quota"
	"github.com/droverhq/drover/pkg/storage"
	"github.com/droverhq/drover/pkg/types"
)

var (
	// ErrUnknownTenant is returned when submitting for an unregistered
	// tenant
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrInvalidResourceClass is returned when a request names a
	// resource class no registered node carries
	ErrInvalidResourceClass = errors.New("invalid resource class")

	// ErrUnknownTask is returned by status queries for IDs the core
	// has never seen (or has fully forgotten)
	ErrUnknownTask = errors.New("unknown task")
)

// terminalCacheSize bounds the cache of terminal task results kept
// after the task records themselves are garbage-collected
const terminalCacheSize = 4096

// TaskSpec is the submission payload
type TaskSpec struct {
	TenantID       string
	Kind           types.TaskKind
	Request        types.Vector
	StaticPriority int
	Deadline       *time.Time
	DependsOn      []string
	MaxRetries     int // 0 means the kind's default
}

// TaskStatus is the externally visible view of a task
type TaskStatus struct {
	State         types.TaskState
	NodeID        string
	CheckpointRef string
	Reason        types.ReasonCode
}

// Config wires the core's collaborators
type Config struct {
	Store    storage.Store
	Executor Executor
	Policy   types.Policy
}

// Core is the placement scheduler for one resource domain. It owns
// the resource ledger and runs a single control loop; multiple
// independent domains run separate Core instances.
type Core struct {
	logger   zerolog.Logger
	wal      *storage.Log
	store    storage.Store
	ledger   *ledger.Ledger
	quota    *quota.Manager
	graph    *depgraph.Graph
	engine   *priority.Engine
	monitor  *fairness.Monitor
	ckpt     *checkpoint.Manager
	broker   *events.Broker
	executor Executor

	mu           sync.Mutex
	policy       types.Policy
	pending      *types.Policy // applied at the next round boundary
	reservations map[string]*ledger.Reservation
	handles      map[string]TaskHandle
	preempting   map[string]bool
	cancelling   map[string]bool
	knownClasses map[types.ResourceClass]struct{}
	submitSeq    uint64
	terminal     *lru.Cache[string, TaskStatus]

	kickCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a core and restores state from the store. Running tasks
// found without a live handle (a crash happened) are routed through
// the recovery path.
func New(cfg Config) (*Core, error) {
	pol := cfg.Policy
	if pol == (types.Policy{}) {
		pol = types.DefaultPolicy()
	}

	cache, err := lru.New[string, TaskStatus](terminalCacheSize)
	if err != nil {
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()

	c := &Core{
		logger:       log.WithComponent("scheduler"),
		wal:          storage.NewLog(cfg.Store),
		store:        cfg.Store,
		ledger:       ledger.New(),
		quota:        quota.NewManager(pol.Reclamation, pol.GracePeriod),
		graph:        depgraph.New(),
		engine:       priority.NewEngine(pol),
		monitor:      fairness.NewMonitor(pol),
		ckpt:         checkpoint.NewManager(cfg.Store, pol),
		broker:       broker,
		executor:     cfg.Executor,
		policy:       pol,
		terminal:     cache,
		reservations: make(map[string]*ledger.Reservation),
		handles:      make(map[string]TaskHandle),
		preempting:   make(map[string]bool),
		cancelling:   make(map[string]bool),
		knownClasses: map[types.ResourceClass]struct{}{
			types.ResourceCPU:    {},
			types.ResourceMemory: {},
			types.ResourceGPU:    {},
		},
		kickCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := c.restore(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return c, nil
}

// restore rebuilds in-memory state from the store after a restart
func (c *Core) restore() error {
	nodes, err := c.store.ListNodes()
	if err != nil {
		return err
	}
	for _, node := range nodes {
		// Allocations belonged to the previous process; resident
		// tasks go through recovery below, so start from zero.
		node.Allocated = types.Vector{}
		node.Residents = nil
		if err := c.wal.UpdateNode(node); err != nil {
			return err
		}
		c.ledger.AddNode(node)
		for class := range node.Capacity {
			c.knownClasses[class] = struct{}{}
		}
	}

	tasks, err := c.store.ListTasks()
	if err != nil {
		return err
	}
	// Graph first, then completions, so readiness comes out right
	// regardless of iteration order.
	for _, task := range tasks {
		if task.Terminal() {
			continue
		}
		if _, err := c.graph.Add(task.ID, task.DependsOn); err != nil {
			return err
		}
		if task.SubmittedSeq > c.submitSeq {
			c.submitSeq = task.SubmittedSeq
		}
	}
	for _, task := range tasks {
		if task.State == types.TaskCompleted {
			c.graph.Complete(task.ID)
		}
		if task.Terminal() {
			c.terminal.Add(task.ID, TaskStatus{
				State: task.State, Reason: task.ReasonCode,
				CheckpointRef: task.CheckpointRef,
			})
		}
	}
	for _, task := range tasks {
		if task.State != types.TaskRunning {
			continue
		}
		// Crash recovery: the execution handle is gone
		task.NodeID = ""
		if err := c.recoverTask(task, "restart"); err != nil {
			return err
		}
	}
	return nil
}

// Start begins the control loop
func (c *Core) Start() {
	go c.run()
}

// Stop stops the control loop and the event broker
func (c *Core) Stop() {
	close(c.stopCh)
	<-c.doneCh
	c.broker.Stop()
}

// Events returns a subscription to the lifecycle event stream
func (c *Core) Events() events.Subscriber {
	return c.broker.Subscribe()
}

// Unsubscribe releases an event subscription
func (c *Core) Unsubscribe(sub events.Subscriber) {
	c.broker.Unsubscribe(sub)
}

// kick requests a scheduling round without waiting for the timer
func (c *Core) kick() {
	select {
	case c.kickCh <- struct{}{}:
	default:
	}
}

// run is the control loop: rounds are event-triggered with a timer
// fallback, one at a time, single goroutine per resource domain
func (c *Core) run() {
	defer close(c.doneCh)

	c.mu.Lock()
	interval := c.policy.RoundInterval
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runRound()
		case <-c.kickCh:
			c.runRound()
		case <-c.stopCh:
			return
		}

		// The round may have applied a new interval
		c.mu.Lock()
		if c.policy.RoundInterval != interval {
			interval = c.policy.RoundInterval
			ticker.Reset(interval)
		}
		c.mu.Unlock()
	}
}

// SubmitTask validates and admits a task. The resource vector must
// name known resource classes and the tenant must be registered;
// dependency cycles are rejected before the task enters the graph.
func (c *Core) SubmitTask(spec TaskSpec) (string, error) {
	c.mu.Lock()
	for class := range spec.Request {
		if _, known := c.knownClasses[class]; !known {
			c.mu.Unlock()
			return "", fmt.Errorf("class %s: %w", class, ErrInvalidResourceClass)
		}
	}
	c.mu.Unlock()

	if _, err := c.store.GetTenant(spec.TenantID); err != nil {
		return "", fmt.Errorf("tenant %s: %w", spec.TenantID, ErrUnknownTenant)
	}

	caps := types.CapabilitiesFor(spec.Kind)
	maxRetries := spec.MaxRetries
	if maxRetries == 0 {
		maxRetries = caps.MaxRetries
	}

	id := uuid.New().String()
	ready, err := c.graph.Add(id, spec.DependsOn)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.submitSeq++
	seq := c.submitSeq
	c.mu.Unlock()

	now := time.Now()
	task := &types.Task{
		ID:             id,
		TenantID:       spec.TenantID,
		Kind:           spec.Kind,
		Request:        spec.Request.Clone(),
		StaticPriority: spec.StaticPriority,
		Deadline:       spec.Deadline,
		DependsOn:      spec.DependsOn,
		State:          types.TaskPending,
		MaxRetries:     maxRetries,
		SubmittedSeq:   seq,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ready {
		task.State = types.TaskReady
	}

	if err := c.wal.CreateTask(task); err != nil {
		c.graph.Remove(id)
		return "", err
	}

	metrics.TasksSubmitted.Inc()
	c.broker.Publish(&events.Event{
		ID: uuid.New().String(), Type: events.EventTaskSubmitted,
		TaskID: id, TenantID: spec.TenantID,
	})
	c.kick()
	return id, nil
}

// CancelTask cancels a task. Idempotent: cancelling a terminal task is
// a no-op. Pending and ready tasks are removed immediately; running
// tasks get a best-effort checkpoint before termination, with a hard
// timeout after which they are terminated without one.
func (c *Core) CancelTask(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, err := c.store.GetTask(taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil // already forgotten, terminal either way
		}
		return err
	}
	if task.Terminal() || c.cancelling[taskID] {
		return nil
	}

	switch task.State {
	case types.TaskRunning:
		c.cancelling[taskID] = true
		handle := c.handles[taskID]
		go c.cancelRunning(task, handle)
		return nil
	default:
		return c.finishLocked(task, types.TaskCancelled, types.ReasonCancelled)
	}
}

// cancelRunning checkpoints then terminates a running task. On
// checkpoint timeout the task is terminated anyway and the loss is
// logged as a lossy cancellation.
func (c *Core) cancelRunning(task *types.Task, handle TaskHandle) {
	c.mu.Lock()
	budget := c.policy.CancelTimeout
	c.mu.Unlock()

	reason := types.ReasonCancelled
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	if handle != nil {
		if cp, err := c.ckpt.Checkpoint(ctx, task, handle); err != nil {
			c.logger.Warn().Str("task_id", task.ID).Err(err).
				Msg("lossy cancellation: checkpoint failed within budget")
			reason = types.ReasonLossyCancelled
		} else {
			task.CheckpointRef = cp.ID
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), budget)
		if err := handle.Stop(stopCtx); err != nil {
			c.logger.Warn().Str("task_id", task.ID).Err(err).Msg("force terminated")
		}
		stopCancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancelling, task.ID)

	current, err := c.store.GetTask(task.ID)
	if err != nil {
		return
	}
	current.CheckpointRef = task.CheckpointRef
	if err := c.finishLocked(current, types.TaskCancelled, reason); err != nil {
		c.logger.Error().Str("task_id", task.ID).Err(err).Msg("cancel finalization failed")
	}
}

// finishLocked moves a task to a terminal state, releasing whatever it
// holds. Caller holds c.mu.
func (c *Core) finishLocked(task *types.Task, state types.TaskState, reason types.ReasonCode) error {
	if err := transition(task, state); err != nil {
		return err
	}
	task.ReasonCode = reason
	task.UpdatedAt = time.Now()

	if res := c.reservations[task.ID]; res != nil {
		c.ledger.Release(res)
		delete(c.reservations, task.ID)
	}
	delete(c.handles, task.ID)
	task.NodeID = ""

	if err := c.wal.UpdateTask(task); err != nil {
		return err
	}

	c.terminal.Add(task.ID, TaskStatus{
		State: state, Reason: reason, CheckpointRef: task.CheckpointRef,
	})

	switch state {
	case types.TaskCompleted:
		for _, dep := range c.graph.Complete(task.ID) {
			c.promoteReady(dep)
		}
		c.broker.Publish(&events.Event{
			ID: uuid.New().String(), Type: events.EventTaskCompleted,
			TaskID: task.ID, TenantID: task.TenantID,
		})
	case types.TaskFailed:
		c.graph.Remove(task.ID)
		c.broker.Publish(&events.Event{
			ID: uuid.New().String(), Type: events.EventTaskFailed,
			TaskID: task.ID, TenantID: task.TenantID,
			Message: string(reason),
		})
	case types.TaskCancelled:
		c.graph.Remove(task.ID)
		c.broker.Publish(&events.Event{
			ID: uuid.New().String(), Type: events.EventTaskCancelled,
			TaskID: task.ID, TenantID: task.TenantID,
			Message: string(reason),
		})
	}

	c.kick()
	return nil
}

// promoteReady moves a pending task to ready after its last dependency
// completed. Caller holds c.mu.
func (c *Core) promoteReady(taskID string) {
	task, err := c.store.GetTask(taskID)
	if err != nil || task.State != types.TaskPending {
		return
	}
	if err := transition(task, types.TaskReady); err != nil {
		return
	}
	task.UpdatedAt = time.Now()
	if err := c.wal.UpdateTask(task); err != nil {
		c.logger.Error().Str("task_id", taskID).Err(err).Msg("readiness update failed")
		return
	}
	c.broker.Publish(&events.Event{
		ID: uuid.New().String(), Type: events.EventTaskReady, TaskID: taskID,
	})
}

// UpdatePriority changes a task's static priority. Takes effect at the
// next scheduling round through re-scoring.
func (c *Core) UpdatePriority(taskID string, staticPriority int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, err := c.store.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("task %s: %w", taskID, ErrUnknownTask)
	}
	task.StaticPriority = staticPriority
	task.UpdatedAt = time.Now()
	if err := c.wal.UpdateTask(task); err != nil {
		return err
	}
	c.kick()
	return nil
}

// GetTaskStatus returns the task's state, assigned node and checkpoint
// reference. Terminal results outlive their task records through the
// terminal cache.
func (c *Core) GetTaskStatus(taskID string) (TaskStatus, error) {
	task, err := c.store.GetTask(taskID)
	if err == nil {
		return TaskStatus{
			State:         task.State,
			NodeID:        task.NodeID,
			CheckpointRef: task.CheckpointRef,
			Reason:        task.ReasonCode,
		}, nil
	}
	if status, ok := c.terminal.Get(taskID); ok {
		return status, nil
	}
	return TaskStatus{}, fmt.Errorf("task %s: %w", taskID, ErrUnknownTask)
}

// RegisterTenant registers an accounting entity. Tenants must exist
// before tasks can be submitted for them.
func (c *Core) RegisterTenant(tenant *types.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	tenant.CreatedAt = time.Now()
	if tenant.Usage == nil {
		tenant.Usage = types.Vector{}
	}
	return c.wal.CreateTenant(tenant)
}

// RegisterNode adds a worker node's capacity to the domain
func (c *Core) RegisterNode(node *types.Node) error {
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	node.Health = types.NodeHealthy
	node.Allocated = types.Vector{}
	node.LastHeartbeat = time.Now()
	node.CreatedAt = time.Now()

	if err := c.wal.CreateNode(node); err != nil {
		return err
	}

	c.mu.Lock()
	c.ledger.AddNode(node)
	for class := range node.Capacity {
		c.knownClasses[class] = struct{}{}
	}
	c.mu.Unlock()

	c.broker.Publish(&events.Event{
		ID: uuid.New().String(), Type: events.EventNodeJoined, NodeID: node.ID,
	})
	c.kick()
	return nil
}

// DeregisterNode removes a node. Resident tasks are reassigned as if
// the node had failed.
func (c *Core) DeregisterNode(nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	residents := c.ledger.RemoveNode(nodeID)
	if err := c.wal.DeleteNode(nodeID); err != nil {
		return err
	}

	c.broker.Publish(&events.Event{
		ID: uuid.New().String(), Type: events.EventNodeLeft, NodeID: nodeID,
	})
	c.recoverResidents(nodeID, residents)
	c.kick()
	return nil
}

// Heartbeat records liveness for a node. Called by workers; the
// control loop marks nodes unreachable when heartbeats stop.
func (c *Core) Heartbeat(nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, err := c.store.GetNode(nodeID)
	if err != nil {
		return err
	}
	node.LastHeartbeat = time.Now()
	if node.Health != types.NodeHealthy {
		node.Health = types.NodeHealthy
		c.ledger.SetHealth(nodeID, types.NodeHealthy)
	}
	return c.wal.UpdateNode(node)
}

// GetUtilizationSnapshot returns per-resource, per-tenant usage for
// external reporting and chargeback
func (c *Core) GetUtilizationSnapshot() (*types.UtilizationSnapshot, error) {
	snap := c.ledger.Snapshot()
	tenants, err := c.store.ListTenants()
	if err != nil {
		return nil, err
	}

	out := &types.UtilizationSnapshot{
		TakenAt: snap.TakenAt,
		Nodes:   make(map[string]types.NodeUtilization, len(snap.Nodes)),
		Tenants: make(map[string]types.TenantUtilization, len(tenants)),
	}
	for _, node := range snap.Nodes {
		out.Nodes[node.ID] = types.NodeUtilization{
			Capacity:  node.Capacity,
			Allocated: node.Allocated,
			Health:    node.Health,
		}
	}
	for _, tenant := range tenants {
		usage := snap.TenantUsage[tenant.ID]
		if usage == nil {
			usage = types.Vector{}
		}
		out.Tenants[tenant.ID] = types.TenantUtilization{
			Guaranteed:   tenant.Guaranteed,
			BurstCeiling: tenant.BurstCeiling,
			Usage:        usage,
			DominantUse:  usage.MaxRatio(snap.Capacity),
		}
	}
	return out, nil
}

// Configure replaces policy parameters. The change is applied at the
// next round boundary, never mid-round.
func (c *Core) Configure(p types.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pol := p
	c.pending = &pol
	c.kick()
}

// applyPendingPolicy swaps in a pending policy at the round boundary.
// Caller holds c.mu.
func (c *Core) applyPendingPolicy() {
	if c.pending == nil {
		return
	}
	c.policy = *c.pending
	c.pending = nil
	c.quota.Configure(c.policy.Reclamation, c.policy.GracePeriod)
	c.engine.Configure(c.policy)
	c.monitor.Configure(c.policy)
	c.ckpt.Configure(c.policy)
	c.logger.Info().Msg("policy updated at round boundary")
}
