package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/droverhq/drover/pkg/events"
	"github.com/droverhq/drover/pkg/ledger"
	"github.com/droverhq/drover/pkg/metrics"
	"github.com/droverhq/drover/pkg/priority"
	"github.com/droverhq/drover/pkg/quota"
	"github.com/droverhq/drover/pkg/types"
)

// runRound executes one scheduling round. Rounds are the only place
// placement decisions are made; everything else just records state and
// kicks the loop.
func (c *Core) runRound() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.RoundDuration)
		metrics.RoundsTotal.Inc()
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.applyPendingPolicy()
	now := time.Now()

	c.checkNodeHealth(now)
	c.readmitCheckpointed()

	tasks, err := c.store.ListTasks()
	if err != nil {
		c.logger.Error().Err(err).Msg("round aborted: task listing failed")
		return
	}
	tenants, err := c.store.ListTenants()
	if err != nil {
		c.logger.Error().Err(err).Msg("round aborted: tenant listing failed")
		return
	}
	tenantByID := make(map[string]*types.Tenant, len(tenants))
	for _, tenant := range tenants {
		tenantByID[tenant.ID] = tenant
	}

	snap := c.ledger.Snapshot()
	debts := c.monitor.Debts()

	// Fairness audit runs every round; hard interventions feed the
	// preemption controller below.
	interventions := c.monitor.Observe(tenants, snap.TenantUsage, snap.Capacity, now)
	c.handleInterventions(interventions, tasks, debts, now)

	// Collect and rank ready tasks
	var ready []*types.Task
	for _, task := range tasks {
		if task.State == types.TaskReady && !c.cancelling[task.ID] {
			ready = append(ready, task)
		}
	}
	ranked := c.engine.Rank(ready, debts, now)

	idle := snap.Idle()
	var unplaced []priority.Scored
	for _, sc := range ranked {
		tenant := tenantByID[sc.Task.TenantID]
		if tenant == nil {
			continue
		}

		usage := c.ledger.TenantUsage(tenant.ID)
		adm := c.quota.CheckAdmission(tenant, usage, sc.Task.Request, idle)
		if adm == quota.Denied {
			metrics.AdmissionDenied.WithLabelValues(tenant.ID).Inc()
			continue // stays ready, re-scored next round
		}

		if c.place(sc.Task, adm) {
			idle = idle.Sub(sc.Task.Request)
			continue
		}
		unplaced = append(unplaced, sc)
	}

	c.evaluatePreemption(unplaced, tasks, tenantByID, debts, now)
	c.collectTerminal(tasks, now)
	c.updateGauges(tasks, snap)
}

// place attempts to reserve capacity for a task on some healthy node
// and start execution. Nodes with the most free capacity are tried
// first so load spreads. Returns false when no node fits.
func (c *Core) place(task *types.Task, adm quota.Admission) bool {
	snap := c.ledger.Snapshot()
	views := make([]ledger.NodeView, 0, len(snap.Nodes))
	for _, view := range snap.Nodes {
		if view.Health == types.NodeHealthy && view.Free.Fits(task.Request) {
			views = append(views, view)
		}
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].Free.MaxRatio(views[i].Capacity) > views[j].Free.MaxRatio(views[j].Capacity)
	})

	for _, view := range views {
		res, err := c.ledger.Reserve(view.ID, task.ID, task.TenantID, task.Request)
		if err != nil {
			// Lost a race with an async release/reserve; try the next
			// node within the same round.
			continue
		}
		if c.startTask(task, view.ID, res, adm) {
			return true
		}
		c.ledger.Release(res)
	}
	return false
}

// startTask transitions a placed task to running and hands it to the
// executor, resuming from its latest verified checkpoint if one
// exists. Caller holds c.mu.
func (c *Core) startTask(task *types.Task, nodeID string, res *ledger.Reservation, adm quota.Admission) bool {
	var blob []byte
	if task.CheckpointRef != "" {
		cp, data, err := c.ckpt.Recover(task)
		if err != nil {
			c.logger.Warn().Str("task_id", task.ID).Err(err).
				Msg("checkpoint unusable, starting from scratch")
			task.CheckpointRef = ""
		} else {
			task.CheckpointRef = cp.ID
			blob = data
			metrics.TasksRecovered.Inc()
		}
	}

	handle, err := c.executor.StartTask(context.Background(), task, nodeID, blob)
	if err != nil {
		c.logger.Error().Str("task_id", task.ID).Str("node_id", nodeID).
			Err(err).Msg("executor rejected task")
		return false
	}

	if err := transition(task, types.TaskRunning); err != nil {
		c.logger.Error().Str("task_id", task.ID).Err(err).Msg("placement aborted")
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = handle.Stop(stopCtx)
		cancel()
		return false
	}
	task.NodeID = nodeID
	task.UpdatedAt = time.Now()
	if err := c.wal.UpdateTask(task); err != nil {
		c.logger.Error().Str("task_id", task.ID).Err(err).Msg("placement persist failed")
	}

	c.reservations[task.ID] = res
	c.handles[task.ID] = handle
	go c.watch(task.ID, handle)

	metrics.TasksPlaced.Inc()
	c.broker.Publish(&events.Event{
		ID: uuid.New().String(), Type: events.EventTaskRunning,
		TaskID: task.ID, TenantID: task.TenantID, NodeID: nodeID,
		Metadata: map[string]string{"admission": adm.String()},
	})
	return true
}

// watch waits for a task handle to finish and reports the result
func (c *Core) watch(taskID string, handle TaskHandle) {
	select {
	case result := <-handle.Done():
		c.onTaskDone(taskID, handle, result)
	case <-c.stopCh:
	}
}

// onTaskDone handles execution results reported by the worker
func (c *Core) onTaskDone(taskID string, handle TaskHandle, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handles[taskID] != handle {
		// Stale watcher: the task was rescheduled onto a new handle
		return
	}
	if c.preempting[taskID] || c.cancelling[taskID] {
		// Preemption or cancellation owns this task's lifecycle now
		return
	}

	task, err := c.store.GetTask(taskID)
	if err != nil || task.State != types.TaskRunning {
		return
	}

	switch {
	case result.Err == nil:
		if err := c.finishLocked(task, types.TaskCompleted, types.ReasonSucceeded); err != nil {
			c.logger.Error().Str("task_id", taskID).Err(err).Msg("completion failed")
		}
	case result.Fatal:
		if err := c.finishLocked(task, types.TaskFailed, types.ReasonFatalTaskError); err != nil {
			c.logger.Error().Str("task_id", taskID).Err(err).Msg("failure handling failed")
		}
	default:
		c.releaseLocked(task)
		if err := c.recoverTask(task, "retry"); err != nil {
			c.logger.Error().Str("task_id", taskID).Err(err).Msg("recovery failed")
		}
		c.kick()
	}
}

// releaseLocked frees a task's reservation and handle without touching
// its state. Caller holds c.mu.
func (c *Core) releaseLocked(task *types.Task) {
	if res := c.reservations[task.ID]; res != nil {
		c.ledger.Release(res)
		delete(c.reservations, task.ID)
	}
	delete(c.handles, task.ID)
	task.NodeID = ""
}

// readmitCheckpointed moves checkpointed tasks back to ready so they
// compete in this round. Admission control keeps reclaimed burst tasks
// from thrashing back in while contention persists. Caller holds c.mu.
func (c *Core) readmitCheckpointed() {
	tasks, err := c.store.ListTasks()
	if err != nil {
		return
	}
	for _, task := range tasks {
		if task.State != types.TaskCheckpointed || c.preempting[task.ID] || c.cancelling[task.ID] {
			continue
		}
		if err := transition(task, types.TaskReady); err != nil {
			continue
		}
		task.UpdatedAt = time.Now()
		if err := c.wal.UpdateTask(task); err != nil {
			c.logger.Error().Str("task_id", task.ID).Err(err).Msg("re-admission persist failed")
		}
	}
}

// checkNodeHealth grades nodes by heartbeat age: past half the
// timeout a node is degraded and receives no new placements, past the
// full timeout it is unreachable and its resident tasks go through
// recovery. A fresh heartbeat clears the degraded mark. Caller holds
// c.mu.
func (c *Core) checkNodeHealth(now time.Time) {
	nodes, err := c.store.ListNodes()
	if err != nil {
		return
	}
	for _, node := range nodes {
		if node.Health == types.NodeUnreachable {
			continue
		}
		silence := now.Sub(node.LastHeartbeat)

		switch {
		case silence > c.policy.HeartbeatTimeout:
			c.logger.Warn().Str("node_id", node.ID).
				Dur("since_heartbeat", silence).
				Msg("node unreachable")
			c.setNodeHealth(node, types.NodeUnreachable)
			c.broker.Publish(&events.Event{
				ID: uuid.New().String(), Type: events.EventNodeDown, NodeID: node.ID,
			})

			residents, err := c.store.ListTasksByNode(node.ID)
			if err != nil {
				continue
			}
			ids := make([]string, 0, len(residents))
			for _, task := range residents {
				if task.State == types.TaskRunning {
					ids = append(ids, task.ID)
				}
			}
			c.recoverResidents(node.ID, ids)

		case silence > c.policy.HeartbeatTimeout/2:
			if node.Health == types.NodeDegraded {
				continue
			}
			c.logger.Warn().Str("node_id", node.ID).
				Dur("since_heartbeat", silence).
				Msg("node degraded, withholding placements")
			c.setNodeHealth(node, types.NodeDegraded)
			c.broker.Publish(&events.Event{
				ID: uuid.New().String(), Type: events.EventNodeDegraded, NodeID: node.ID,
			})

		default:
			if node.Health != types.NodeDegraded {
				continue
			}
			c.logger.Info().Str("node_id", node.ID).Msg("node recovered")
			c.setNodeHealth(node, types.NodeHealthy)
		}
	}
}

// setNodeHealth updates a node's health in the store and the ledger.
// Caller holds c.mu.
func (c *Core) setNodeHealth(node *types.Node, health types.NodeHealth) {
	node.Health = health
	c.ledger.SetHealth(node.ID, health)
	if err := c.wal.UpdateNode(node); err != nil {
		c.logger.Error().Str("node_id", node.ID).Err(err).Msg("health persist failed")
	}
}

// recoverResidents routes tasks that lost their node through the
// recovery path. Caller holds c.mu.
func (c *Core) recoverResidents(nodeID string, taskIDs []string) {
	for _, taskID := range taskIDs {
		task, err := c.store.GetTask(taskID)
		if err != nil {
			continue
		}
		if handle := c.handles[taskID]; handle != nil {
			// Best effort: the node may already be gone
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = handle.Stop(ctx)
			}()
		}
		c.releaseLocked(task)
		if task.State != types.TaskRunning {
			continue
		}
		if err := c.recoverTask(task, "node_failure"); err != nil {
			c.logger.Error().Str("task_id", taskID).Str("node_id", nodeID).
				Err(err).Msg("resident recovery failed")
		}
	}
}

// recoverTask resumes a task from its newest verified checkpoint, or
// restarts it from scratch with an incremented retry count when no
// checkpoint survives. Exhausted retries fail the task. Caller holds
// c.mu and has already released the task's reservation.
func (c *Core) recoverTask(task *types.Task, cause string) error {
	cp, _, err := c.ckpt.Recover(task)
	if err == nil {
		task.CheckpointRef = cp.ID
		if err := transition(task, types.TaskCheckpointed); err != nil {
			return err
		}
		task.UpdatedAt = time.Now()
		if err := c.wal.UpdateTask(task); err != nil {
			return err
		}
		c.broker.Publish(&events.Event{
			ID: uuid.New().String(), Type: events.EventTaskRecovered,
			TaskID: task.ID, TenantID: task.TenantID,
			Metadata: map[string]string{"cause": cause, "checkpoint": cp.ID},
		})
		return nil
	}

	task.RetryCount++
	task.CheckpointRef = ""
	if task.RetryCount > task.MaxRetries {
		return c.finishLocked(task, types.TaskFailed, types.ReasonRetriesExhausted)
	}
	if err := transition(task, types.TaskReady); err != nil {
		return err
	}
	task.UpdatedAt = time.Now()
	return c.wal.UpdateTask(task)
}

// collectTerminal garbage-collects terminal task records and their
// checkpoints once they age out of the accounting window. Status
// queries keep working through the terminal cache. Caller holds c.mu.
func (c *Core) collectTerminal(tasks []*types.Task, now time.Time) {
	for _, task := range tasks {
		if !task.Terminal() {
			continue
		}
		if now.Sub(task.UpdatedAt) < c.policy.AccountingWindow {
			continue
		}
		if err := c.ckpt.Purge(task.ID); err != nil {
			c.logger.Error().Str("task_id", task.ID).Err(err).Msg("checkpoint purge failed")
			continue
		}
		if err := c.wal.DeleteTask(task.ID); err != nil {
			c.logger.Error().Str("task_id", task.ID).Err(err).Msg("task GC failed")
		}
	}
}

// updateGauges exports the round's view of the world
func (c *Core) updateGauges(tasks []*types.Task, snap *ledger.Snapshot) {
	counts := make(map[types.TaskState]int)
	for _, task := range tasks {
		counts[task.State]++
	}
	for _, state := range []types.TaskState{
		types.TaskPending, types.TaskReady, types.TaskRunning,
		types.TaskCheckpointed, types.TaskCompleted, types.TaskFailed,
		types.TaskCancelled,
	} {
		metrics.TasksTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}

	health := make(map[types.NodeHealth]int)
	for _, view := range snap.Nodes {
		health[view.Health]++
		for class, quantity := range view.Capacity {
			metrics.NodeCapacity.WithLabelValues(view.ID, string(class)).Set(quantity)
		}
		for class, quantity := range view.Allocated {
			metrics.NodeAllocated.WithLabelValues(view.ID, string(class)).Set(quantity)
		}
	}
	for _, h := range []types.NodeHealth{types.NodeHealthy, types.NodeDegraded, types.NodeUnreachable} {
		metrics.NodesTotal.WithLabelValues(string(h)).Set(float64(health[h]))
	}

	for tenantID, usage := range snap.TenantUsage {
		for class, quantity := range usage {
			metrics.TenantUsage.WithLabelValues(tenantID, string(class)).Set(quantity)
		}
	}
}
