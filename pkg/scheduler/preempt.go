package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/droverhq/drover/pkg/events"
	"github.com/droverhq/drover/pkg/fairness"
	"github.com/droverhq/drover/pkg/metrics"
	"github.com/droverhq/drover/pkg/preemption"
	"github.com/droverhq/drover/pkg/priority"
	"github.com/droverhq/drover/pkg/types"
)

// candidatesFor builds the preemption candidate set from currently
// running tasks. Tasks already being preempted or cancelled are not
// offered twice. Caller holds c.mu.
func (c *Core) candidatesFor(tasks []*types.Task, debts map[string]float64, now time.Time) []preemption.Candidate {
	var candidates []preemption.Candidate
	for _, task := range tasks {
		if task.State != types.TaskRunning || c.preempting[task.ID] || c.cancelling[task.ID] {
			continue
		}
		cand := preemption.Candidate{
			Task:  task,
			Score: c.engine.Score(task, debts[task.TenantID], now),
			Freed: task.Request.Clone(),
		}
		if cps, err := c.store.ListCheckpointsByTask(task.ID); err == nil && len(cps) > 0 {
			cand.HasCheckpoint = true
			cand.CheckpointAge = now.Sub(cps[0].CreatedAt)
		}
		candidates = append(candidates, cand)
	}
	return candidates
}

// evaluatePreemption decides whether unplaced ready tasks justify
// suspending running ones. Quota reclamation runs first: a tenant
// demanding within its guarantee may displace burst holders whose
// grace has lapsed. Priority preemption covers the rest, gated by the
// configured margin. Caller holds c.mu.
func (c *Core) evaluatePreemption(unplaced []priority.Scored, tasks []*types.Task, tenantByID map[string]*types.Tenant, debts map[string]float64, now time.Time) {
	if len(unplaced) == 0 {
		return
	}
	candidates := c.candidatesFor(tasks, debts, now)
	if len(candidates) == 0 {
		return
	}

	tenants := make([]*types.Tenant, 0, len(tenantByID))
	for _, tenant := range tenantByID {
		tenants = append(tenants, tenant)
	}
	usage := c.ledger.Snapshot().TenantUsage
	holdings := c.quota.BurstHoldings(tenants, usage, now)
	overGuarantee := make(map[string]bool)
	for _, h := range holdings {
		if h.Reclaimable(now) {
			overGuarantee[h.TenantID] = true
		}
	}

	// Capacity already being freed by in-flight preemptions counts
	// against demand, otherwise every round until the victims finish
	// suspending would claim more victims.
	pendingFree := types.Vector{}
	for id := range c.preempting {
		if task, err := c.store.GetTask(id); err == nil {
			pendingFree = pendingFree.Add(task.Request)
		}
	}

	taken := make(map[string]bool)
	for _, sc := range unplaced {
		if pendingFree.Fits(sc.Task.Request) {
			pendingFree = pendingFree.Sub(sc.Task.Request)
			continue
		}
		remaining := make([]preemption.Candidate, 0, len(candidates))
		for _, cand := range candidates {
			if !taken[cand.Task.ID] {
				remaining = append(remaining, cand)
			}
		}
		if len(remaining) == 0 {
			return
		}

		var victims []preemption.Candidate
		trigger := preemption.TriggerPriority

		if c.withinGuarantee(sc.Task, tenantByID, usage) && len(overGuarantee) > 0 {
			var burst []preemption.Candidate
			for _, cand := range remaining {
				if overGuarantee[cand.Task.TenantID] {
					burst = append(burst, cand)
				}
			}
			victims = preemption.SelectVictims(burst, sc.Task.Request)
			trigger = preemption.TriggerQuota
		}
		if len(victims) == 0 {
			victims = preemption.ForPriority(remaining, sc.Score, c.policy.PreemptionMargin, sc.Task.Request)
			trigger = preemption.TriggerPriority
		}

		for _, v := range victims {
			taken[v.Task.ID] = true
			c.startPreemption(v.Task, trigger)
		}
		if trigger == preemption.TriggerQuota && len(victims) > 0 {
			c.broker.Publish(&events.Event{
				ID: uuid.New().String(), Type: events.EventQuotaReclaimed,
				TenantID: sc.Task.TenantID, TaskID: sc.Task.ID,
				Metadata: map[string]string{"victims": strconv.Itoa(len(victims))},
			})
		}
	}
}

// withinGuarantee reports whether placing the task would keep its
// tenant inside guaranteed quota
func (c *Core) withinGuarantee(task *types.Task, tenantByID map[string]*types.Tenant, usage map[string]types.Vector) bool {
	tenant := tenantByID[task.TenantID]
	if tenant == nil {
		return false
	}
	used := usage[task.TenantID]
	if used == nil {
		used = types.Vector{}
	}
	return tenant.Guaranteed.Fits(used.Add(task.Request))
}

// handleInterventions applies the fairness monitor's verdicts. Soft
// interventions already de-weight the tenant through debts; hard ones
// preempt the offender's burst surplus. Caller holds c.mu.
func (c *Core) handleInterventions(interventions []fairness.Intervention, tasks []*types.Task, debts map[string]float64, now time.Time) {
	for _, iv := range interventions {
		if !iv.Hard {
			metrics.FairnessInterventions.WithLabelValues("soft").Inc()
			if c.policy.ExposeSoftIntervention {
				c.broker.Publish(&events.Event{
					ID: uuid.New().String(), Type: events.EventFairnessSoft,
					TenantID: iv.TenantID,
				})
			}
			continue
		}

		metrics.FairnessInterventions.WithLabelValues("hard").Inc()
		c.broker.Publish(&events.Event{
			ID: uuid.New().String(), Type: events.EventFairnessHard,
			TenantID: iv.TenantID,
		})

		tenant, err := c.store.GetTenant(iv.TenantID)
		if err != nil {
			continue
		}
		over := c.ledger.TenantUsage(iv.TenantID).Sub(tenant.Guaranteed)
		if over.IsZero() {
			continue
		}
		var offenders []preemption.Candidate
		for _, cand := range c.candidatesFor(tasks, debts, now) {
			if cand.Task.TenantID == iv.TenantID {
				offenders = append(offenders, cand)
			}
		}
		for _, v := range preemption.SelectVictims(offenders, over) {
			c.startPreemption(v.Task, preemption.TriggerFairness)
		}
	}
}

// startPreemption marks a task as being preempted and suspends it off
// the round loop. Caller holds c.mu.
func (c *Core) startPreemption(task *types.Task, trigger preemption.Trigger) {
	if c.preempting[task.ID] || c.cancelling[task.ID] {
		return
	}
	handle := c.handles[task.ID]
	if handle == nil {
		return
	}
	c.preempting[task.ID] = true
	go c.preemptTask(task, handle, trigger)
}

// preemptTask checkpoints and suspends a running task. On checkpoint
// failure the timeout action decides: force-suspend loses work since
// the last durable checkpoint, abort leaves the task running.
func (c *Core) preemptTask(task *types.Task, handle TaskHandle, trigger preemption.Trigger) {
	cp, err := c.ckpt.Checkpoint(context.Background(), task, handle)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer delete(c.preempting, task.ID)

	if c.cancelling[task.ID] {
		return
	}

	if err != nil {
		if c.policy.CheckpointTimeoutAction == types.TimeoutAbortPreemption {
			c.logger.Warn().Str("task_id", task.ID).Err(err).
				Msg("checkpoint failed, preemption aborted")
			return
		}
		c.logger.Warn().Str("task_id", task.ID).Err(err).
			Msg("checkpoint failed, force-suspending")
	} else {
		task.CheckpointRef = cp.ID
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), c.policy.CancelTimeout)
	if err := handle.Stop(stopCtx); err != nil {
		c.logger.Error().Str("task_id", task.ID).Err(err).Msg("suspend failed")
	}
	cancel()

	nodeID := task.NodeID
	c.releaseLocked(task)

	target := types.TaskCheckpointed
	if task.CheckpointRef == "" {
		target = types.TaskReady
	}
	if err := transition(task, target); err != nil {
		c.logger.Error().Str("task_id", task.ID).Err(err).Msg("preemption transition failed")
		return
	}
	task.UpdatedAt = time.Now()
	if err := c.wal.UpdateTask(task); err != nil {
		c.logger.Error().Str("task_id", task.ID).Err(err).Msg("preemption persist failed")
	}

	metrics.TasksPreempted.WithLabelValues(string(trigger)).Inc()
	c.broker.Publish(&events.Event{
		ID: uuid.New().String(), Type: events.EventTaskPreempted,
		TaskID: task.ID, TenantID: task.TenantID, NodeID: nodeID,
		Metadata: map[string]string{"trigger": string(trigger)},
	})
	c.kick()
}
