/*
Package quota enforces per-tenant guaranteed and burst resource
quotas.

Each tenant carries two vectors: a guaranteed quota that is never
denied to it under contention, and a burst ceiling it may reach only
by borrowing idle capacity. The manager answers one question per
task per round: Denied, Allowed (within guarantee) or AllowedBurst.

# Admission Rules

	usage + request <= guaranteed              -> Allowed
	usage + request <= ceiling AND idle fits   -> AllowedBurst
	otherwise                                  -> Denied

Denial is not terminal: the task stays ready and is re-checked every
round, so capacity freed later admits it without resubmission.

# Reclamation

Burst capacity is a loan. When guaranteed owners return demand, the
scheduler reclaims from burst holders first; BurstHoldings reports,
per tenant, the capacity held above guarantee. Two policies:

  - immediate: holdings are reclaimable the moment they are observed
  - graceful: a holding is flagged when first seen and only becomes
    reclaimable after the configured grace period; dropping back
    under guarantee clears the flag

The manager only decides eligibility. Actual reclamation is the
preemption controller's job, and it always checkpoints victims first.

# Usage

	m := quota.NewManager(types.ReclaimGraceful, 30*time.Second)

	switch m.CheckAdmission(tenant, usage, request, idle) {
	case quota.Allowed, quota.AllowedBurst:
		// place
	case quota.Denied:
		// stays ready
	}

The manager holds no allocation state of its own; callers pass the
round's usage view, and the ledger remains the capacity authority.
*/
package quota
