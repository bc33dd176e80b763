/*
Package priority computes effective task priorities for scheduling
rounds.

A task's effective priority is recomputed every round, never frozen
at submission:

	P = w_s * static + w_d * urgency(deadline) + w_f * debt(tenant) + w_a * age(queued)

The urgency term is zero outside the configured horizon and rises
hyperbolically as the deadline approaches (horizon/remaining - 1),
clamped at a configurable ceiling once the deadline passes. Expired
deadlines therefore max out the term rather than growing without
bound, and tasks that already missed their deadline still run.

The debt term comes from the fairness monitor: positive for tenants
running under their guaranteed share (boosting them), negative for
tenants over it.

The age term grows without bound, one weight unit per configured
horizon spent waiting. A task facing a constant stream of
higher-priority arrivals therefore closes any fixed static gap in
bounded time.

Rank orders a round's ready tasks by score descending with exact ties
broken by submission order, which is the remaining starvation guard:
two forever-equal tasks drain in FIFO order.

# Usage

	e := priority.NewEngine(policy)
	ranked := e.Rank(readyTasks, monitor.Debts(), time.Now())
	for _, sc := range ranked {
		// try to place sc.Task
	}

Weights are replaced via Configure, applied by the scheduler at round
boundaries only.
*/
package priority
