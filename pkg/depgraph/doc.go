/*
Package depgraph maintains the task dependency DAG.

The graph tracks which tasks wait on which, promotes dependents when
their last dependency completes, and rejects any submission that
would close a cycle. It is deliberately independent of resource
concerns: readiness here means "all dependencies completed", nothing
more.

# Semantics

  - A task may depend on tasks not yet submitted; it waits for them
  - Completed dependencies are discounted at submission time
  - Cycle detection runs before any mutation, so a rejected task
    leaves the graph untouched
  - Complete(taskID) returns the dependents that just became ready
  - Remove(taskID) drops a cancelled or failed task without
    completing it; its dependents keep waiting forever, because a
    task whose dependency failed must not run

# Usage

	g := depgraph.New()

	ready, err := g.Add(taskID, deps)
	if errors.Is(err, depgraph.ErrCyclicDependency) {
		// rejected at submission
	}

	for _, id := range g.Complete(taskID) {
		// promote id to ready
	}

All methods are safe for concurrent use.
*/
package depgraph
