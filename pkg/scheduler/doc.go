/*
Package scheduler implements Drover's core: round-based placement of
multi-tenant tasks onto nodes with quota enforcement, dependency
ordering, deadline-aware priorities, checkpoint-based preemption and
crash recovery.

The scheduler package ties every other package together. It owns the
resource ledger, drives the quota manager, dependency graph, priority
engine, fairness monitor and checkpoint manager, and runs the single
control loop in which all placement decisions are made.

# Architecture

	┌───────────────────── SCHEDULER CORE ─────────────────────┐
	│                                                           │
	│  SubmitTask / CancelTask / RegisterNode / Heartbeat       │
	│       │                                                   │
	│       ▼  (validate, persist via WAL, kick)                │
	│  ┌─────────────────────────────────────────────┐          │
	│  │            Control Loop (run)               │          │
	│  │   ticker ──┐                                │          │
	│  │   kickCh ──┴──► runRound()                  │          │
	│  └──────────────────┬──────────────────────────┘          │
	│                     ▼                                     │
	│  ┌─────────────────────────────────────────────┐          │
	│  │               One Round                     │          │
	│  │  1. apply pending policy                    │          │
	│  │  2. node health sweep                       │          │
	│  │  3. re-admit checkpointed tasks             │          │
	│  │  4. fairness audit                          │          │
	│  │  5. rank ready tasks                        │          │
	│  │  6. admission check + placement             │          │
	│  │  7. preemption (quota/priority/fairness)    │          │
	│  │  8. terminal GC + metric gauges             │          │
	│  └─────────────────────────────────────────────┘          │
	│                                                           │
	│  Collaborators:                                           │
	│    ledger     - atomic capacity accounting                │
	│    quota      - guaranteed/burst admission                │
	│    depgraph   - DAG readiness                             │
	│    priority   - effective priority scoring                │
	│    fairness   - monopolization detection                  │
	│    preemption - victim selection policy                   │
	│    checkpoint - durable task state                        │
	│    storage    - bbolt tables + write-ahead log            │
	│    events     - pub/sub notifications                     │
	└───────────────────────────────────────────────────────────┘

# Task Lifecycle

	pending ──► ready ──► running ──► completed
	              ▲          │ ▲
	              │          ▼ │
	              └── checkpointed        (preempted / node loss)
	                         │
	                         ▼
	              failed / cancelled      (terminal)

Tasks enter pending when they carry unmet dependencies and ready
otherwise. Placement happens only inside a round; external calls
record intent and kick the loop. Preempted tasks park in checkpointed
and re-enter ready at the next round, where admission control decides
whether contention has eased enough to run them again.

# Placement

Each round ranks ready tasks by effective priority and walks the
ranking greedily. For every task the quota manager is consulted first;
admitted tasks are placed on the healthy node with the most free
capacity that fits the full resource vector. Reservation is atomic per
node: either the whole vector is reserved or nothing is.

Tasks that fit no node feed the preemption controller. Three triggers
exist, checked in order:

  - quota: a tenant demanding within its guarantee displaces burst
    holders whose grace period has lapsed
  - priority: a ready task outscoring a running one beyond the
    configured margin displaces it
  - fairness: a hard intervention from the monitor preempts the
    offending tenant back toward its guarantee

Victims are always checkpointed before being suspended. Tasks of a
kind that cannot checkpoint are never preempted, whatever the
pressure.

# Execution

Actual task execution lives behind the Executor interface. StartTask
returns a TaskHandle through which the core snapshots state
(checkpointing) and stops the task; completion is reported on the
handle's Done channel. LocalExecutor is an in-process simulation used
by the serve command and the tests.

# Usage

	store, err := storage.NewBoltStore("/var/lib/drover")
	if err != nil {
		...
	}
	core, err := scheduler.New(scheduler.Config{
		Store:    store,
		Executor: myExecutor,
		Policy:   types.DefaultPolicy(),
	})
	if err != nil {
		...
	}
	core.Start()
	defer core.Stop()

	core.RegisterTenant(&types.Tenant{
		ID:           "analytics",
		Guaranteed:   types.Vector{types.ResourceCPU: 16},
		BurstCeiling: types.Vector{types.ResourceCPU: 32},
	})
	core.RegisterNode(&types.Node{
		ID:       "node-1",
		Capacity: types.Vector{types.ResourceCPU: 64},
	})

	id, err := core.SubmitTask(scheduler.TaskSpec{
		TenantID: "analytics",
		Kind:     types.KindMLJob,
		Request:  types.Vector{types.ResourceCPU: 8},
	})

	status, err := core.GetTaskStatus(id)

Subscribing to lifecycle events:

	sub := core.Events()
	defer core.Unsubscribe(sub)
	for event := range sub {
		fmt.Println(event.Type, event.TaskID)
	}

# Concurrency Model

One mutex guards all mutable core state. The control loop, external
API calls, preemption finalizers and cancellation finalizers all take
it; long operations (checkpoint snapshots, executor stops) run in
goroutines outside the lock and re-acquire it to finalize. Per-round
work is therefore serialized, which is what makes placement decisions
consistent: nothing reserves capacity behind the round's back except
the ledger itself, which is the single authority either way.

Policy updates via Configure are staged and applied only at the next
round boundary, so a round never observes two policies.

# Crash Recovery

All mutations go through a write-ahead log before reaching their
table. On startup the core reloads nodes (zeroing stale allocations),
rebuilds the dependency graph including completed-task edges, restores
the submission sequence, and routes every task that was running at
crash time through checkpoint recovery: newest verified checkpoint
first, otherwise a retried scratch restart, failing the task once
retries are exhausted.

# Metrics

Round duration, placement and preemption counters, and the per-node
and per-tenant gauges are exported through the metrics package on
every round.

# See Also

  - pkg/ledger for the capacity accounting rules
  - pkg/preemption for the victim selection policy
  - pkg/checkpoint for durability and integrity guarantees
  - pkg/types for the Policy knobs referenced throughout
*/
package scheduler
