/*
Package ledger is the single source of truth for capacity in a Drover
domain.

Every resource allocation and release flows through the ledger; no
component assigns capacity directly. This is what makes the rest of
the scheduler simple: placement logic can be greedy and optimistic
because the ledger is the one place where over-allocation is made
impossible.

# Architecture

	┌──────────────────── RESOURCE LEDGER ─────────────────────┐
	│                                                           │
	│  Reserve(node, task, tenant, vector)                      │
	│       │                                                   │
	│       ▼   per-node mutex (serialized per node,            │
	│  ┌─────────────────────┐   concurrent across nodes)       │
	│  │  nodeState          │                                  │
	│  │   capacity          │   atomic full-vector check:      │
	│  │   allocated         │   all classes fit, or nothing    │
	│  │   health            │   is reserved                    │
	│  │   residents         │                                  │
	│  └─────────────────────┘                                  │
	│       │                                                   │
	│       ▼                                                   │
	│  tenant usage map (updated in the same critical section,  │
	│  so quota checks never observe a half-applied reserve)    │
	│                                                           │
	│  Release(reservation)  - idempotent, returns the full     │
	│                          vector exactly once              │
	│  Snapshot()            - consistent cluster-wide view     │
	└───────────────────────────────────────────────────────────┘

# Invariants

  - allocated never exceeds capacity in any resource class
  - a reservation is all-or-nothing across its vector
  - releasing twice is harmless; the vector returns exactly once
  - only healthy nodes accept new reservations
  - tenant usage equals the sum of its live reservations

# Usage

	l := ledger.New()
	l.AddNode(node)

	res, err := l.Reserve("node-1", taskID, tenantID, request)
	if errors.Is(err, ledger.ErrInsufficientCapacity) {
		// task stays ready, retried next round
	}
	defer l.Release(res)

	snap := l.Snapshot()
	idle := snap.Idle()

Snapshots are point-in-time copies safe to read without locks. They
are advisory: the authoritative admission decision is always the
Reserve call itself.
*/
package ledger
