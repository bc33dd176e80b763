/*
Package types defines the core data structures shared across Drover.

This package contains the domain model: resource vectors, tasks and
their states, tenants, nodes, checkpoints and the scheduling policy.
It has no dependencies on other Drover packages, making it safe to
import from anywhere.

# Core Types

Vector:
  - Map from resource class (cpu, memory, gpu) to quantity
  - Value semantics: Add/Sub/Clone return new vectors
  - Sub clamps at zero, quantities are never negative
  - Fits gives componentwise capacity checks
  - MaxRatio computes the dominant share against a capacity

Task:
  - One schedulable unit of work with a full resource vector
  - Carries static priority, optional deadline, dependencies
  - SubmittedSeq provides the FIFO tie-break for equal priorities
  - State machine: pending, ready, running, checkpointed, and the
    terminals completed, failed, cancelled
  - ReasonCode distinguishes why a terminal state was reached

Tenant:
  - Accounting entity owning tasks
  - Guaranteed: capacity never denied to it under contention
  - BurstCeiling: absolute cap, usable only from idle capacity

Node:
  - Worker with capacity, health and resident task IDs
  - Health: healthy, degraded, unreachable

Checkpoint:
  - Immutable record of persisted task state
  - Seq orders checkpoints per task; newer supersedes older
  - SHA256 verified on every read

Policy:
  - Every runtime knob in one YAML-mappable struct
  - Priority weights, urgency horizon, reclamation mode and grace,
    preemption margin, fairness thresholds and windows, checkpoint
    timeout/retries/retention, round interval, heartbeat timeout
  - DefaultPolicy returns sane defaults; the scheduler applies
    changes only at round boundaries

# Task Kinds

Kinds attach capabilities to tasks. CapabilitiesFor reports whether a
kind supports checkpointing (build and service kinds do not, and are
therefore never preempted) and its default retry budget. Unknown
kinds fall back to generic.

# Usage

	request := types.Vector{
		types.ResourceCPU:    4,
		types.ResourceMemory: 8192,
	}

	if node.Capacity.Sub(node.Allocated).Fits(request) {
		// placeable
	}

	share := usage.MaxRatio(clusterCapacity) // dominant share, 0..1

# Thread Safety

Types here are plain data. Vectors are maps: clone before sharing
across goroutines that mutate. Synchronization is the caller's
concern; the scheduler core serializes all access to shared state.

# See Also

  - pkg/ledger for how vectors are reserved and released
  - pkg/scheduler for the state machine transition rules
*/
package types
