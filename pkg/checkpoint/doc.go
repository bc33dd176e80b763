/*
Package checkpoint persists and restores task execution state.

Checkpoints are what make preemption cheap and node failure
survivable: a preempted or orphaned task resumes from its newest
verified checkpoint instead of starting over.

# Guarantees

  - Checkpoints supersede, never overwrite: each write gets a
    strictly increasing per-task sequence number, and sequence
    numbers survive process restarts
  - Every blob is stored with its SHA-256; reads verify the hash
  - Recovery walks checkpoints newest first and falls back past any
    unreadable or corrupt one; only when none verifies does it
    report ErrNoValidCheckpoint, signalling a scratch restart
  - Recovery mutates nothing, so repeated recovery attempts from the
    same checkpoint are idempotent

# Bounded Writes

A checkpoint write is bounded by the configured timeout covering both
the snapshot and the store write. Storage errors are retried with
exponential backoff up to the retry limit before escalating. What
happens on escalation is the caller's policy: the scheduler either
force-suspends (losing work since the last durable checkpoint) or
aborts the preemption, per configuration.

# Usage

	m := checkpoint.NewManager(store, policy)

	cp, err := m.Checkpoint(ctx, task, handle) // handle implements Source
	if errors.Is(err, checkpoint.ErrCheckpointTimeout) {
		// timeout action decides
	}

	cp, blob, err := m.Recover(task)
	if errors.Is(err, checkpoint.ErrNoValidCheckpoint) {
		// scratch restart, retry count incremented by the caller
	}

GC trims superseded checkpoints beyond the retention count; Purge
removes everything for a task at terminal cleanup.

The blob is opaque to this package. Executors define its format;
the manager only hashes and stores it.
*/
package checkpoint
