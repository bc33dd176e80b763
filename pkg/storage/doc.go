/*
Package storage provides bbolt-backed persistence for Drover's
scheduler state.

State lives in a single database file with one bucket per table plus
an append-only write-ahead log. Values are JSON; keys are entity IDs,
except the log, whose keys are big-endian sequence numbers so cursor
iteration yields append order.

# Architecture

	┌────────────────────── BOLT STORE ────────────────────────┐
	│                                                           │
	│  drover.db                                                │
	│  ┌──────────────┬──────────────────────────────────────┐  │
	│  │ bucket       │ contents                             │  │
	│  ├──────────────┼──────────────────────────────────────┤  │
	│  │ tasks        │ task ID -> Task JSON                 │  │
	│  │ tenants      │ tenant ID -> Tenant JSON             │  │
	│  │ nodes        │ node ID -> Node JSON                 │  │
	│  │ checkpoints  │ checkpoint ID -> Checkpoint JSON     │  │
	│  │ checkpoint_  │ location -> opaque blob              │  │
	│  │   blobs      │                                      │  │
	│  │ wal          │ seq (8-byte BE) -> LogEntry JSON     │  │
	│  └──────────────┴──────────────────────────────────────┘  │
	│                                                           │
	│  Store interface - CRUD per table + AppendLog/ReplayLog   │
	│  Log wrapper     - append to wal, then apply to table     │
	│  Replay          - rebuild tables from the log            │
	└───────────────────────────────────────────────────────────┘

# Write-Ahead Discipline

The Log wrapper is how the scheduler mutates state: every create,
update and delete is serialized to the wal bucket before the table
apply. After a crash, Replay can reconstruct the tables from the log
alone by applying entries in append order with last-write-wins
semantics.

# Usage

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		...
	}
	defer store.Close()

	wal := storage.NewLog(store)
	if err := wal.CreateTask(task); err != nil {
		...
	}

	task, err := store.GetTask(id)
	if errors.Is(err, storage.ErrNotFound) {
		...
	}

Checkpoint listings come back newest first (descending Seq), which is
the order recovery wants them in.

# Characteristics

bbolt gives single-writer, multi-reader transactions with fsync on
commit. Writes are durable when the call returns. The store is safe
for concurrent use; callers needing cross-call atomicity (the
scheduler core) serialize above it.

# See Also

  - pkg/scheduler for how restore() consumes this package
  - pkg/checkpoint for the integrity rules layered on blobs
*/
package storage
