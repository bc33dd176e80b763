package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/droverhq/drover/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// LogOp names a state mutation recorded in the write-ahead log
type LogOp string

const (
	OpCreateTask   LogOp = "create_task"
	OpUpdateTask   LogOp = "update_task"
	OpDeleteTask   LogOp = "delete_task"
	OpCreateTenant LogOp = "create_tenant"
	OpUpdateTenant LogOp = "update_tenant"
	OpCreateNode   LogOp = "create_node"
	OpUpdateNode   LogOp = "update_node"
	OpDeleteNode   LogOp = "delete_node"
)

// LogEntry is one appended mutation. Data carries the JSON-encoded
// record (or the bare ID for deletes).
type LogEntry struct {
	Op        LogOp           `json:"op"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"ts"`
}

// AppendLog appends an entry to the write-ahead log bucket
func (s *BoltStore) AppendLog(entry *LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// ReplayLog iterates log entries in append order
func (s *BoltStore) ReplayLog(fn func(*LogEntry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt log entry: %w", err)
			}
			if err := fn(&entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// Log routes mutations through the write-ahead log before applying
// them to the backing tables. All scheduler state changes go through
// a Log so crash recovery can replay them.
type Log struct {
	store Store
}

// NewLog wraps a store with write-ahead logging
func NewLog(store Store) *Log {
	return &Log{store: store}
}

// Store returns the underlying store for read access
func (l *Log) Store() Store {
	return l.store
}

func (l *Log) append(op LogOp, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return l.store.AppendLog(&LogEntry{Op: op, Data: data})
}

// CreateTask logs and applies a task creation
func (l *Log) CreateTask(task *types.Task) error {
	if err := l.append(OpCreateTask, task); err != nil {
		return err
	}
	return l.store.CreateTask(task)
}

// UpdateTask logs and applies a task update
func (l *Log) UpdateTask(task *types.Task) error {
	if err := l.append(OpUpdateTask, task); err != nil {
		return err
	}
	return l.store.UpdateTask(task)
}

// DeleteTask logs and applies a task deletion
func (l *Log) DeleteTask(id string) error {
	if err := l.append(OpDeleteTask, id); err != nil {
		return err
	}
	return l.store.DeleteTask(id)
}

// CreateTenant logs and applies a tenant registration
func (l *Log) CreateTenant(tenant *types.Tenant) error {
	if err := l.append(OpCreateTenant, tenant); err != nil {
		return err
	}
	return l.store.CreateTenant(tenant)
}

// UpdateTenant logs and applies a tenant update
func (l *Log) UpdateTenant(tenant *types.Tenant) error {
	if err := l.append(OpUpdateTenant, tenant); err != nil {
		return err
	}
	return l.store.UpdateTenant(tenant)
}

// CreateNode logs and applies a node registration
func (l *Log) CreateNode(node *types.Node) error {
	if err := l.append(OpCreateNode, node); err != nil {
		return err
	}
	return l.store.CreateNode(node)
}

// UpdateNode logs and applies a node update
func (l *Log) UpdateNode(node *types.Node) error {
	if err := l.append(OpUpdateNode, node); err != nil {
		return err
	}
	return l.store.UpdateNode(node)
}

// DeleteNode logs and applies a node deregistration
func (l *Log) DeleteNode(id string) error {
	if err := l.append(OpDeleteNode, id); err != nil {
		return err
	}
	return l.store.DeleteNode(id)
}

// Replay applies every logged mutation to the given store in append
// order. Used to rebuild state on an empty store after a crash when
// the table files are lost but the log survives.
func Replay(log Store, into Store) error {
	return log.ReplayLog(func(entry *LogEntry) error {
		switch entry.Op {
		case OpCreateTask, OpUpdateTask:
			var task types.Task
			if err := json.Unmarshal(entry.Data, &task); err != nil {
				return err
			}
			return into.UpdateTask(&task)
		case OpDeleteTask:
			var id string
			if err := json.Unmarshal(entry.Data, &id); err != nil {
				return err
			}
			return into.DeleteTask(id)
		case OpCreateTenant, OpUpdateTenant:
			var tenant types.Tenant
			if err := json.Unmarshal(entry.Data, &tenant); err != nil {
				return err
			}
			return into.UpdateTenant(&tenant)
		case OpCreateNode, OpUpdateNode:
			var node types.Node
			if err := json.Unmarshal(entry.Data, &node); err != nil {
				return err
			}
			return into.UpdateNode(&node)
		case OpDeleteNode:
			var id string
			if err := json.Unmarshal(entry.Data, &id); err != nil {
				return err
			}
			return into.DeleteNode(id)
		default:
			return fmt.Errorf("unknown log op: %s", entry.Op)
		}
	})
}
