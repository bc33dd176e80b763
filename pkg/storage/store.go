package storage

import (
	"errors"

	"github.com/droverhq/drover/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Store defines the interface for scheduler state storage.
// Implemented by the BoltDB-backed store.
type Store interface {
	// Tasks
	CreateTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks() ([]*types.Task, error)
	ListTasksByTenant(tenantID string) ([]*types.Task, error)
	ListTasksByNode(nodeID string) ([]*types.Task, error)
	UpdateTask(task *types.Task) error
	DeleteTask(id string) error

	// Tenants
	CreateTenant(tenant *types.Tenant) error
	GetTenant(id string) (*types.Tenant, error)
	ListTenants() ([]*types.Tenant, error)
	UpdateTenant(tenant *types.Tenant) error

	// Nodes
	CreateNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNode(id string) error

	// Checkpoints. Index entries and blobs are written together;
	// checkpoints are immutable once written.
	PutCheckpoint(cp *types.Checkpoint, blob []byte) error
	GetCheckpoint(id string) (*types.Checkpoint, error)
	// ListCheckpointsByTask returns checkpoints ordered by descending
	// sequence number (newest first).
	ListCheckpointsByTask(taskID string) ([]*types.Checkpoint, error)
	GetCheckpointBlob(location string) ([]byte, error)
	DeleteCheckpoint(cp *types.Checkpoint) error

	// Write-ahead log
	AppendLog(entry *LogEntry) error
	ReplayLog(fn func(*LogEntry) error) error

	// Utility
	Close() error
}
