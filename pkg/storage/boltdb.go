package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/droverhq/drover/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketTasks           = []byte("tasks")
	bucketTenants         = []byte("tenants")
	bucketNodes           = []byte("nodes")
	bucketCheckpoints     = []byte("checkpoints")
	bucketCheckpointBlobs = []byte("checkpoint_blobs")
	bucketLog             = []byte("wal")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "drover.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketTasks,
			bucketTenants,
			bucketNodes,
			bucketCheckpoints,
			bucketCheckpointBlobs,
			bucketLog,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Task operations
func (s *BoltStore) CreateTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) GetTask(id string) (*types.Task, error) {
	var task types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListTasks() ([]*types.Task, error) {
	var tasks []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	return tasks, err
}

func (s *BoltStore) ListTasksByTenant(tenantID string) ([]*types.Task, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Task
	for _, task := range tasks {
		if task.TenantID == tenantID {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

func (s *BoltStore) ListTasksByNode(nodeID string) ([]*types.Task, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Task
	for _, task := range tasks {
		if task.NodeID == nodeID {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateTask(task *types.Task) error {
	return s.CreateTask(task) // Same as create (upsert)
}

func (s *BoltStore) DeleteTask(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.Delete([]byte(id))
	})
}

// Tenant operations
func (s *BoltStore) CreateTenant(tenant *types.Tenant) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		data, err := json.Marshal(tenant)
		if err != nil {
			return err
		}
		return b.Put([]byte(tenant.ID), data)
	})
}

func (s *BoltStore) GetTenant(id string) (*types.Tenant, error) {
	var tenant types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("tenant %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &tenant)
	})
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *BoltStore) ListTenants() ([]*types.Tenant, error) {
	var tenants []*types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		return b.ForEach(func(k, v []byte) error {
			var tenant types.Tenant
			if err := json.Unmarshal(v, &tenant); err != nil {
				return err
			}
			tenants = append(tenants, &tenant)
			return nil
		})
	})
	return tenants, err
}

func (s *BoltStore) UpdateTenant(tenant *types.Tenant) error {
	return s.CreateTenant(tenant)
}

// Node operations
func (s *BoltStore) CreateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return b.Put([]byte(node.ID), data)
	})
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	return s.CreateNode(node)
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.Delete([]byte(id))
	})
}

// Checkpoint operations. The index entry and the blob are written in a
// single transaction so a crash cannot leave a dangling reference.
func (s *BoltStore) PutCheckpoint(cp *types.Checkpoint, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketCheckpoints)
		data, err := json.Marshal(cp)
		if err != nil {
			return err
		}
		if err := idx.Put([]byte(cp.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketCheckpointBlobs).Put([]byte(cp.Location), blob)
	})
}

func (s *BoltStore) GetCheckpoint(id string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &cp)
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *BoltStore) ListCheckpointsByTask(taskID string) ([]*types.Checkpoint, error) {
	var cps []*types.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		return b.ForEach(func(k, v []byte) error {
			var cp types.Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return err
			}
			if cp.TaskID == taskID {
				cps = append(cps, &cp)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// Newest first: recovery walks the list in order
	sort.Slice(cps, func(i, j int) bool { return cps[i].Seq > cps[j].Seq })
	return cps, nil
}

func (s *BoltStore) GetCheckpointBlob(location string) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpointBlobs)
		data := b.Get([]byte(location))
		if data == nil {
			return fmt.Errorf("checkpoint blob %s: %w", location, ErrNotFound)
		}
		// Copy out: BoltDB data is only valid during the transaction
		blob = bytes.Clone(data)
		return nil
	})
	return blob, err
}

func (s *BoltStore) DeleteCheckpoint(cp *types.Checkpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketCheckpoints).Delete([]byte(cp.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketCheckpointBlobs).Delete([]byte(cp.Location))
	})
}
