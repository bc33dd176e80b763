package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/droverhq/drover/pkg/types"
	"github.com/google/uuid"
)

var (
	// ErrInsufficientCapacity is returned when a reservation does not
	// fit. Recoverable: the task stays ready and is retried next round.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrUnknownNode is returned for reservations against nodes the
	// ledger does not track
	ErrUnknownNode = errors.New("unknown node")
)

// Reservation is a handle for reserved capacity. Releasing it returns
// the full vector to the node and the tenant's usage accounting.
type Reservation struct {
	ID       string
	NodeID   string
	TaskID   string
	TenantID string
	Vector   types.Vector
	Created  time.Time

	mu       sync.Mutex
	released bool
}

type nodeState struct {
	mu        sync.Mutex
	capacity  types.Vector
	allocated types.Vector
	health    types.NodeHealth
	residents map[string]struct{}
}

// Ledger is the single source of truth for capacity. All allocation
// and release goes through Reserve/Release; no component assigns
// resources directly. Reservations on one node serialize on that
// node's lock; different nodes proceed independently.
type Ledger struct {
	mu      sync.RWMutex // guards the maps, not per-node state
	nodes   map[string]*nodeState
	usage   map[string]types.Vector // tenant ID -> current usage
	usageMu sync.Mutex
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		nodes: make(map[string]*nodeState),
		usage: make(map[string]types.Vector),
	}
}

// AddNode starts tracking a node's capacity
func (l *Ledger) AddNode(node *types.Node) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ns := &nodeState{
		capacity:  node.Capacity.Clone(),
		allocated: node.Allocated.Clone(),
		health:    node.Health,
		residents: make(map[string]struct{}),
	}
	if ns.allocated == nil {
		ns.allocated = types.Vector{}
	}
	for _, id := range node.Residents {
		ns.residents[id] = struct{}{}
	}
	l.nodes[node.ID] = ns
}

// RemoveNode stops tracking a node and returns the IDs of tasks that
// were resident on it. The caller routes those tasks to recovery;
// nothing is released implicitly.
func (l *Ledger) RemoveNode(nodeID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ns, ok := l.nodes[nodeID]
	if !ok {
		return nil
	}
	delete(l.nodes, nodeID)

	ns.mu.Lock()
	defer ns.mu.Unlock()
	residents := make([]string, 0, len(ns.residents))
	for id := range ns.residents {
		residents = append(residents, id)
	}
	return residents
}

// SetHealth updates the tracked health of a node
func (l *Ledger) SetHealth(nodeID string, health types.NodeHealth) {
	l.mu.RLock()
	ns, ok := l.nodes[nodeID]
	l.mu.RUnlock()
	if !ok {
		return
	}
	ns.mu.Lock()
	ns.health = health
	ns.mu.Unlock()
}

// Reserve atomically reserves the full vector on a node: either every
// class fits and all of it is reserved, or nothing is. Tenant usage is
// updated in the same critical section.
func (l *Ledger) Reserve(nodeID, taskID, tenantID string, vec types.Vector) (*Reservation, error) {
	l.mu.RLock()
	ns, ok := l.nodes[nodeID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, ErrUnknownNode)
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.health != types.NodeHealthy {
		return nil, fmt.Errorf("node %s is %s: %w", nodeID, ns.health, ErrInsufficientCapacity)
	}

	free := ns.capacity.Sub(ns.allocated)
	if !free.Fits(vec) {
		return nil, fmt.Errorf("node %s: %w", nodeID, ErrInsufficientCapacity)
	}

	ns.allocated = ns.allocated.Add(vec)
	ns.residents[taskID] = struct{}{}

	l.usageMu.Lock()
	current := l.usage[tenantID]
	if current == nil {
		current = types.Vector{}
	}
	l.usage[tenantID] = current.Add(vec)
	l.usageMu.Unlock()

	return &Reservation{
		ID:       uuid.New().String(),
		NodeID:   nodeID,
		TaskID:   taskID,
		TenantID: tenantID,
		Vector:   vec.Clone(),
		Created:  time.Now(),
	}, nil
}

// Release returns reserved capacity. Idempotent: releasing a handle
// twice is a no-op.
func (l *Ledger) Release(res *Reservation) {
	res.mu.Lock()
	if res.released {
		res.mu.Unlock()
		return
	}
	res.released = true
	res.mu.Unlock()

	l.mu.RLock()
	ns, ok := l.nodes[res.NodeID]
	l.mu.RUnlock()
	if ok {
		ns.mu.Lock()
		ns.allocated = ns.allocated.Sub(res.Vector)
		delete(ns.residents, res.TaskID)
		ns.mu.Unlock()
	}

	l.usageMu.Lock()
	if current := l.usage[res.TenantID]; current != nil {
		l.usage[res.TenantID] = current.Sub(res.Vector)
	}
	l.usageMu.Unlock()
}

// Query returns the total and allocated vectors for a node
func (l *Ledger) Query(nodeID string) (total, allocated types.Vector, err error) {
	l.mu.RLock()
	ns, ok := l.nodes[nodeID]
	l.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("node %s: %w", nodeID, ErrUnknownNode)
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.capacity.Clone(), ns.allocated.Clone(), nil
}

// TenantUsage returns the tenant's current usage vector
func (l *Ledger) TenantUsage(tenantID string) types.Vector {
	l.usageMu.Lock()
	defer l.usageMu.Unlock()
	if u := l.usage[tenantID]; u != nil {
		return u.Clone()
	}
	return types.Vector{}
}

// NodeView is a read-only copy of a node's ledger state, taken as part
// of a Snapshot
type NodeView struct {
	ID        string
	Capacity  types.Vector
	Allocated types.Vector
	Free      types.Vector
	Health    types.NodeHealth
	Residents []string
}

// Snapshot is a consistent per-round view of the ledger. Scheduling
// rounds read one snapshot and route all mutation back through Reserve
// and Release.
type Snapshot struct {
	TakenAt     time.Time
	Nodes       []NodeView
	Capacity    types.Vector            // cluster-wide total
	Allocated   types.Vector            // cluster-wide allocated
	TenantUsage map[string]types.Vector // usage per tenant
}

// Idle returns the cluster-wide unallocated capacity in the snapshot
func (s *Snapshot) Idle() types.Vector {
	return s.Capacity.Sub(s.Allocated)
}

// Snapshot copies the current ledger state
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	ids := make([]string, 0, len(l.nodes))
	states := make([]*nodeState, 0, len(l.nodes))
	for id, ns := range l.nodes {
		ids = append(ids, id)
		states = append(states, ns)
	}
	l.mu.RUnlock()

	snap := &Snapshot{
		TakenAt:     time.Now(),
		Capacity:    types.Vector{},
		Allocated:   types.Vector{},
		TenantUsage: make(map[string]types.Vector),
	}

	for i, ns := range states {
		ns.mu.Lock()
		view := NodeView{
			ID:        ids[i],
			Capacity:  ns.capacity.Clone(),
			Allocated: ns.allocated.Clone(),
			Free:      ns.capacity.Sub(ns.allocated),
			Health:    ns.health,
		}
		for taskID := range ns.residents {
			view.Residents = append(view.Residents, taskID)
		}
		ns.mu.Unlock()

		snap.Nodes = append(snap.Nodes, view)
		snap.Capacity = snap.Capacity.Add(view.Capacity)
		snap.Allocated = snap.Allocated.Add(view.Allocated)
	}

	l.usageMu.Lock()
	for tenantID, usage := range l.usage {
		snap.TenantUsage[tenantID] = usage.Clone()
	}
	l.usageMu.Unlock()

	return snap
}
