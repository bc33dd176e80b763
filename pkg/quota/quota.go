package quota

import (
	"sync"
	"time"

	"github.com/droverhq/drover/pkg/types"
)

// Admission is the outcome of a quota check
type Admission int

const (
	// Denied means the request exceeds the tenant's burst ceiling or
	// no idle capacity exists to lend
	Denied Admission = iota
	// Allowed means the request fits within guaranteed quota
	Allowed
	// AllowedBurst means the request fits only by borrowing idle
	// capacity above the guaranteed share
	AllowedBurst
)

func (a Admission) String() string {
	switch a {
	case Allowed:
		return "allowed"
	case AllowedBurst:
		return "allowed-burst"
	default:
		return "denied"
	}
}

// BurstHolding describes capacity a tenant holds above its guaranteed
// share, eligible for reclamation when guaranteed owners return demand
type BurstHolding struct {
	TenantID string
	Surplus  types.Vector
	// GraceUntil is when graceful reclamation may proceed; zero under
	// the immediate policy.
	GraceUntil time.Time
}

// Reclaimable reports whether a holding may be acted on at now
func (h BurstHolding) Reclaimable(now time.Time) bool {
	return h.GraceUntil.IsZero() || !now.Before(h.GraceUntil)
}

// Manager enforces per-tenant guaranteed and burst quotas.
// Guaranteed quota is never denied to its owner under contention;
// burst allocations are the first reclaimed when owners return.
type Manager struct {
	mu         sync.Mutex
	mode       types.ReclamationMode
	grace      time.Duration
	graceMarks map[string]time.Time // tenant -> first flagged over-guarantee
}

// NewManager creates a quota manager with the given reclamation policy
func NewManager(mode types.ReclamationMode, grace time.Duration) *Manager {
	return &Manager{
		mode:       mode,
		grace:      grace,
		graceMarks: make(map[string]time.Time),
	}
}

// Configure replaces the reclamation policy. Applied by the core at a
// round boundary.
func (m *Manager) Configure(mode types.ReclamationMode, grace time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.grace = grace
}

// CheckAdmission decides whether a tenant may take vec more capacity.
// usage is the tenant's current usage and idle the cluster's
// unallocated capacity, both as of this round.
func (m *Manager) CheckAdmission(tenant *types.Tenant, usage, vec, idle types.Vector) Admission {
	want := usage.Add(vec)

	if tenant.Guaranteed.Fits(want) {
		return Allowed
	}

	// Burst: allowed only up to the ceiling and only while the cluster
	// has idle capacity to lend
	if tenant.BurstCeiling.Fits(want) && idle.Fits(vec) {
		return AllowedBurst
	}

	return Denied
}

// ReclaimIdle identifies guaranteed-but-unused capacity per tenant
// that is eligible for burst lending. Run periodically by the core.
func (m *Manager) ReclaimIdle(tenants []*types.Tenant, usage map[string]types.Vector) map[string]types.Vector {
	idle := make(map[string]types.Vector)
	for _, tenant := range tenants {
		used := usage[tenant.ID]
		if used == nil {
			used = types.Vector{}
		}
		unused := tenant.Guaranteed.Sub(used)
		if !unused.IsZero() {
			idle[tenant.ID] = unused
		}
	}
	return idle
}

// BurstHoldings returns, per tenant, capacity held above the
// guaranteed share. Under the graceful policy each holding carries a
// grace deadline: holdings are flagged when first seen and must not be
// reclaimed before GraceUntil. Tenants back under guarantee have their
// grace mark cleared.
func (m *Manager) BurstHoldings(tenants []*types.Tenant, usage map[string]types.Vector, now time.Time) []BurstHolding {
	m.mu.Lock()
	defer m.mu.Unlock()

	var holdings []BurstHolding
	for _, tenant := range tenants {
		used := usage[tenant.ID]
		if used == nil {
			used = types.Vector{}
		}
		over := used.Sub(tenant.Guaranteed)
		if over.IsZero() {
			delete(m.graceMarks, tenant.ID)
			continue
		}

		holding := BurstHolding{TenantID: tenant.ID, Surplus: over}
		if m.mode == types.ReclaimGraceful {
			mark, ok := m.graceMarks[tenant.ID]
			if !ok {
				mark = now
				m.graceMarks[tenant.ID] = mark
			}
			holding.GraceUntil = mark.Add(m.grace)
		}
		holdings = append(holdings, holding)
	}
	return holdings
}
