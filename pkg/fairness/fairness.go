package fairness

import (
	"sync"
	"time"

	"github.com/droverhq/drover/pkg/types"
)

// softPenalty is how much harder a soft-flagged tenant's negative debt
// weighs while the monitor waits for balance to recover.
const softPenalty = 2.0

// Intervention is emitted when a tenant monopolizes capacity beyond
// the configured threshold. Soft interventions de-weight the tenant's
// priority; hard interventions are consumed by the preemption
// controller.
type Intervention struct {
	TenantID string
	Hard     bool
	Ratio    float64 // actual/entitled share at emission
	At       time.Time
}

type sample struct {
	at       time.Time
	actual   float64 // dominant share of cluster capacity in use
	entitled float64 // dominant share guaranteed
}

type history struct {
	samples      []sample
	overSince    time.Time // first round the ratio exceeded the threshold
	softActiveAt time.Time // when soft de-weighting began; zero if not active
}

// Monitor observes allocation history per tenant over a sliding window
// and flags monopolization. Intervention is soft first and escalates
// to hard only if soft de-weighting fails to restore balance within
// the escalation window.
type Monitor struct {
	mu         sync.Mutex
	window     time.Duration
	threshold  float64
	softWindow time.Duration
	escalation time.Duration
	tenants    map[string]*history
}

// NewMonitor creates a monitor from policy parameters
func NewMonitor(p types.Policy) *Monitor {
	m := &Monitor{tenants: make(map[string]*history)}
	m.Configure(p)
	return m
}

// Configure replaces thresholds and windows. Applied at round
// boundaries.
func (m *Monitor) Configure(p types.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = p.AccountingWindow
	m.threshold = p.MonopolyThreshold
	m.softWindow = p.SoftWindow
	m.escalation = p.EscalationWindow
}

// Observe records one round's shares and returns any interventions due
// this round. Call once per scheduling round with the round's usage
// view and the cluster capacity.
func (m *Monitor) Observe(tenants []*types.Tenant, usage map[string]types.Vector, capacity types.Vector, now time.Time) []Intervention {
	m.mu.Lock()
	defer m.mu.Unlock()

	var interventions []Intervention
	for _, tenant := range tenants {
		h := m.tenants[tenant.ID]
		if h == nil {
			h = &history{}
			m.tenants[tenant.ID] = h
		}

		used := usage[tenant.ID]
		if used == nil {
			used = types.Vector{}
		}
		h.record(sample{
			at:       now,
			actual:   used.MaxRatio(capacity),
			entitled: tenant.Guaranteed.MaxRatio(capacity),
		}, now, m.window)

		actual, entitled := h.averages()
		if entitled <= 0 {
			continue
		}
		ratio := actual / entitled

		if ratio <= m.threshold {
			h.overSince = time.Time{}
			h.softActiveAt = time.Time{}
			continue
		}

		switch {
		case h.overSince.IsZero():
			h.overSince = now
		case now.Sub(h.overSince) >= m.softWindow && h.softActiveAt.IsZero():
			// Soft stage: de-weighting starts, tracked via Debts
			interventions = append(interventions, Intervention{
				TenantID: tenant.ID, Hard: false, Ratio: ratio, At: now,
			})
			h.softActiveAt = now
		case !h.softActiveAt.IsZero() && now.Sub(h.softActiveAt) >= m.escalation:
			interventions = append(interventions, Intervention{
				TenantID: tenant.ID, Hard: true, Ratio: ratio, At: now,
			})
			h.softActiveAt = now // re-arm rather than firing every round
		}
	}
	return interventions
}

func (h *history) record(s sample, now time.Time, window time.Duration) {
	h.samples = append(h.samples, s)
	cutoff := now.Add(-window)
	trim := 0
	for trim < len(h.samples) && h.samples[trim].at.Before(cutoff) {
		trim++
	}
	h.samples = h.samples[trim:]
}

func (h *history) averages() (actual, entitled float64) {
	if len(h.samples) == 0 {
		return 0, 0
	}
	for _, s := range h.samples {
		actual += s.actual
		entitled += s.entitled
	}
	n := float64(len(h.samples))
	return actual / n, entitled / n
}

// Debts returns the fairness debt per tenant: positive for tenants
// under-served relative to their guaranteed share over the window,
// negative for over-served ones. Soft-flagged tenants carry an
// amplified negative debt until balance recovers.
func (m *Monitor) Debts() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	debts := make(map[string]float64, len(m.tenants))
	for tenantID, h := range m.tenants {
		actual, entitled := h.averages()
		if entitled <= 0 {
			continue
		}
		debt := (entitled - actual) / entitled
		if debt < -1 {
			debt = -1
		}
		if debt > 1 {
			debt = 1
		}
		if debt < 0 && !h.softActiveAt.IsZero() {
			debt *= softPenalty
		}
		debts[tenantID] = debt
	}
	return debts
}
