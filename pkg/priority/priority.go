package priority

import (
	"sort"
	"sync"
	"time"

	"github.com/droverhq/drover/pkg/types"
)

// Engine computes effective priority scores for ready tasks.
// Scores combine static priority, deadline urgency, fairness debt and
// time waiting in the queue under configurable weights, and are
// recomputed every scheduling round rather than once at submission.
type Engine struct {
	mu        sync.RWMutex
	static    float64
	dline     float64
	debt      float64
	horizon   time.Duration
	clamp     float64
	aging     float64
	agingUnit time.Duration
}

// NewEngine creates an engine from the policy's weights
func NewEngine(p types.Policy) *Engine {
	e := &Engine{}
	e.Configure(p)
	return e
}

// Configure replaces the weights. Applied at round boundaries.
func (e *Engine) Configure(p types.Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.static = p.StaticWeight
	e.dline = p.DeadlineWeight
	e.debt = p.FairnessWeight
	e.horizon = p.UrgencyHorizon
	e.clamp = p.UrgencyClamp
	e.aging = p.AgingWeight
	e.agingUnit = p.AgingHorizon
}

// Score returns the effective priority of a task at now. debt is the
// owning tenant's fairness debt over the accounting window.
func (e *Engine) Score(task *types.Task, debt float64, now time.Time) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.static*float64(task.StaticPriority) +
		e.dline*e.urgency(task.Deadline, now) +
		e.debt*debt +
		e.aging*e.age(task.CreatedAt, now)
}

// age is time waited in AgingHorizon units, unclamped: any waiting
// task eventually outscores a fixed static priority, so a stream of
// urgent work cannot starve it. Tasks without a creation timestamp do
// not age. Caller holds the read lock.
func (e *Engine) age(created time.Time, now time.Time) float64 {
	if e.agingUnit <= 0 || created.IsZero() {
		return 0
	}
	waited := now.Sub(created)
	if waited <= 0 {
		return 0
	}
	return float64(waited) / float64(e.agingUnit)
}

// urgency rises monotonically as the deadline approaches: zero outside
// the horizon, hyperbolic inside it, clamped once the deadline has
// passed. Caller holds the read lock.
func (e *Engine) urgency(deadline *time.Time, now time.Time) float64 {
	if deadline == nil {
		return 0
	}
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return e.clamp
	}
	if remaining >= e.horizon {
		return 0
	}
	u := float64(e.horizon)/float64(remaining) - 1
	if u > e.clamp {
		u = e.clamp
	}
	return u
}

// Scored pairs a task with its effective priority for one round
type Scored struct {
	Task  *types.Task
	Score float64
}

// Rank scores and orders tasks for a round: higher score first, exact
// ties broken by earlier submission (FIFO) so no task starves.
func (e *Engine) Rank(tasks []*types.Task, debts map[string]float64, now time.Time) []Scored {
	scored := make([]Scored, 0, len(tasks))
	for _, task := range tasks {
		scored = append(scored, Scored{
			Task:  task,
			Score: e.Score(task, debts[task.TenantID], now),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Task.SubmittedSeq < scored[j].Task.SubmittedSeq
	})
	return scored
}
