package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/droverhq/drover/pkg/types"
)

func taskWithDeadline(id string, static int, deadline *time.Time, seq uint64) *types.Task {
	return &types.Task{
		ID:             id,
		StaticPriority: static,
		Deadline:       deadline,
		SubmittedSeq:   seq,
	}
}

// TestUrgencyRisesTowardDeadline tests the urgency curve shape
func TestUrgencyRisesTowardDeadline(t *testing.T) {
	e := NewEngine(types.DefaultPolicy())
	now := time.Now()

	far := now.Add(time.Hour)
	mid := now.Add(5 * time.Minute)
	near := now.Add(30 * time.Second)
	passed := now.Add(-time.Minute)

	scoreFor := func(deadline *time.Time) float64 {
		return e.Score(taskWithDeadline("t", 0, deadline, 0), 0, now)
	}

	assert.Equal(t, 0.0, scoreFor(nil), "no deadline, no urgency")
	assert.Equal(t, 0.0, scoreFor(&far), "outside horizon, no urgency")
	assert.Greater(t, scoreFor(&mid), 0.0)
	assert.Greater(t, scoreFor(&near), scoreFor(&mid), "urgency is monotonic in time-to-deadline")
	assert.GreaterOrEqual(t, scoreFor(&passed), scoreFor(&near), "passed deadlines clamp at the top")
}

// TestDeadlineOvertakesStatic tests that an approaching deadline lifts
// a low-static task over a high-static one
func TestDeadlineOvertakesStatic(t *testing.T) {
	e := NewEngine(types.DefaultPolicy())
	now := time.Now()

	deadline := now.Add(60 * time.Second)
	urgent := taskWithDeadline("urgent", 1, &deadline, 2)
	heavy := taskWithDeadline("heavy", 5, nil, 1)

	// Far from the deadline the static-5 task wins
	early := now.Add(-time.Hour)
	ranked := e.Rank([]*types.Task{urgent, heavy}, nil, early)
	assert.Equal(t, "heavy", ranked[0].Task.ID)

	// With 60s left, urgency (horizon/remaining - 1 = 9, weighted x2)
	// dwarfs the static gap
	ranked = e.Rank([]*types.Task{urgent, heavy}, nil, now)
	assert.Equal(t, "urgent", ranked[0].Task.ID)
}

// TestFairnessDebtBiasesRanking tests that under-served tenants gain
// priority and over-served ones lose it
func TestFairnessDebtBiasesRanking(t *testing.T) {
	e := NewEngine(types.DefaultPolicy())
	now := time.Now()

	a := &types.Task{ID: "a", TenantID: "starved", StaticPriority: 3, SubmittedSeq: 1}
	b := &types.Task{ID: "b", TenantID: "greedy", StaticPriority: 3, SubmittedSeq: 2}

	debts := map[string]float64{"starved": 1.0, "greedy": -1.0}
	ranked := e.Rank([]*types.Task{b, a}, debts, now)
	assert.Equal(t, "a", ranked[0].Task.ID)
}

// TestWaitingTaskAgesPastStatic tests that queue time alone closes a
// static priority gap
func TestWaitingTaskAgesPastStatic(t *testing.T) {
	e := NewEngine(types.DefaultPolicy())
	base := time.Now()

	old := &types.Task{ID: "old", StaticPriority: 1, SubmittedSeq: 1, CreatedAt: base}
	fresh := func(now time.Time) *types.Task {
		return &types.Task{ID: "fresh", StaticPriority: 5, SubmittedSeq: 99, CreatedAt: now}
	}

	ranked := e.Rank([]*types.Task{old, fresh(base)}, nil, base)
	assert.Equal(t, "fresh", ranked[0].Task.ID)

	// A gap of 4 at the default weights closes after 8 minutes in the
	// queue (0.5 per minute)
	now := base.Add(9 * time.Minute)
	ranked = e.Rank([]*types.Task{old, fresh(now)}, nil, now)
	assert.Equal(t, "old", ranked[0].Task.ID)
}

// TestRankFIFOTieBreak tests that equal scores order by submission
func TestRankFIFOTieBreak(t *testing.T) {
	e := NewEngine(types.DefaultPolicy())
	now := time.Now()

	tasks := []*types.Task{
		taskWithDeadline("third", 2, nil, 30),
		taskWithDeadline("first", 2, nil, 10),
		taskWithDeadline("second", 2, nil, 20),
	}

	ranked := e.Rank(tasks, nil, now)
	assert.Equal(t, "first", ranked[0].Task.ID)
	assert.Equal(t, "second", ranked[1].Task.ID)
	assert.Equal(t, "third", ranked[2].Task.ID)
}

// TestConfigureReweights tests that weight changes take effect
func TestConfigureReweights(t *testing.T) {
	policy := types.DefaultPolicy()
	e := NewEngine(policy)
	now := time.Now()
	task := taskWithDeadline("t", 4, nil, 0)

	assert.Equal(t, 4.0, e.Score(task, 0, now))

	policy.StaticWeight = 0.5
	e.Configure(policy)
	assert.Equal(t, 2.0, e.Score(task, 0, now))
}
