package preemption

import (
	"sort"
	"time"

	"github.com/droverhq/drover/pkg/types"
)

// costBand buckets checkpoint age so that priority and footprint still
// matter between victims whose checkpoints are similarly fresh
const costBand = time.Minute

// Trigger names why a preemption was requested
type Trigger string

const (
	// TriggerQuota fires when a guaranteed-quota owner is denied while
	// a burst tenant holds reclaimable capacity
	TriggerQuota Trigger = "quota"
	// TriggerPriority fires when a ready task outscores a running one
	// by more than the configured margin
	TriggerPriority Trigger = "priority"
	// TriggerFairness fires on a hard intervention from the fairness
	// monitor
	TriggerFairness Trigger = "fairness"
)

// Candidate is a running task considered for preemption
type Candidate struct {
	Task          *types.Task
	Score         float64      // effective priority this round
	Freed         types.Vector // footprint released if preempted
	HasCheckpoint bool
	CheckpointAge time.Duration // time since the latest checkpoint
}

// Eligible reports whether a task may ever be preempted. Tasks of a
// non-checkpointable kind are deferred from consideration entirely.
func Eligible(task *types.Task) bool {
	return types.CapabilitiesFor(task.Kind).Checkpointable
}

// checkpointCost orders candidates by how cheap suspending them is:
// a fresh checkpoint means little lost work. Candidates without any
// checkpoint sort after all banded ages.
func checkpointCost(c Candidate) int {
	if !c.HasCheckpoint {
		return int(^uint(0) >> 1)
	}
	return int(c.CheckpointAge / costBand)
}

// SelectVictims picks candidates to free at least need, in policy
// order: cheapest checkpoint first, then lowest effective priority,
// then largest footprint per preemption (to minimize the number of
// tasks disturbed). Ineligible tasks are dropped before selection.
// Returns the chosen victims; fewer may be returned than required if
// the candidate set cannot cover need.
func SelectVictims(candidates []Candidate, need types.Vector) []Candidate {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if Eligible(c.Task) {
			eligible = append(eligible, c)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ci, cj := checkpointCost(eligible[i]), checkpointCost(eligible[j])
		if ci != cj {
			return ci < cj
		}
		if eligible[i].Score != eligible[j].Score {
			return eligible[i].Score < eligible[j].Score
		}
		return eligible[i].Freed.MaxRatio(need) > eligible[j].Freed.MaxRatio(need)
	})

	var victims []Candidate
	freed := types.Vector{}
	for _, c := range eligible {
		if freed.Fits(need) {
			break
		}
		victims = append(victims, c)
		freed = freed.Add(c.Freed)
	}
	return victims
}

// ForPriority filters candidates preemptable by a ready task of score
// readyScore under the configured margin, then selects victims to
// cover need. A running task is only displaced when the gap exceeds
// margin, never on a bare score difference.
func ForPriority(candidates []Candidate, readyScore, margin float64, need types.Vector) []Candidate {
	var below []Candidate
	for _, c := range candidates {
		if readyScore-c.Score > margin {
			below = append(below, c)
		}
	}
	victims := SelectVictims(below, need)
	// Preempting without covering the request just thrashes
	freed := types.Vector{}
	for _, v := range victims {
		freed = freed.Add(v.Freed)
	}
	if !freed.Fits(need) {
		return nil
	}
	return victims
}
