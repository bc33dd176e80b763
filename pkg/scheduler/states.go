package scheduler

import (
	"fmt"

	"github.com/droverhq/drover/pkg/types"
)

// legalTransitions is the task state machine. A transition absent from
// the table is rejected; cancellation from any non-terminal state is
// handled as an explicit extra rule in canTransition.
var legalTransitions = map[types.TaskState][]types.TaskState{
	types.TaskPending:      {types.TaskReady},
	types.TaskReady:        {types.TaskRunning},
	types.TaskRunning:      {types.TaskCheckpointed, types.TaskCompleted, types.TaskFailed, types.TaskReady},
	types.TaskCheckpointed: {types.TaskReady, types.TaskFailed},
}

func canTransition(from, to types.TaskState) bool {
	if to == types.TaskCancelled {
		switch from {
		case types.TaskCompleted, types.TaskFailed, types.TaskCancelled:
			return false
		}
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition mutates the task state after checking the guard table.
// Running→Ready covers the restart-from-scratch recovery path when no
// valid checkpoint exists.
func transition(task *types.Task, to types.TaskState) error {
	if !canTransition(task.State, to) {
		return fmt.Errorf("illegal transition %s -> %s for task %s", task.State, to, task.ID)
	}
	task.State = to
	return nil
}
