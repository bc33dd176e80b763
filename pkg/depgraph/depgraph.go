package depgraph

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrCyclicDependency is returned when admitting a task would
	// create a cycle. The task is rejected before entering the graph.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrUnknownTask is returned for operations on tasks the graph
	// does not track
	ErrUnknownTask = errors.New("unknown task")
)

// Graph maintains the task dependency DAG and readiness state.
// Independent of resource concerns: it only answers "which tasks have
// all dependencies completed".
type Graph struct {
	mu         sync.Mutex
	dependsOn  map[string]map[string]struct{} // task -> unmet dependencies
	dependents map[string]map[string]struct{} // task -> tasks waiting on it
	completed  map[string]struct{}
}

// New creates an empty dependency graph
func New() *Graph {
	return &Graph{
		dependsOn:  make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
		completed:  make(map[string]struct{}),
	}
}

// Add admits a task with its dependency set. Dependencies already
// completed are discounted immediately. Fails with ErrCyclicDependency
// if the edge set would close a cycle; the graph is left unchanged.
// Returns whether the task is ready (no unmet dependencies).
func (g *Graph) Add(taskID string, deps []string) (ready bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.dependsOn[taskID]; exists {
		return false, fmt.Errorf("task %s already in graph", taskID)
	}

	if g.wouldCycle(taskID, deps) {
		return false, fmt.Errorf("task %s: %w", taskID, ErrCyclicDependency)
	}

	unmet := make(map[string]struct{})
	for _, dep := range deps {
		if _, done := g.completed[dep]; done {
			continue
		}
		unmet[dep] = struct{}{}
		if g.dependents[dep] == nil {
			g.dependents[dep] = make(map[string]struct{})
		}
		g.dependents[dep][taskID] = struct{}{}
	}
	g.dependsOn[taskID] = unmet

	return len(unmet) == 0, nil
}

// wouldCycle checks whether any dependency can already reach taskID
// through the dependents relation. Caller holds the lock.
func (g *Graph) wouldCycle(taskID string, deps []string) bool {
	// A new task can only close a cycle if some existing task depends,
	// transitively, on it. Tasks depending on a not-yet-submitted ID
	// make that possible.
	stack := append([]string(nil), taskID)
	seen := map[string]struct{}{}
	reachable := map[string]struct{}{}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		reachable[id] = struct{}{}
		for dependent := range g.dependents[id] {
			stack = append(stack, dependent)
		}
	}
	for _, dep := range deps {
		if _, ok := reachable[dep]; ok {
			return true
		}
	}
	return false
}

// Complete marks a task completed and returns the IDs of dependents
// that became ready as a result
func (g *Graph) Complete(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.completed[taskID] = struct{}{}

	var becameReady []string
	for dependent := range g.dependents[taskID] {
		unmet := g.dependsOn[dependent]
		delete(unmet, taskID)
		if len(unmet) == 0 {
			becameReady = append(becameReady, dependent)
		}
	}
	delete(g.dependents, taskID)
	return becameReady
}

// Remove drops a task from the graph without completing it (used on
// cancellation and terminal failure). Dependents keep waiting: a task
// whose dependency was cancelled never becomes ready.
func (g *Graph) Remove(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for dep := range g.dependsOn[taskID] {
		delete(g.dependents[dep], taskID)
	}
	delete(g.dependsOn, taskID)
}

// Ready reports whether every dependency of the task has completed
func (g *Graph) Ready(taskID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	unmet, ok := g.dependsOn[taskID]
	if !ok {
		return false, fmt.Errorf("task %s: %w", taskID, ErrUnknownTask)
	}
	return len(unmet) == 0, nil
}

// Dependents returns the tasks currently waiting on taskID
func (g *Graph) Dependents(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []string
	for id := range g.dependents[taskID] {
		out = append(out, id)
	}
	return out
}
