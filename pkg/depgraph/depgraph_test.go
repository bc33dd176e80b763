package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddNoDeps tests that dependency-free tasks are ready immediately
func TestAddNoDeps(t *testing.T) {
	g := New()

	ready, err := g.Add("a", nil)
	require.NoError(t, err)
	assert.True(t, ready)
}

// TestAddWithDeps tests that dependent tasks wait for their parents
func TestAddWithDeps(t *testing.T) {
	g := New()

	_, err := g.Add("a", nil)
	require.NoError(t, err)

	ready, err := g.Add("b", []string{"a"})
	require.NoError(t, err)
	assert.False(t, ready)
}

// TestDependencyOnCompletedTask tests that already-satisfied
// dependencies do not block
func TestDependencyOnCompletedTask(t *testing.T) {
	g := New()

	_, err := g.Add("a", nil)
	require.NoError(t, err)
	g.Complete("a")

	ready, err := g.Add("b", []string{"a"})
	require.NoError(t, err)
	assert.True(t, ready)
}

// TestCompletePromotesDependents tests fan-out promotion on completion
func TestCompletePromotesDependents(t *testing.T) {
	g := New()

	_, err := g.Add("a", nil)
	require.NoError(t, err)
	_, err = g.Add("b", []string{"a"})
	require.NoError(t, err)
	_, err = g.Add("c", []string{"a"})
	require.NoError(t, err)
	_, err = g.Add("d", []string{"a", "b"})
	require.NoError(t, err)

	promoted := g.Complete("a")
	assert.ElementsMatch(t, []string{"b", "c"}, promoted)

	// d still waits on b
	promoted = g.Complete("b")
	assert.ElementsMatch(t, []string{"d"}, promoted)
}

// TestCycleRejected tests that cycles are refused at submission
func TestCycleRejected(t *testing.T) {
	g := New()

	_, err := g.Add("a", []string{"b"})
	require.NoError(t, err)
	_, err = g.Add("b", []string{"c"})
	require.NoError(t, err)

	// c -> a would close the loop a -> b -> c -> a
	_, err = g.Add("c", []string{"a"})
	assert.ErrorIs(t, err, ErrCyclicDependency)

	// The rejected task must not linger in the graph
	_, err = g.Add("c", nil)
	assert.NoError(t, err)
}

// TestSelfDependency tests the trivial cycle
func TestSelfDependency(t *testing.T) {
	g := New()
	_, err := g.Add("a", []string{"a"})
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

// TestForwardDependency tests depending on a task not yet submitted
func TestForwardDependency(t *testing.T) {
	g := New()

	ready, err := g.Add("b", []string{"a"})
	require.NoError(t, err)
	assert.False(t, ready, "unsubmitted dependency blocks")

	ready, err = g.Add("a", nil)
	require.NoError(t, err)
	assert.True(t, ready)

	promoted := g.Complete("a")
	assert.ElementsMatch(t, []string{"b"}, promoted)
}

// TestRemoveLeavesDependentsBlocked tests that removing a failed task
// does not promote tasks that depended on it
func TestRemoveLeavesDependentsBlocked(t *testing.T) {
	g := New()

	_, err := g.Add("a", nil)
	require.NoError(t, err)
	_, err = g.Add("b", []string{"a"})
	require.NoError(t, err)

	g.Remove("a")

	ready, err := g.Ready("b")
	require.NoError(t, err)
	assert.False(t, ready, "dependent of a removed task never becomes ready")
}

// TestDiamond tests a diamond-shaped graph completing in order
func TestDiamond(t *testing.T) {
	g := New()

	_, err := g.Add("root", nil)
	require.NoError(t, err)
	_, err = g.Add("left", []string{"root"})
	require.NoError(t, err)
	_, err = g.Add("right", []string{"root"})
	require.NoError(t, err)
	_, err = g.Add("sink", []string{"left", "right"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"left", "right"}, g.Complete("root"))
	assert.Empty(t, g.Complete("left"))
	assert.ElementsMatch(t, []string{"sink"}, g.Complete("right"))
}
