/*
Package preemption selects which running tasks to suspend when
capacity must be freed.

Selection policy, in order:

 1. cheapest checkpoint first - the freshest checkpoint loses the
    least work; candidates without any checkpoint sort last.
    Checkpoint age is banded to the minute so the later keys still
    matter between similarly-fresh candidates.
 2. lowest effective priority
 3. largest footprint relative to the need, so fewer tasks are
    disturbed per preemption

Tasks of a kind that cannot checkpoint are excluded before selection
ever starts. This is a hard constraint, not a preference: no resource
pressure justifies killing work that cannot be resumed.

Priority-triggered preemption additionally requires the ready task to
outscore a victim by more than the configured margin, and refuses to
preempt at all when the selectable victims cannot cover the need;
freeing half a task's requirement just thrashes.

The package is pure policy: it picks victims and returns them. The
scheduler core performs the actual checkpoint-suspend-release
sequence.
*/
package preemption
