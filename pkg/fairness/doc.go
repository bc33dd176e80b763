/*
Package fairness detects capacity monopolization across tenants.

The monitor records every round's dominant share (the max over
resource classes of usage/capacity, the DRF measure) per tenant and
compares the windowed average against the tenant's entitled share.
A tenant whose actual/entitled ratio stays above the monopoly
threshold is intervened against in two stages:

  - soft: after the soft window, the tenant's fairness debt is
    amplified, de-weighting its tasks in priority scoring. No task
    is touched.
  - hard: if soft de-weighting has not restored balance within the
    escalation window, a hard intervention is emitted. The scheduler
    consumes it by preempting the offender's burst surplus.

Dropping back under the threshold at any point clears both stages.

# Debts

Debts feeds the priority engine: (entitled - actual) / entitled,
clamped to [-1, 1], per tenant. Under-served tenants carry positive
debt and rise in the ranking; over-served ones sink. While a soft
intervention is active the negative debt is doubled.

# Usage

	m := fairness.NewMonitor(policy)

	// once per round
	for _, iv := range m.Observe(tenants, usage, capacity, now) {
		if iv.Hard {
			// preempt the offender back toward its guarantee
		}
	}
	debts := m.Debts()

Windows and the threshold are replaced via Configure at round
boundaries.
*/
package fairness
