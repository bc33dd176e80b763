/*
Package metrics provides Prometheus metrics for the Drover scheduler.

Collectors are package-level variables registered in init() and
written to directly by the scheduler; Handler() exposes the standard
/metrics endpoint.

# Exported Metrics

Tasks:
  - drover_tasks_total{state}              gauge, current count per state
  - drover_tasks_submitted_total           counter
  - drover_tasks_placed_total              counter
  - drover_tasks_preempted_total{trigger}  counter (quota/priority/fairness)
  - drover_tasks_recovered_total           counter

Nodes and tenants:
  - drover_nodes_total{health}             gauge
  - drover_node_capacity{node,class}       gauge
  - drover_node_allocated{node,class}      gauge
  - drover_tenant_usage{tenant,class}      gauge

Scheduling:
  - drover_round_duration_seconds          histogram
  - drover_rounds_total                    counter
  - drover_admission_denied_total{tenant}  counter

Checkpoints and fairness:
  - drover_checkpoints_written_total       counter
  - drover_checkpoint_failures_total       counter
  - drover_checkpoint_duration_seconds     histogram
  - drover_fairness_interventions_total{stage}  counter

# Usage

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RoundDuration)

	metrics.TasksPlaced.Inc()

	mux.Handle("/metrics", metrics.Handler())
*/
package metrics
