package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_tasks_total",
			Help: "Total number of tasks by state",
		},
		[]string{"state"},
	)

	TasksSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_tasks_submitted_total",
			Help: "Total number of tasks submitted",
		},
	)

	TasksPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_tasks_placed_total",
			Help: "Total number of successful task placements",
		},
	)

	TasksPreempted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_tasks_preempted_total",
			Help: "Total number of preemptions by trigger",
		},
		[]string{"trigger"},
	)

	TasksRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_tasks_recovered_total",
			Help: "Total number of tasks recovered from checkpoint",
		},
	)

	// Node metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_nodes_total",
			Help: "Total number of nodes by health",
		},
		[]string{"health"},
	)

	NodeCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_node_capacity",
			Help: "Node capacity per resource class",
		},
		[]string{"node", "class"},
	)

	NodeAllocated = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_node_allocated",
			Help: "Node allocation per resource class",
		},
		[]string{"node", "class"},
	)

	// Tenant metrics
	TenantUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_tenant_usage",
			Help: "Tenant usage per resource class",
		},
		[]string{"tenant", "class"},
	)

	// Scheduler metrics
	RoundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drover_round_duration_seconds",
			Help:    "Scheduling round duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_rounds_total",
			Help: "Total number of scheduling rounds",
		},
	)

	AdmissionDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_admission_denied_total",
			Help: "Total number of quota admission denials by tenant",
		},
		[]string{"tenant"},
	)

	// Checkpoint metrics
	CheckpointsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_checkpoints_written_total",
			Help: "Total number of checkpoints written",
		},
	)

	CheckpointFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_checkpoint_failures_total",
			Help: "Total number of failed checkpoint attempts",
		},
	)

	CheckpointDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drover_checkpoint_duration_seconds",
			Help:    "Checkpoint write duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Fairness metrics
	FairnessInterventions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_fairness_interventions_total",
			Help: "Total number of fairness interventions by stage",
		},
		[]string{"stage"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksSubmitted)
	prometheus.MustRegister(TasksPlaced)
	prometheus.MustRegister(TasksPreempted)
	prometheus.MustRegister(TasksRecovered)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(NodeCapacity)
	prometheus.MustRegister(NodeAllocated)
	prometheus.MustRegister(TenantUsage)
	prometheus.MustRegister(RoundDuration)
	prometheus.MustRegister(RoundsTotal)
	prometheus.MustRegister(AdmissionDenied)
	prometheus.MustRegister(CheckpointsWritten)
	prometheus.MustRegister(CheckpointFailures)
	prometheus.MustRegister(CheckpointDuration)
	prometheus.MustRegister(FairnessInterventions)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
