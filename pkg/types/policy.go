package types

import "time"

// ReclamationMode controls how burst capacity is taken back when the
// guaranteed owner returns demand
type ReclamationMode string

const (
	ReclaimImmediate ReclamationMode = "immediate"
	ReclaimGraceful  ReclamationMode = "graceful"
)

// TimeoutAction controls what happens when a checkpoint write exceeds
// its deadline during preemption
type TimeoutAction string

const (
	// TimeoutForceSuspend suspends the task anyway; in-flight state is
	// lost and the loss is logged.
	TimeoutForceSuspend TimeoutAction = "forceSuspend"
	// TimeoutAbortPreemption keeps the task running and abandons the
	// preemption attempt.
	TimeoutAbortPreemption TimeoutAction = "abortPreemption"
)

// Policy holds every tunable scheduling parameter. Changes submitted
// via Configure apply at the next round boundary, never mid-round.
type Policy struct {
	// Effective priority weights (w1, w2, w3)
	StaticWeight   float64 `yaml:"static_weight"`
	DeadlineWeight float64 `yaml:"deadline_weight"`
	FairnessWeight float64 `yaml:"fairness_weight"`

	// UrgencyHorizon is the time-to-deadline below which urgency starts
	// rising; UrgencyClamp bounds the urgency term.
	UrgencyHorizon time.Duration `yaml:"urgency_horizon"`
	UrgencyClamp   float64       `yaml:"urgency_clamp"`

	// Aging grows a waiting task's score by AgingWeight per
	// AgingHorizon spent in the queue, unbounded, so a constant stream
	// of higher-priority work cannot starve it.
	AgingWeight  float64       `yaml:"aging_weight"`
	AgingHorizon time.Duration `yaml:"aging_horizon"`

	// Quota reclamation
	Reclamation ReclamationMode `yaml:"reclamation"`
	GracePeriod time.Duration   `yaml:"grace_period"`

	// PreemptionMargin is the effective-priority gap above which a
	// ready task may preempt a running one.
	PreemptionMargin float64 `yaml:"preemption_margin"`

	// Fairness monitor
	MonopolyThreshold float64       `yaml:"monopoly_threshold"` // actual/entitled share ratio
	SoftWindow        time.Duration `yaml:"soft_window"`
	EscalationWindow  time.Duration `yaml:"escalation_window"`
	AccountingWindow  time.Duration `yaml:"accounting_window"`
	// ExposeSoftIntervention makes soft de-weighting visible to the
	// affected tenant via the event stream. Off by default: only hard
	// preemption becomes tenant-visible.
	ExposeSoftIntervention bool `yaml:"expose_soft_intervention"`

	// Checkpointing
	CheckpointTimeout       time.Duration `yaml:"checkpoint_timeout"`
	CheckpointRetries       int           `yaml:"checkpoint_retries"`
	CheckpointTimeoutAction TimeoutAction `yaml:"checkpoint_timeout_action"`
	CheckpointKeep          int           `yaml:"checkpoint_keep"` // superseded checkpoints retained per task

	// Control loop
	RoundInterval    time.Duration `yaml:"round_interval"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	CancelTimeout    time.Duration `yaml:"cancel_timeout"` // checkpoint budget for cancelled running tasks
}

// DefaultPolicy returns the policy used when no configuration is
// provided. Grace period is deliberately nonzero.
func DefaultPolicy() Policy {
	return Policy{
		StaticWeight:            1.0,
		DeadlineWeight:          2.0,
		FairnessWeight:          1.5,
		UrgencyHorizon:          10 * time.Minute,
		UrgencyClamp:            10.0,
		AgingWeight:             0.5,
		AgingHorizon:            time.Minute,
		Reclamation:             ReclaimGraceful,
		GracePeriod:             30 * time.Second,
		PreemptionMargin:        5.0,
		MonopolyThreshold:       1.5,
		SoftWindow:              2 * time.Minute,
		EscalationWindow:        5 * time.Minute,
		AccountingWindow:        15 * time.Minute,
		CheckpointTimeout:       30 * time.Second,
		CheckpointRetries:       3,
		CheckpointTimeoutAction: TimeoutForceSuspend,
		CheckpointKeep:          3,
		RoundInterval:           5 * time.Second,
		HeartbeatTimeout:        30 * time.Second,
		CancelTimeout:           10 * time.Second,
	}
}
