package domain

// Status is the fused verdict for a token.
type Status string

const (
	StatusPass      Status = "PASS"
	StatusCandidate Status = "CANDIDATE"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// Outcome is the tri-state result of one sub-check.
type Outcome string

const (
	OutcomePass    Outcome = "PASS"
	OutcomeFail    Outcome = "FAIL"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// CheckResult is the evaluation of a single sub-check.
type CheckResult struct {
	Name      string
	Threshold string  // human readable bound, e.g. "100000..250000"
	Actual    *string // nil when the metric was unavailable
	Outcome   Outcome
	Pass      bool // Outcome after the unknown policy was applied
}

// ClassificationResult is the immutable verdict for one event.
type ClassificationResult struct {
	TokenID     string
	PoolAddress string
	Status      Status
	Metrics     MetricsBundle
	Checks      []CheckResult
}

// State is a coordinator lifecycle state.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateDedupCheck       State = "DEDUP_CHECK"
	StateRateLimitedWait  State = "RATE_LIMITED_WAIT"
	StateResolvingPool    State = "RESOLVING_POOL"
	StateMetricsGathering State = "METRICS_GATHERING"
	StateFusing           State = "FUSING"

	// Terminal states.
	StateDuplicate     State = "DUPLICATE"
	StateSkipped       State = "SKIPPED"
	StateNotifySkipped State = "NOTIFY_SKIPPED"
	StateNotified      State = "NOTIFIED"
)

// IsTerminal reports whether no further transitions follow s.
func (s State) IsTerminal() bool {
	switch s {
	case StateDuplicate, StateSkipped, StateNotifySkipped, StateNotified:
		return true
	}
	return false
}
