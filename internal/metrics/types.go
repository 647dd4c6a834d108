package metrics

import "time"

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the initialization phase before any users are spawned.
	PhaseInit Phase = "init"

	// PhaseRampUp is the ramp-up phase while users are being spawned.
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is the steady-state phase at target concurrency.
	PhaseSteady Phase = "steady"

	// PhaseStopping is the graceful shutdown phase.
	PhaseStopping Phase = "stopping"

	// PhaseDone indicates the test has completed.
	PhaseDone Phase = "done"
)

// LatencyStats contains latency statistics derived from an HDR histogram.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// LabelStats contains aggregated statistics for one endpoint label.
type LabelStats struct {
	Label       string       `json:"label"`
	Count       int64        `json:"count"`
	Failures    int64        `json:"failures"`
	FailureRate float64      `json:"failureRate"`
	Latency     LatencyStats `json:"latency"`
}

// Snapshot contains a point-in-time view of all aggregates.
//
// A Snapshot is an immutable copy: it shares no state with the aggregator
// and is safe to hold across further Record calls.
type Snapshot struct {
	TotalRequests  int64   `json:"totalRequests"`
	FailedRequests int64   `json:"failedRequests"`
	TotalBytes     int64   `json:"totalBytes"`
	FailureRate    float64 `json:"failureRate"`

	// RPS is the overall requests-per-second since the test started.
	RPS float64 `json:"rps"`

	// CurrentRPS is the rolling requests-per-second over the most
	// recent time buckets.
	CurrentRPS float64 `json:"currentRps"`

	Latency  LatencyStats          `json:"latency"`
	PerLabel map[string]LabelStats `json:"perLabel,omitempty"`

	ActiveUsers  int           `json:"activeUsers"`
	CurrentPhase Phase         `json:"currentPhase"`
	Elapsed      time.Duration `json:"elapsed"`
	StartTime    time.Time     `json:"startTime"`
	Timestamp    time.Time     `json:"timestamp"`
}

// TimeBucket captures aggregates for one bucket interval.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters since test start.
	TotalRequests  int64 `json:"totalRequests"`
	TotalFailures  int64 `json:"totalFailures"`

	// Interval deltas for this bucket only.
	IntervalRequests int64   `json:"intervalRequests"`
	IntervalFailures int64   `json:"intervalFailures"`
	IntervalRPS      float64 `json:"intervalRPS"`

	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveUsers int   `json:"activeUsers"`
	Phase       Phase `json:"phase"`
}

// Config contains configuration for the aggregator.
type Config struct {
	// BucketInterval is the interval for time-series buckets (default: 1s).
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600).
	MaxBuckets int

	// HistogramMin is the minimum recordable latency in microseconds (default: 1).
	HistogramMin int64

	// HistogramMax is the maximum recordable latency in microseconds
	// (default: 1 hour).
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3).
	HistogramSigFigs int
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}
