// Package metrics collects per-request outcomes into rolling aggregates.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Aggregator collects request outcomes into rolling statistics.
//
// Latency percentiles come from HDR histograms, which hold a fixed number
// of buckets regardless of how many outcomes are recorded. Totals use
// atomic counters, so Record never blocks on more than the short histogram
// critical section. A background emitter folds interval counters into a
// time-bucket ring once per interval.
//
// Aggregator is safe for concurrent use by many recording goroutines.
type Aggregator struct {
	config Config

	// Overall latency histogram.
	global   *hdrhistogram.Histogram
	globalMu sync.Mutex

	// Per-endpoint-label series.
	labels   map[string]*labelSeries
	labelsMu sync.RWMutex

	// Lock-free counters.
	totalRequests  atomic.Int64
	failedRequests atomic.Int64
	totalBytes     atomic.Int64

	activeUsers atomic.Int32

	ring *BucketRing

	phase   Phase
	phaseMu sync.RWMutex

	startTime time.Time

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
}

// labelSeries holds the per-label histogram and counters.
// HDR RecordValue is not thread-safe, so the histogram has its own lock.
type labelSeries struct {
	hist     *hdrhistogram.Histogram
	histMu   sync.Mutex
	count    atomic.Int64
	failures atomic.Int64
}

// NewAggregator creates an aggregator with default configuration.
func NewAggregator() *Aggregator {
	return NewAggregatorWithConfig(DefaultConfig())
}

// NewAggregatorWithConfig creates an aggregator and starts its bucket emitter.
func NewAggregatorWithConfig(config Config) *Aggregator {
	if config.BucketInterval == 0 {
		config.BucketInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &Aggregator{
		config:        config,
		global:        hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		labels:        make(map[string]*labelSeries),
		ring:          NewBucketRing(config.MaxBuckets),
		phase:         PhaseInit,
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
	}

	a.emitterWg.Add(1)
	go a.runEmitter()

	return a
}

// Record adds one request outcome to the aggregates.
//
// Each call is reflected exactly once in the totals. Safe for concurrent
// callers; the only blocking is the histogram critical section.
func (a *Aggregator) Record(label string, latency time.Duration, ok bool, bytes int64) {
	micros := latency.Microseconds()
	if micros < a.config.HistogramMin {
		micros = a.config.HistogramMin
	}
	if micros > a.config.HistogramMax {
		micros = a.config.HistogramMax
	}

	a.globalMu.Lock()
	a.global.RecordValue(micros)
	a.globalMu.Unlock()

	if label != "" {
		a.recordLabel(label, micros, ok)
	}

	a.totalRequests.Add(1)
	a.totalBytes.Add(bytes)
	if !ok {
		a.failedRequests.Add(1)
	}

	a.ring.RecordRequest(ok)
}

func (a *Aggregator) recordLabel(label string, micros int64, ok bool) {
	a.labelsMu.RLock()
	series, exists := a.labels[label]
	a.labelsMu.RUnlock()

	if !exists {
		a.labelsMu.Lock()
		series, exists = a.labels[label]
		if !exists {
			series = &labelSeries{
				hist: hdrhistogram.New(a.config.HistogramMin, a.config.HistogramMax, a.config.HistogramSigFigs),
			}
			a.labels[label] = series
		}
		a.labelsMu.Unlock()
	}

	series.histMu.Lock()
	series.hist.RecordValue(micros)
	series.histMu.Unlock()

	series.count.Add(1)
	if !ok {
		series.failures.Add(1)
	}
}

// SetPhase updates the current test phase.
func (a *Aggregator) SetPhase(phase Phase) {
	a.phaseMu.Lock()
	a.phase = phase
	a.phaseMu.Unlock()
}

// Phase returns the current test phase.
func (a *Aggregator) Phase() Phase {
	a.phaseMu.RLock()
	defer a.phaseMu.RUnlock()
	return a.phase
}

// SetActiveUsers updates the active simulated-user count.
func (a *Aggregator) SetActiveUsers(n int) {
	a.activeUsers.Store(int32(n))
}

// ActiveUsers returns the current active simulated-user count.
func (a *Aggregator) ActiveUsers() int {
	return int(a.activeUsers.Load())
}

func (a *Aggregator) runEmitter() {
	defer a.emitterWg.Done()

	ticker := time.NewTicker(a.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.emitterCtx.Done():
			return
		case <-ticker.C:
			a.emitBucket()
		}
	}
}

func (a *Aggregator) emitBucket() {
	a.globalMu.Lock()
	p50 := time.Duration(a.global.ValueAtQuantile(50)) * time.Microsecond
	p95 := time.Duration(a.global.ValueAtQuantile(95)) * time.Microsecond
	p99 := time.Duration(a.global.ValueAtQuantile(99)) * time.Microsecond
	a.globalMu.Unlock()

	a.ring.CreateBucket(
		a.totalRequests.Load(), a.failedRequests.Load(),
		p50, p95, p99,
		a.ActiveUsers(), a.Phase(),
	)
}

// Snapshot returns an immutable copy of the current aggregates.
//
// Writers are only blocked for the duration of each histogram copy.
func (a *Aggregator) Snapshot() *Snapshot {
	a.globalMu.Lock()
	latency := statsFromHistogram(a.global)
	a.globalMu.Unlock()

	total := a.totalRequests.Load()
	failed := a.failedRequests.Load()
	elapsed := time.Since(a.startTime)

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(total) / elapsed.Seconds()
	}

	failureRate := 0.0
	if total > 0 {
		failureRate = float64(failed) / float64(total)
	}

	return &Snapshot{
		TotalRequests:  total,
		FailedRequests: failed,
		TotalBytes:     a.totalBytes.Load(),
		FailureRate:    failureRate,
		RPS:            rps,
		CurrentRPS:     a.ring.RollingRPS(5),
		Latency:        latency,
		PerLabel:       a.LabelStats(),
		ActiveUsers:    a.ActiveUsers(),
		CurrentPhase:   a.Phase(),
		Elapsed:        elapsed,
		StartTime:      a.startTime,
		Timestamp:      time.Now(),
	}
}

// LabelStats returns per-endpoint-label statistics.
func (a *Aggregator) LabelStats() map[string]LabelStats {
	a.labelsMu.RLock()
	defer a.labelsMu.RUnlock()

	result := make(map[string]LabelStats, len(a.labels))
	for label, series := range a.labels {
		series.histMu.Lock()
		latency := statsFromHistogram(series.hist)
		series.histMu.Unlock()

		count := series.count.Load()
		failures := series.failures.Load()
		failureRate := 0.0
		if count > 0 {
			failureRate = float64(failures) / float64(count)
		}

		result[label] = LabelStats{
			Label:       label,
			Count:       count,
			Failures:    failures,
			FailureRate: failureRate,
			Latency:     latency,
		}
	}
	return result
}

// TimeSeries returns all time buckets recorded so far.
func (a *Aggregator) TimeSeries() []*TimeBucket {
	return a.ring.Buckets()
}

// Stop stops the background emitter and folds a final bucket.
func (a *Aggregator) Stop() {
	a.emitterCancel()
	a.emitterWg.Wait()
	a.emitBucket()
}

// Reset clears all aggregates back to the initial state.
func (a *Aggregator) Reset() {
	a.globalMu.Lock()
	a.global.Reset()
	a.globalMu.Unlock()

	a.labelsMu.Lock()
	a.labels = make(map[string]*labelSeries)
	a.labelsMu.Unlock()

	a.totalRequests.Store(0)
	a.failedRequests.Store(0)
	a.totalBytes.Store(0)
	a.activeUsers.Store(0)

	a.SetPhase(PhaseInit)
	a.ring.Reset()
	a.startTime = time.Now()
}

func statsFromHistogram(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}
