package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// BucketRing stores time-bucketed aggregates in a fixed-size ring buffer.
//
// Interval counters are accumulated lock-free and folded into a bucket by
// the aggregator's background emitter. Old buckets are discarded once the
// ring is full, so memory stays bounded regardless of run length.
type BucketRing struct {
	buckets []*TimeBucket
	head    int // next write position
	count   int
	max     int
	mu      sync.RWMutex

	lastBucketTime time.Time

	// Interval accumulators, reset on every CreateBucket.
	intervalRequests atomic.Int64
	intervalFailures atomic.Int64
}

// NewBucketRing creates a ring holding at most max buckets.
func NewBucketRing(max int) *BucketRing {
	if max <= 0 {
		max = 3600
	}
	return &BucketRing{
		buckets:        make([]*TimeBucket, max),
		max:            max,
		lastBucketTime: time.Now(),
	}
}

// RecordRequest adds one request to the current interval accumulator.
// Lock-free, safe for concurrent callers.
func (r *BucketRing) RecordRequest(ok bool) {
	r.intervalRequests.Add(1)
	if !ok {
		r.intervalFailures.Add(1)
	}
}

// CreateBucket folds the current interval accumulators into a new bucket.
// Called by the aggregator's emitter, typically once per second.
func (r *BucketRing) CreateBucket(totalRequests, totalFailures int64, p50, p95, p99 time.Duration, activeUsers int, phase Phase) *TimeBucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	intervalRequests := r.intervalRequests.Swap(0)
	intervalFailures := r.intervalFailures.Swap(0)

	intervalSeconds := now.Sub(r.lastBucketTime).Seconds()
	if intervalSeconds <= 0 {
		intervalSeconds = 1.0
	}

	bucket := &TimeBucket{
		Timestamp:        now,
		TotalRequests:    totalRequests,
		TotalFailures:    totalFailures,
		IntervalRequests: intervalRequests,
		IntervalFailures: intervalFailures,
		IntervalRPS:      float64(intervalRequests) / intervalSeconds,
		LatencyP50:       p50,
		LatencyP95:       p95,
		LatencyP99:       p99,
		ActiveUsers:      activeUsers,
		Phase:            phase,
	}

	r.buckets[r.head] = bucket
	r.head = (r.head + 1) % r.max
	if r.count < r.max {
		r.count++
	}
	r.lastBucketTime = now

	return bucket
}

// Buckets returns a copy of all buckets in chronological order.
func (r *BucketRing) Buckets() []*TimeBucket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	result := make([]*TimeBucket, r.count)
	if r.count < r.max {
		copy(result, r.buckets[:r.count])
	} else {
		for i := 0; i < r.count; i++ {
			result[i] = r.buckets[(r.head+i)%r.max]
		}
	}
	return result
}

// Recent returns the n most recent buckets in chronological order.
func (r *BucketRing) Recent(n int) []*TimeBucket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n == 0 {
		return nil
	}

	result := make([]*TimeBucket, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + r.max) % r.max
		result[n-1-i] = r.buckets[idx]
	}
	return result
}

// Count returns the number of buckets currently stored.
func (r *BucketRing) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// RollingRPS averages the interval RPS over the n most recent buckets.
func (r *BucketRing) RollingRPS(n int) float64 {
	recent := r.Recent(n)
	if len(recent) == 0 {
		return 0
	}

	var total int64
	for _, b := range recent {
		total += b.IntervalRequests
	}
	return float64(total) / float64(len(recent))
}

// Reset clears all buckets and interval accumulators.
func (r *BucketRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buckets = make([]*TimeBucket, r.max)
	r.head = 0
	r.count = 0
	r.lastBucketTime = time.Now()
	r.intervalRequests.Store(0)
	r.intervalFailures.Store(0)
}
