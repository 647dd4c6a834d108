package metrics

import (
	"testing"
	"time"
)

func TestBucketRing_CreateAndRead(t *testing.T) {
	ring := NewBucketRing(10)

	ring.RecordRequest(true)
	ring.RecordRequest(true)
	ring.RecordRequest(false)

	bucket := ring.CreateBucket(3, 1, time.Millisecond, 2*time.Millisecond, 3*time.Millisecond, 5, PhaseSteady)

	if bucket.IntervalRequests != 3 {
		t.Errorf("IntervalRequests = %d, want 3", bucket.IntervalRequests)
	}
	if bucket.IntervalFailures != 1 {
		t.Errorf("IntervalFailures = %d, want 1", bucket.IntervalFailures)
	}
	if bucket.ActiveUsers != 5 {
		t.Errorf("ActiveUsers = %d, want 5", bucket.ActiveUsers)
	}
	if bucket.Phase != PhaseSteady {
		t.Errorf("Phase = %v, want %v", bucket.Phase, PhaseSteady)
	}

	if ring.Count() != 1 {
		t.Errorf("Count() = %d, want 1", ring.Count())
	}
}

func TestBucketRing_AccumulatorResets(t *testing.T) {
	ring := NewBucketRing(10)

	ring.RecordRequest(true)
	ring.CreateBucket(1, 0, 0, 0, 0, 0, PhaseRampUp)

	// Second bucket should only see new requests.
	bucket := ring.CreateBucket(1, 0, 0, 0, 0, 0, PhaseRampUp)
	if bucket.IntervalRequests != 0 {
		t.Errorf("IntervalRequests = %d, want 0 after accumulator reset", bucket.IntervalRequests)
	}
}

func TestBucketRing_WrapAround(t *testing.T) {
	ring := NewBucketRing(3)

	for i := 1; i <= 5; i++ {
		ring.CreateBucket(int64(i), 0, 0, 0, 0, i, PhaseSteady)
	}

	if ring.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", ring.Count())
	}

	buckets := ring.Buckets()
	if len(buckets) != 3 {
		t.Fatalf("len(Buckets()) = %d, want 3", len(buckets))
	}

	// Oldest retained bucket should be the 3rd created.
	wantTotals := []int64{3, 4, 5}
	for i, b := range buckets {
		if b.TotalRequests != wantTotals[i] {
			t.Errorf("bucket[%d].TotalRequests = %d, want %d", i, b.TotalRequests, wantTotals[i])
		}
	}
}

func TestBucketRing_Recent(t *testing.T) {
	ring := NewBucketRing(10)

	for i := 1; i <= 4; i++ {
		ring.CreateBucket(int64(i), 0, 0, 0, 0, 0, PhaseSteady)
	}

	recent := ring.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("len(Recent(2)) = %d, want 2", len(recent))
	}
	if recent[0].TotalRequests != 3 || recent[1].TotalRequests != 4 {
		t.Errorf("Recent(2) totals = [%d %d], want [3 4]",
			recent[0].TotalRequests, recent[1].TotalRequests)
	}
}

func TestBucketRing_Empty(t *testing.T) {
	ring := NewBucketRing(10)

	if ring.Buckets() != nil {
		t.Error("Buckets() on empty ring should be nil")
	}
	if ring.Recent(5) != nil {
		t.Error("Recent() on empty ring should be nil")
	}
	if ring.RollingRPS(5) != 0 {
		t.Error("RollingRPS() on empty ring should be 0")
	}
}
