package user

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stampede/internal/httpexec"
	"stampede/internal/metrics"
	"stampede/internal/scenario"
)

func fastScenario(wait scenario.WaitRange) *scenario.Scenario {
	sc := &scenario.Scenario{
		Name: "test",
		Mode: scenario.ModeWeighted,
		Wait: wait,
		Tasks: []scenario.Task{
			{
				Name:   "ping",
				Weight: 1,
				Build: func(s *scenario.Session) *httpexec.Request {
					return &httpexec.Request{Label: "ping", Method: http.MethodGet, Path: "/ping"}
				},
			},
		},
	}
	if err := sc.Validate(); err != nil {
		panic(err)
	}
	return sc
}

func TestSimulator_ExecutesAndRecords(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	sim := New(1, fastScenario(scenario.WaitRange{Min: time.Millisecond, Max: 2 * time.Millisecond}), exec, agg, 1)
	sim.Start(context.Background())

	time.Sleep(100 * time.Millisecond)
	sim.Stop()
	if !sim.WaitStop(time.Second) {
		t.Fatal("user did not stop")
	}

	if hits.Load() == 0 {
		t.Error("no requests reached the server")
	}
	snapshot := agg.Snapshot()
	if snapshot.TotalRequests != sim.Iterations() {
		t.Errorf("recorded %d outcomes, user ran %d iterations", snapshot.TotalRequests, sim.Iterations())
	}
	if snapshot.FailedRequests != 0 {
		t.Errorf("FailedRequests = %d, want 0", snapshot.FailedRequests)
	}
}

func TestSimulator_FailureDoesNotStopLoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	sim := New(1, fastScenario(scenario.WaitRange{Min: time.Millisecond, Max: 2 * time.Millisecond}), exec, agg, 1)
	sim.Start(context.Background())

	time.Sleep(80 * time.Millisecond)
	sim.Stop()
	sim.WaitStop(time.Second)

	if sim.Iterations() < 2 {
		t.Errorf("loop ran %d iterations despite failures, want several", sim.Iterations())
	}
	snapshot := agg.Snapshot()
	if snapshot.FailedRequests != snapshot.TotalRequests {
		t.Errorf("failures = %d of %d, want all failed", snapshot.FailedRequests, snapshot.TotalRequests)
	}
}

// A stop issued during think time must take effect within one think-time
// interval.
func TestSimulator_StopWithinThinkTime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	think := scenario.WaitRange{Min: 5 * time.Second, Max: 5 * time.Second}
	sim := New(1, fastScenario(think), exec, agg, 1)
	sim.Start(context.Background())

	// Let the first task execute and the loop enter think time.
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	sim.Stop()
	if !sim.WaitStop(time.Second) {
		t.Fatal("user did not stop within one think-time interval")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("stop took %v, want well under the 5s think time", elapsed)
	}

	if sim.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", sim.State())
	}
}

func TestSimulator_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	sim := New(1, fastScenario(scenario.WaitRange{Min: time.Second, Max: time.Second}), exec, agg, 1)
	sim.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	if !sim.WaitStop(time.Second) {
		t.Fatal("user did not stop on context cancellation")
	}
}

func TestSimulator_StopIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	sim := New(1, fastScenario(scenario.WaitRange{}), exec, agg, 1)
	sim.Start(context.Background())

	sim.Stop()
	sim.Stop() // must not panic on double close
	sim.WaitStop(time.Second)
}
