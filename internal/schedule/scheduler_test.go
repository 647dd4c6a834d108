package schedule

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stampede/internal/httpexec"
	"stampede/internal/metrics"
	"stampede/internal/scenario"
)

func testScenario() *scenario.Scenario {
	sc := &scenario.Scenario{
		Name: "test",
		Mode: scenario.ModeWeighted,
		Wait: scenario.WaitRange{Min: 5 * time.Millisecond, Max: 10 * time.Millisecond},
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

func okServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{TargetUsers: 10, SpawnRate: 5}, false},
		{"zero users", Config{TargetUsers: 0, SpawnRate: 5}, true},
		{"negative users", Config{TargetUsers: -1, SpawnRate: 5}, true},
		{"zero spawn rate", Config{TargetUsers: 10, SpawnRate: 0}, true},
		{"negative duration", Config{TargetUsers: 10, SpawnRate: 5, Duration: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

// The spawned count must never exceed the target, and must reach it.
func TestScheduler_ReachesTargetExactly(t *testing.T) {
	server := okServer()
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	sched := New(Config{
		TargetUsers: 10,
		SpawnRate:   100, // 10 per tick, target in one tick
		Duration:    400 * time.Millisecond,
		StopTimeout: 2 * time.Second,
	}, testScenario(), exec, agg)

	var wg sync.WaitGroup
	wg.Add(1)
	var maxSeen int
	go func() {
		defer wg.Done()
		for agg.Phase() != metrics.PhaseDone {
			if n := sched.ActiveUsers(); n > maxSeen {
				maxSeen = n
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wg.Wait()

	if maxSeen != 10 {
		t.Errorf("peak spawned users = %d, want exactly 10", maxSeen)
	}
	if agg.Phase() != metrics.PhaseDone {
		t.Errorf("final phase = %v, want done", agg.Phase())
	}
	if agg.ActiveUsers() != 0 {
		t.Errorf("active users after drain = %d, want 0", agg.ActiveUsers())
	}
}

// Fractional spawn credit: 2 users/sec means one user roughly every
// 500ms, not zero users forever.
func TestScheduler_FractionalSpawnRate(t *testing.T) {
	server := okServer()
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	sched := New(Config{
		TargetUsers: 2,
		SpawnRate:   2,
		Duration:    1500 * time.Millisecond,
		StopTimeout: 2 * time.Second,
	}, testScenario(), exec, agg)

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := sched.ActiveUsers(); got != 2 {
		t.Errorf("spawned %d users at 2/sec over 1.5s, want 2", got)
	}
}

// User counts only ever grow during ramp-up.
func TestScheduler_MonotonicRamp(t *testing.T) {
	server := okServer()
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	sched := New(Config{
		TargetUsers: 20,
		SpawnRate:   50,
		Duration:    600 * time.Millisecond,
		StopTimeout: 2 * time.Second,
	}, testScenario(), exec, agg)

	done := make(chan struct{})
	var violation bool
	go func() {
		defer close(done)
		prev := 0
		for agg.Phase() != metrics.PhaseStopping && agg.Phase() != metrics.PhaseDone {
			n := sched.ActiveUsers()
			if n < prev {
				violation = true
				return
			}
			prev = n
			time.Sleep(2 * time.Millisecond)
		}
	}()

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-done

	if violation {
		t.Error("active user count decreased during ramp-up")
	}
}

// With every user stuck in a slow request, the drain must give up after
// the stop timeout once, not once per user, and count all of them as
// stragglers.
func TestScheduler_DrainBoundedByStopTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	sched := New(Config{
		TargetUsers: 3,
		SpawnRate:   100,
		Duration:    300 * time.Millisecond,
		StopTimeout: 100 * time.Millisecond,
	}, testScenario(), exec, agg)

	start := time.Now()
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run took %v, want bounded by duration + stop timeout", elapsed)
	}

	warnings := sched.Warnings()
	if len(warnings) == 0 {
		t.Fatal("no straggler warning recorded")
	}
	if !strings.Contains(warnings[0], "3 of 3 users") {
		t.Errorf("warning = %q, want all 3 users counted as stragglers", warnings[0])
	}
}

func TestScheduler_StopInterruptsRamp(t *testing.T) {
	server := okServer()
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	// Slow ramp that would take 100s to finish.
	sched := New(Config{
		TargetUsers: 100,
		SpawnRate:   1,
		StopTimeout: 2 * time.Second,
	}, testScenario(), exec, agg)

	go func() {
		time.Sleep(250 * time.Millisecond)
		sched.Stop()
	}()

	start := time.Now()
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("stop during ramp took %v", elapsed)
	}
	if sched.ActiveUsers() >= 100 {
		t.Error("ramp completed despite early stop")
	}
	if agg.Phase() != metrics.PhaseDone {
		t.Errorf("final phase = %v, want done", agg.Phase())
	}
}

func TestScheduler_ContextCancellation(t *testing.T) {
	server := okServer()
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	sched := New(Config{
		TargetUsers: 5,
		SpawnRate:   50,
		StopTimeout: 2 * time.Second,
	}, testScenario(), exec, agg)

	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	if err := sched.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if agg.Phase() != metrics.PhaseDone {
		t.Errorf("final phase = %v, want done", agg.Phase())
	}
}

func TestScheduler_PhaseTransitions(t *testing.T) {
	server := okServer()
	defer server.Close()

	exec := httpexec.New(httpexec.DefaultConfig(server.URL))
	agg := metrics.NewAggregator()
	defer agg.Stop()

	sched := New(Config{
		TargetUsers: 3,
		SpawnRate:   100,
		Duration:    500 * time.Millisecond,
		StopTimeout: 2 * time.Second,
	}, testScenario(), exec, agg)

	sawSteady := make(chan struct{})
	go func() {
		for {
			if agg.Phase() == metrics.PhaseSteady {
				close(sawSteady)
				return
			}
			if agg.Phase() == metrics.PhaseDone {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case <-sawSteady:
	default:
		t.Error("scheduler never entered the steady phase")
	}
	if agg.Phase() != metrics.PhaseDone {
		t.Errorf("final phase = %v, want done", agg.Phase())
	}
}
