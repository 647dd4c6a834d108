// Package user drives the lifecycle of a single simulated user.
package user

import (
	"context"
	"sync/atomic"
	"time"

	"stampede/internal/httpexec"
	"stampede/internal/metrics"
	"stampede/internal/scenario"
)

// State is the lifecycle state of a simulated user.
type State int32

const (
	// StateIdle indicates the user has been created but not started.
	StateIdle State = iota
	// StateRunning indicates the user loop is active.
	StateRunning
	// StateStopping indicates a stop has been requested.
	StateStopping
	// StateStopped indicates the user loop has exited.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Simulator is one simulated user bound to a scenario.
//
// The loop waits a randomized think time, selects the next task, executes
// it, records the outcome, and repeats until stopped. A stop signal takes
// effect within one think-time interval: the think wait selects on the
// stop channel and the loop re-checks before each execution. A failed
// task is recorded and the loop continues.
type Simulator struct {
	ID int

	scenario *scenario.Scenario
	session  *scenario.Session
	exec     *httpexec.Executor
	agg      *metrics.Aggregator

	state      atomic.Int32
	stopCh     chan struct{}
	doneCh     chan struct{}
	iterations atomic.Int64

	// Sequential-mode task cursor; touched only by the user goroutine.
	cursor int
}

// New creates a simulated user with its own session seeded by seed.
func New(id int, sc *scenario.Scenario, exec *httpexec.Executor, agg *metrics.Aggregator, seed int64) *Simulator {
	return &Simulator{
		ID:       id,
		scenario: sc,
		session:  scenario.NewSession(seed),
		exec:     exec,
		agg:      agg,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the user loop in its own goroutine.
func (u *Simulator) Start(ctx context.Context) {
	u.state.Store(int32(StateRunning))
	go u.run(ctx)
}

func (u *Simulator) run(ctx context.Context) {
	defer func() {
		u.state.Store(int32(StateStopped))
		close(u.doneCh)
	}()

	for {
		if u.stopped(ctx) {
			return
		}

		task := u.scenario.Next(u.session.Rand(), &u.cursor)
		req := task.Build(u.session)

		outcome := u.exec.Do(ctx, req)
		u.agg.Record(outcome.Label, outcome.Latency, outcome.OK, outcome.Bytes)
		if outcome.OK {
			task.ApplyCaptures(u.session, outcome.Body)
		}
		u.iterations.Add(1)

		if !u.think(ctx) {
			return
		}
	}
}

// think waits a randomized think time. Returns false if stopped.
func (u *Simulator) think(ctx context.Context) bool {
	wait := u.scenario.Wait.Pick(u.session.Rand())
	if wait <= 0 {
		return !u.stopped(ctx)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-u.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (u *Simulator) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-u.stopCh:
		return true
	default:
	}
	return State(u.state.Load()) >= StateStopping
}

// Stop signals the user to stop. Safe to call more than once.
func (u *Simulator) Stop() {
	if u.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) ||
		u.state.CompareAndSwap(int32(StateIdle), int32(StateStopping)) {
		close(u.stopCh)
	}
}

// Done is closed when the user loop has fully exited.
func (u *Simulator) Done() <-chan struct{} {
	return u.doneCh
}

// WaitStop waits for the loop to exit, bounded by timeout.
// Returns false if the user did not stop in time.
func (u *Simulator) WaitStop(timeout time.Duration) bool {
	select {
	case <-u.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// State returns the current lifecycle state.
func (u *Simulator) State() State {
	return State(u.state.Load())
}

// Iterations returns how many tasks this user has executed.
func (u *Simulator) Iterations() int64 {
	return u.iterations.Load()
}
