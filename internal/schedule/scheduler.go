// Package schedule ramps simulated users up to a target and holds them there.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stampede/internal/httpexec"
	"stampede/internal/metrics"
	"stampede/internal/scenario"
	"stampede/internal/user"
)

const (
	// spawnTick is the control-loop resolution for spawning users.
	spawnTick = 100 * time.Millisecond

	// defaultStopTimeout bounds the graceful drain at the end of a run.
	defaultStopTimeout = 10 * time.Second
)

// Config controls the ramp shape of a run.
type Config struct {
	// TargetUsers is the number of concurrent simulated users to reach.
	TargetUsers int

	// SpawnRate is users started per second during ramp-up. Rates below
	// one per tick accumulate fractionally across ticks.
	SpawnRate float64

	// Duration is total run time measured from the first spawn.
	// Zero means run until Stop is called.
	Duration time.Duration

	// StopTimeout bounds the wait for users to drain on shutdown.
	// Zero means defaultStopTimeout.
	StopTimeout time.Duration

	// Seed derives per-user RNG seeds. Zero picks a time-based seed.
	Seed int64
}

// Validate checks the ramp configuration.
func (c Config) Validate() error {
	if c.TargetUsers <= 0 {
		return &scenario.ConfigError{Field: "users", Message: fmt.Sprintf("must be positive, got %d", c.TargetUsers)}
	}
	if c.SpawnRate <= 0 {
		return &scenario.ConfigError{Field: "spawn-rate", Message: fmt.Sprintf("must be positive, got %g", c.SpawnRate)}
	}
	if c.Duration < 0 {
		return &scenario.ConfigError{Field: "duration", Message: "must not be negative"}
	}
	return nil
}

// Scheduler spawns simulated users on a fixed control tick until the
// target count is reached, holds the load for the configured duration,
// then drains the users within a bounded stop timeout.
//
// The active user count is monotonically non-decreasing until shutdown
// begins and never exceeds TargetUsers.
type Scheduler struct {
	cfg      Config
	scenario *scenario.Scenario
	exec     *httpexec.Executor
	agg      *metrics.Aggregator

	mu    sync.Mutex
	users []*user.Simulator

	stopCh   chan struct{}
	stopOnce sync.Once

	warnMu   sync.Mutex
	warnings []string
}

// New creates a scheduler. The configuration must already be validated.
func New(cfg Config, sc *scenario.Scenario, exec *httpexec.Executor, agg *metrics.Aggregator) *Scheduler {
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cfg.Seed = seed

	return &Scheduler{
		cfg:      cfg,
		scenario: sc,
		exec:     exec,
		agg:      agg,
		stopCh:   make(chan struct{}),
	}
}

// Run ramps users to the target, sustains the load, and drains on exit.
// It blocks until the run is over and always leaves the aggregator in
// PhaseDone, even when interrupted mid-ramp.
func (s *Scheduler) Run(ctx context.Context) error {
	s.agg.SetPhase(metrics.PhaseRampUp)

	start := time.Now()
	var durationCh <-chan time.Time
	if s.cfg.Duration > 0 {
		timer := time.NewTimer(s.cfg.Duration)
		defer timer.Stop()
		durationCh = timer.C
	}

	ticker := time.NewTicker(spawnTick)
	defer ticker.Stop()

	// Fractional spawn credit carried between ticks so low rates still
	// reach the target eventually.
	credit := 0.0
	perTick := s.cfg.SpawnRate * spawnTick.Seconds()

ramp:
	for {
		select {
		case <-ctx.Done():
			break ramp
		case <-s.stopCh:
			break ramp
		case <-durationCh:
			break ramp
		case <-ticker.C:
			if s.ActiveUsers() >= s.cfg.TargetUsers {
				if s.agg.Phase() == metrics.PhaseRampUp {
					s.agg.SetPhase(metrics.PhaseSteady)
				}
				continue
			}

			credit += perTick
			spawn := int(credit)
			if spawn == 0 {
				continue
			}
			credit -= float64(spawn)

			if remaining := s.cfg.TargetUsers - s.ActiveUsers(); spawn > remaining {
				spawn = remaining
			}
			s.spawn(ctx, spawn)

			if s.ActiveUsers() >= s.cfg.TargetUsers {
				s.agg.SetPhase(metrics.PhaseSteady)
			}
		}
	}

	s.drain(time.Since(start))
	return nil
}

func (s *Scheduler) spawn(ctx context.Context, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < n; i++ {
		id := len(s.users) + 1
		u := user.New(id, s.scenario, s.exec, s.agg, s.cfg.Seed+int64(id))
		u.Start(ctx)
		s.users = append(s.users, u)
	}
	s.agg.SetActiveUsers(len(s.users))
}

// drain stops every user and waits for all loops to exit, bounded by the
// stop timeout. Users still running past the deadline are abandoned and
// recorded as a warning.
func (s *Scheduler) drain(elapsed time.Duration) {
	s.agg.SetPhase(metrics.PhaseStopping)

	s.mu.Lock()
	users := make([]*user.Simulator, len(s.users))
	copy(users, s.users)
	s.mu.Unlock()

	for _, u := range users {
		u.Stop()
	}

	// Absolute deadline shared by all users: once it passes, every
	// remaining wait expires immediately instead of blocking per user.
	deadline := time.Now().Add(s.cfg.StopTimeout)
	stragglers := 0
	for _, u := range users {
		select {
		case <-u.Done():
		case <-time.After(time.Until(deadline)):
			stragglers++
		}
	}
	if stragglers > 0 {
		s.warn(fmt.Sprintf("%d of %d users did not stop within %v", stragglers, len(users), s.cfg.StopTimeout))
	}

	if s.cfg.Duration > 0 && elapsed > s.cfg.Duration+s.cfg.StopTimeout {
		s.warn(fmt.Sprintf("run overran configured duration: %v elapsed, %v configured", elapsed.Round(time.Millisecond), s.cfg.Duration))
	}

	s.agg.SetActiveUsers(0)
	s.agg.SetPhase(metrics.PhaseDone)
}

// Stop requests shutdown. Safe to call more than once and before Run.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ActiveUsers returns how many users have been spawned.
func (s *Scheduler) ActiveUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Iterations returns the total task executions across all users.
func (s *Scheduler) Iterations() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, u := range s.users {
		total += u.Iterations()
	}
	return total
}

// Warnings returns non-fatal conditions observed during the run.
func (s *Scheduler) Warnings() []string {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	return append([]string(nil), s.warnings...)
}

func (s *Scheduler) warn(msg string) {
	s.warnMu.Lock()
	s.warnings = append(s.warnings, msg)
	s.warnMu.Unlock()
}
