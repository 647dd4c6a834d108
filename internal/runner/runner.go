// Package runner orchestrates a full load-test run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"stampede/internal/httpexec"
	"stampede/internal/metrics"
	"stampede/internal/report"
	"stampede/internal/scenario"
	"stampede/internal/schedule"
)

// ErrHostUnreachable is returned when the target host does not answer
// the pre-run probe. No load is generated in that case.
var ErrHostUnreachable = errors.New("host unreachable")

// Config describes one run.
type Config struct {
	Host     string
	Scenario *scenario.Scenario

	Users     int
	SpawnRate float64
	Duration  time.Duration

	// Timeout is the per-request timeout. Zero means the executor default.
	Timeout time.Duration

	// FailThreshold is the maximum acceptable overall failure rate in
	// [0, 1]. Negative disables the check.
	FailThreshold float64

	// Seed makes user RNG streams reproducible. Zero picks a time-based
	// seed.
	Seed int64

	// SkipProbe disables the pre-run reachability check.
	SkipProbe bool

	InsecureSkipVerify bool

	// StopTimeout bounds the graceful drain. Zero means the scheduler
	// default.
	StopTimeout time.Duration

	// OnProgress, when set, receives a metrics snapshot once per
	// ProgressInterval while the run is active.
	OnProgress       func(*metrics.Snapshot)
	ProgressInterval time.Duration
}

// Validate checks the run configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return &scenario.ConfigError{Field: "host", Message: "target host is required"}
	}
	if c.Scenario == nil {
		return &scenario.ConfigError{Field: "scenario", Message: "a scenario is required"}
	}
	if err := c.Scenario.Validate(); err != nil {
		return err
	}
	if c.FailThreshold > 1 {
		return &scenario.ConfigError{Field: "fail-threshold", Message: fmt.Sprintf("must be within [0, 1], got %g", c.FailThreshold)}
	}
	return schedule.Config{
		TargetUsers: c.Users,
		SpawnRate:   c.SpawnRate,
		Duration:    c.Duration,
	}.Validate()
}

// Runner executes one load test and produces its summary.
type Runner struct {
	cfg   Config
	runID string

	agg   *metrics.Aggregator
	exec  *httpexec.Executor
	sched *schedule.Scheduler

	interrupted atomic.Bool
	stopOnce    sync.Once
}

// New creates a runner for a validated configuration.
func New(cfg Config) *Runner {
	execCfg := httpexec.DefaultConfig(cfg.Host)
	if cfg.Timeout > 0 {
		execCfg.Timeout = cfg.Timeout
	}
	execCfg.InsecureSkipVerify = cfg.InsecureSkipVerify

	agg := metrics.NewAggregator()
	exec := httpexec.New(execCfg)
	sched := schedule.New(schedule.Config{
		TargetUsers: cfg.Users,
		SpawnRate:   cfg.SpawnRate,
		Duration:    cfg.Duration,
		StopTimeout: cfg.StopTimeout,
		Seed:        cfg.Seed,
	}, cfg.Scenario, exec, agg)

	return &Runner{
		cfg:   cfg,
		runID: uuid.NewString(),
		agg:   agg,
		exec:  exec,
		sched: sched,
	}
}

// ID returns the unique identifier assigned to this run.
func (r *Runner) ID() string {
	return r.runID
}

// Snapshot returns the current metrics while the run is active.
func (r *Runner) Snapshot() *metrics.Snapshot {
	return r.agg.Snapshot()
}

// Stop requests early shutdown. The run still produces a summary over
// whatever it measured; its Interrupted flag is set.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.interrupted.Store(true)
		r.sched.Stop()
	})
}

// Run probes the target, ramps the load, and returns the summary.
//
// A summary is produced even when the run is interrupted; only probe
// failure and invalid configuration return without one.
func (r *Runner) Run(ctx context.Context) (*report.Summary, error) {
	defer r.agg.Stop()
	defer r.exec.CloseIdle()

	if !r.cfg.SkipProbe {
		if err := r.exec.Probe(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHostUnreachable, err)
		}
	}

	progressDone := r.startProgress(ctx)

	err := r.sched.Run(ctx)
	close(progressDone)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		r.interrupted.Store(true)
	}

	snap := r.agg.Snapshot()
	summary := report.Build(
		r.runID,
		r.cfg.Scenario.Name,
		r.exec.BaseURL(),
		r.cfg.Users,
		r.cfg.SpawnRate,
		snap,
		r.cfg.FailThreshold,
		r.interrupted.Load(),
		r.sched.Warnings(),
	)
	return summary, nil
}

// startProgress launches the periodic progress callback. The returned
// channel must be closed when the run ends.
func (r *Runner) startProgress(ctx context.Context) chan struct{} {
	done := make(chan struct{})
	if r.cfg.OnProgress == nil {
		return done
	}

	interval := r.cfg.ProgressInterval
	if interval == 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cfg.OnProgress(r.agg.Snapshot())
			}
		}
	}()
	return done
}
