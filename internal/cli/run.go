package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stampede/internal/api"
	"stampede/internal/config"
	"stampede/internal/history"
	"stampede/internal/metrics"
	"stampede/internal/report"
	"stampede/internal/runner"
	"stampede/internal/scenario"
)

var runFlags struct {
	host          string
	scenarioName  string
	configFile    string
	users         int
	spawnRate     float64
	duration      time.Duration
	timeout       time.Duration
	failThreshold float64
	seed          int64
	insecure      bool

	jsonOutput bool
	outputPath string
	quiet      bool
	noHistory  bool

	interactive bool
	port        int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test against a target host",
	Long: `Ramp simulated users against a target host and report the results.

Built-in scenario:
  stampede run --host http://localhost:8080 --scenario ecommerce \
    --users 50 --spawn-rate 5 --duration 2m

Custom scenario file:
  stampede run --host http://localhost:8080 --config checkout.yaml \
    --users 20 --spawn-rate 2 --duration 1m --fail-threshold 0.05`,
	RunE: runLoadTest,
}

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&runFlags.host, "host", "", "target base URL (required)")
	flags.StringVar(&runFlags.scenarioName, "scenario", "ecommerce", "built-in scenario name")
	flags.StringVar(&runFlags.configFile, "config", "", "custom scenario YAML file (overrides --scenario)")
	flags.IntVarP(&runFlags.users, "users", "u", 10, "target number of concurrent users")
	flags.Float64VarP(&runFlags.spawnRate, "spawn-rate", "r", 1, "users started per second during ramp-up")
	flags.DurationVarP(&runFlags.duration, "duration", "d", time.Minute, "total run duration (0 = until interrupted)")
	flags.DurationVar(&runFlags.timeout, "timeout", 30*time.Second, "per-request timeout")
	flags.Float64Var(&runFlags.failThreshold, "fail-threshold", -1, "maximum acceptable failure rate in [0,1] (-1 disables)")
	flags.Int64Var(&runFlags.seed, "seed", 0, "RNG seed for reproducible user behavior (0 = random)")
	flags.BoolVar(&runFlags.insecure, "insecure", false, "skip TLS certificate verification")

	flags.BoolVar(&runFlags.jsonOutput, "json", false, "print the summary as JSON")
	flags.StringVarP(&runFlags.outputPath, "output", "o", "", "also write the JSON summary to a file")
	flags.BoolVarP(&runFlags.quiet, "quiet", "q", false, "suppress progress output")
	flags.BoolVar(&runFlags.noHistory, "no-history", false, "do not record this run in the history database")

	flags.BoolVar(&runFlags.interactive, "interactive", false, "expose a local status API while the run is active")
	flags.IntVar(&runFlags.port, "port", 8089, "status API port for --interactive")

	runCmd.MarkFlagRequired("host")
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	sc, err := resolveScenario()
	if err != nil {
		return err
	}

	cfg := runner.Config{
		Host:               runFlags.host,
		Scenario:           sc,
		Users:              runFlags.users,
		SpawnRate:          runFlags.spawnRate,
		Duration:           runFlags.duration,
		Timeout:            runFlags.timeout,
		FailThreshold:      runFlags.failThreshold,
		Seed:               runFlags.seed,
		InsecureSkipVerify: runFlags.insecure,
	}
	if !runFlags.quiet && !runFlags.jsonOutput {
		cfg.OnProgress = func(snap *metrics.Snapshot) {
			fmt.Fprintln(os.Stderr, report.ProgressLine(snap))
		}
		cfg.ProgressInterval = time.Second
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	r := runner.New(cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// First signal drains gracefully; a second one aborts.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "interrupt received, draining users (press again to abort)")
			r.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if runFlags.interactive {
		srv := api.NewServer(fmt.Sprintf(":%d", runFlags.port))
		srv.Attach(r, sc.Name, runFlags.host)
		go func() {
			if err := srv.Start(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "status API: %v\n", err)
			}
		}()
		defer srv.Detach()
	}

	summary, err := r.Run(ctx)
	if err != nil {
		return err
	}

	if err := emitSummary(summary); err != nil {
		return err
	}

	if !runFlags.noHistory {
		if err := saveHistory(summary); err != nil {
			fmt.Fprintf(os.Stderr, "warning: history not saved: %v\n", err)
		}
	}

	if !summary.Passed {
		return fmt.Errorf("%w: %.2f%% > %.2f%%",
			errThresholdExceeded, summary.FailureRate*100, summary.FailThreshold*100)
	}
	return nil
}

func resolveScenario() (*scenario.Scenario, error) {
	if runFlags.configFile != "" {
		return config.Load(runFlags.configFile)
	}

	sc, ok := scenario.Get(runFlags.scenarioName)
	if !ok {
		return nil, &scenario.ConfigError{
			Field:   "scenario",
			Message: fmt.Sprintf("unknown scenario %q (run 'stampede scenarios' to list)", runFlags.scenarioName),
		}
	}
	return sc, nil
}

func emitSummary(summary *report.Summary) error {
	if runFlags.jsonOutput {
		if err := report.WriteJSON(os.Stdout, summary); err != nil {
			return err
		}
	} else if !runFlags.quiet {
		report.NewRenderer(os.Stdout, report.ColorEnabled(os.Stdout)).Render(summary)
	}

	if runFlags.outputPath != "" {
		f, err := os.Create(runFlags.outputPath)
		if err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		defer f.Close()
		if err := report.WriteJSON(f, summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

func saveHistory(summary *report.Summary) error {
	path, err := history.DefaultPath()
	if err != nil {
		return err
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(summary)
}
