// Package cli wires the stampede commands.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stampede/internal/runner"
	"stampede/internal/scenario"
)

var version = "0.1.0"

// Exit codes.
const (
	ExitOK          = 0
	ExitRunFailed   = 1
	ExitConfigError = 2
	ExitUnreachable = 3
)

// RootCmd is the base command.
var RootCmd = &cobra.Command{
	Use:     "stampede",
	Short:   "A scriptable HTTP load generator",
	Version: version,
	Long: `Stampede drives swarms of simulated users against an HTTP service.
Scenarios describe what each user does (weighted task mixes or sequential
flows), a scheduler ramps the user count up at a configurable rate, and
latency percentiles, throughput, and failure rates are reported per endpoint.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCode(err)
	}
	return ExitOK
}

// errThresholdExceeded marks a completed run that failed its threshold.
var errThresholdExceeded = errors.New("failure rate exceeded threshold")

func exitCode(err error) int {
	var cfgErr *scenario.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.Is(err, runner.ErrHostUnreachable):
		return ExitUnreachable
	default:
		return ExitRunFailed
	}
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(scenariosCmd)
	RootCmd.AddCommand(historyCmd)
}
