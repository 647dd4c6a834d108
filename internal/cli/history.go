package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stampede/internal/history"
	"stampede/internal/report"
)

var historyFlags struct {
	limit      int
	jsonOutput bool
	show       string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs recorded in the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := history.DefaultPath()
		if err != nil {
			return err
		}
		store, err := history.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		if historyFlags.show != "" {
			summary, err := store.Get(historyFlags.show)
			if err != nil {
				return err
			}
			if historyFlags.jsonOutput {
				return report.WriteJSON(cmd.OutOrStdout(), summary)
			}
			report.NewRenderer(cmd.OutOrStdout(), report.ColorEnabled(os.Stdout)).Render(summary)
			return nil
		}

		items, err := store.List(historyFlags.limit)
		if err != nil {
			return err
		}

		if historyFlags.jsonOutput {
			if items == nil {
				items = []*report.Summary{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-20s %-14s %8s %8s %8s  %s\n",
			"RUN ID", "START", "SCENARIO", "REQS", "FAIL%", "RPS", "RESULT")
		for _, item := range items {
			result := "passed"
			if !item.Passed {
				result = "failed"
			}
			if item.Interrupted {
				result += " (interrupted)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-20s %-14s %8d %7.2f%% %8.1f  %s\n",
				item.RunID,
				item.Start.Local().Format(time.DateTime),
				item.Scenario,
				item.TotalRequests,
				item.FailureRate*100,
				item.RPS,
				result)
		}
		return nil
	},
}

func init() {
	flags := historyCmd.Flags()
	flags.IntVarP(&historyFlags.limit, "limit", "n", 20, "maximum number of runs to list (0 = all)")
	flags.BoolVar(&historyFlags.jsonOutput, "json", false, "print runs as JSON")
	flags.StringVar(&historyFlags.show, "show", "", "show the full summary for one run ID")
}
