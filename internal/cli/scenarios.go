package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stampede/internal/report"
	"stampede/internal/scenario"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the built-in scenarios",
	Run: func(cmd *cobra.Command, args []string) {
		described := scenario.Describe()
		name := color.New(color.FgCyan, color.Bold)
		if !report.ColorEnabled(os.Stdout) {
			name.DisableColor()
		}

		for _, n := range scenario.Names() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", name.Sprint(n), described[n])
		}
	},
}
