package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/pipeline"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Per-session usage and cost",
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(_ *cobra.Command, _ []string) error {
	return runQuery(pipeline.ViewSessions, nil,
		func(res *pipeline.Result) {
			if len(res.Sessions) == 0 {
				fmt.Println("  No sessions in the selected period.")
				return
			}
			fmt.Print(cli.RenderSessions(res.Sessions))
			fmt.Print(cli.RenderTotals(res.Totals))
		})
}
