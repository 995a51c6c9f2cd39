package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/pipeline"
)

var flagBreakdown bool

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Daily usage and cost",
	RunE:  runDaily,
}

func init() {
	dailyCmd.Flags().BoolVarP(&flagBreakdown, "breakdown", "b", false, "Split each day per instance")
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(_ *cobra.Command, _ []string) error {
	return runQuery(pipeline.ViewDaily,
		func(_ *env, q *pipeline.Query) { q.Breakdown = flagBreakdown },
		func(res *pipeline.Result) {
			if len(res.Daily) == 0 {
				fmt.Println("  No usage in the selected period.")
				return
			}
			fmt.Print(cli.RenderDaily(res.Daily))
			if len(res.DailyByInstance) > 0 {
				fmt.Println()
				fmt.Print(cli.RenderDailyInstances(res.DailyByInstance))
			}
			fmt.Print(cli.RenderTotals(res.Totals))
		})
}
