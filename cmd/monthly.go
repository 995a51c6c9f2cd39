package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/pipeline"
)

var monthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Monthly usage and cost",
	RunE:  runMonthly,
}

func init() {
	rootCmd.AddCommand(monthlyCmd)
}

func runMonthly(_ *cobra.Command, _ []string) error {
	return runQuery(pipeline.ViewMonthly, nil,
		func(res *pipeline.Result) {
			if len(res.Monthly) == 0 {
				fmt.Println("  No usage in the selected period.")
				return
			}
			fmt.Print(cli.RenderMonthly(res.Monthly))
			fmt.Print(cli.RenderTotals(res.Totals))
		})
}
