package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/pipeline"
)

var (
	flagActiveOnly bool
	flagRecent     bool
	flagBlockHours float64
	flagTokenLimit int64
	flagCostLimit  float64
)

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "5-hour billing block usage",
	RunE:  runBlocks,
}

func init() {
	f := blocksCmd.Flags()
	f.BoolVar(&flagActiveOnly, "active", false, "Show only the active block")
	f.BoolVar(&flagRecent, "recent", false, "Show only the last 3 days")
	f.Float64Var(&flagBlockHours, "block-hours", 0, "Block duration in hours (default from config)")
	f.Int64Var(&flagTokenLimit, "token-limit", 0, "Warn when a block exceeds this many tokens")
	f.Float64Var(&flagCostLimit, "cost-limit", 0, "Warn when a block exceeds this cost (default: historical max)")
	rootCmd.AddCommand(blocksCmd)
}

func runBlocks(_ *cobra.Command, _ []string) error {
	return runQuery(pipeline.ViewBlocks, tuneBlocks, renderBlocksResult)
}

// tuneBlocks applies block settings, flags over config.
func tuneBlocks(e *env, q *pipeline.Query) {
	q.BlockDuration = e.cfg.BlockDuration()
	if flagBlockHours > 0 {
		q.BlockDuration = time.Duration(flagBlockHours * float64(time.Hour))
	}
	q.WarnFraction = e.cfg.Blocks.WarnFraction
	q.TokenLimit = e.cfg.Blocks.TokenLimit
	if flagTokenLimit > 0 {
		q.TokenLimit = flagTokenLimit
	}
	if e.cfg.Blocks.CostLimit != nil {
		q.CostLimit = *e.cfg.Blocks.CostLimit
	}
	if flagCostLimit > 0 {
		q.CostLimit = flagCostLimit
	}
	if flagRecent {
		since := time.Now().AddDate(0, 0, -3)
		if q.Since.Before(since) {
			q.Since = since
		}
	}
}

func renderBlocksResult(res *pipeline.Result) {
	blocks := res.Blocks
	if flagActiveOnly {
		blocks = nil
		for _, blk := range res.Blocks {
			if blk.IsActive {
				blocks = append(blocks, blk)
			}
		}
	}
	if len(blocks) == 0 {
		if flagActiveOnly {
			fmt.Println("  No active block.")
		} else {
			fmt.Println("  No usage in the selected period.")
		}
		return
	}
	fmt.Print(cli.RenderBlocks(blocks))
	fmt.Print(cli.RenderActiveBlock(blocks))
	printBlockWarnings(blocks)
	fmt.Print(cli.RenderTotals(res.Totals))
}

func printBlockWarnings(blocks []model.SessionBlock) {
	for _, blk := range blocks {
		if !blk.IsActive || blk.Warning == model.WarnNone {
			continue
		}
		fmt.Printf("  Warning: active block is %s its limit\n", describeWarning(blk.Warning))
	}
}

func describeWarning(w model.WarnLevel) string {
	if w == model.WarnOver {
		return "over"
	}
	return "approaching"
}
