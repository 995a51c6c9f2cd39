package cmd

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/pipeline"
	"github.com/theirongolddev/ccmeter/internal/source"
	"github.com/theirongolddev/ccmeter/internal/tui"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Live billing block monitor",
	RunE:  runLive,
}

func init() {
	rootCmd.AddCommand(liveCmd)
}

func runLive(_ *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	var roots []string
	if flagDataDir != "" {
		roots = append(roots, flagDataDir)
	} else if e.cfg.General.DataDir != "" {
		roots = append(roots, e.cfg.General.DataDir)
	} else {
		roots = source.DiscoverRoots()
	}

	query := func() (*pipeline.Result, error) {
		// Re-scan so files created since the last refresh are included.
		var sources []source.Source
		for _, root := range roots {
			srcs, err := source.ScanDir(root)
			if err != nil {
				continue
			}
			sources = append(sources, srcs...)
		}
		e.loader.Sources = sources

		q, err := e.baseQuery(pipeline.ViewBlocks)
		if err != nil {
			return nil, err
		}
		tuneBlocks(e, &q)
		res, err := pipeline.Run(context.Background(), e.loader, e.calc, q)
		if err != nil {
			return nil, err
		}
		return res.WithPricingSource(e.fetcher), nil
	}

	monitor := tui.NewMonitor(query, roots, e.logger)
	defer monitor.Close()

	prog := tea.NewProgram(monitor, tea.WithAltScreen())
	_, err = prog.Run()
	return err
}
