package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/config"
	"github.com/theirongolddev/ccmeter/internal/source"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()

	found := source.Discover()
	fmt.Println()
	fmt.Println("  Welcome to ccmeter!")
	if len(found) > 0 {
		fmt.Printf("  Found %s log files across %d data roots.\n",
			cli.FormatNumber(int64(len(found))), countRoots(found))
	}
	fmt.Println()

	dataDir := cfg.General.DataDir
	timezone := cfg.General.Timezone
	costMode := cfg.General.CostMode
	days := strconv.Itoa(cfg.General.Days)
	blockHours := strconv.FormatFloat(cfg.Blocks.DurationHours, 'g', -1, 64)
	offline := cfg.Pricing.Offline

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Claude data directory").
				Description("Leave blank to auto-discover").
				Value(&dataDir),
			huh.NewInput().
				Title("Timezone").
				Description("IANA name, e.g. America/New_York; blank for system").
				Value(&timezone),
			huh.NewSelect[string]().
				Title("Cost mode").
				Options(
					huh.NewOption("Auto (trust logged costs, compute the rest)", "auto"),
					huh.NewOption("Calculate (always compute from pricing)", "calculate"),
					huh.NewOption("Display (logged costs only)", "display"),
				).
				Value(&costMode),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default time range").
				Options(
					huh.NewOption("7 days", "7"),
					huh.NewOption("30 days", "30"),
					huh.NewOption("90 days", "90"),
				).
				Value(&days),
			huh.NewInput().
				Title("Billing block duration (hours)").
				Value(&blockHours).
				Validate(func(s string) error {
					v, err := strconv.ParseFloat(s, 64)
					if err != nil || v <= 0 {
						return fmt.Errorf("enter a positive number of hours")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Offline mode?").
				Description("Never fetch remote pricing, use the embedded table").
				Value(&offline),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	cfg.General.DataDir = dataDir
	cfg.General.Timezone = timezone
	cfg.General.CostMode = costMode
	if n, err := strconv.Atoi(days); err == nil {
		cfg.General.Days = n
	}
	if v, err := strconv.ParseFloat(blockHours, 64); err == nil {
		cfg.Blocks.DurationHours = v
	}
	cfg.Pricing.Offline = offline

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `ccmeter setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

func countRoots(sources []source.Source) int {
	seen := make(map[string]struct{})
	for _, s := range sources {
		seen[s.InstanceID] = struct{}{}
	}
	return len(seen)
}
