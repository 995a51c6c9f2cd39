// Package cmd wires the ccmeter CLI.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/config"
	"github.com/theirongolddev/ccmeter/internal/cost"
	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/pipeline"
	"github.com/theirongolddev/ccmeter/internal/pricing"
	"github.com/theirongolddev/ccmeter/internal/source"
	"github.com/theirongolddev/ccmeter/internal/store"
)

var (
	flagDataDir  string
	flagDays     int
	flagSince    string
	flagUntil    string
	flagTimezone string
	flagMode     string
	flagProject  string
	flagJSON     bool
	flagQuiet    bool
	flagVerbose  bool
	flagNoCache  bool
	flagOffline  bool
	flagStrict   bool
)

var rootCmd = &cobra.Command{
	Use:   "ccmeter",
	Short: "Claude usage and cost meter",
	Long:  "Aggregate Claude Code usage logs into daily, session, monthly and billing-block cost reports.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagDataDir, "data-dir", "d", "", "Claude data directory (default: auto-discover)")
	pf.IntVarP(&flagDays, "days", "n", 0, "Time window in days (0 = config default)")
	pf.StringVar(&flagSince, "since", "", "Start date, inclusive (YYYY-MM-DD)")
	pf.StringVar(&flagUntil, "until", "", "End date, exclusive (YYYY-MM-DD)")
	pf.StringVarP(&flagTimezone, "timezone", "z", "", "IANA timezone for daily bucketing")
	pf.StringVarP(&flagMode, "mode", "m", "", "Cost mode: auto, calculate or display")
	pf.StringVarP(&flagProject, "project", "p", "", "Filter to a single project")
	pf.BoolVar(&flagJSON, "json", false, "Emit JSON instead of tables")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress the diagnostics footer")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Log per-line parse warnings")
	pf.BoolVar(&flagNoCache, "no-cache", false, "Skip the parse cache, reparse everything")
	pf.BoolVar(&flagOffline, "offline", false, "Never fetch remote pricing")
	pf.BoolVar(&flagStrict, "strict", false, "Fail on entries with unknown model pricing")
}

// env bundles everything a query command needs.
type env struct {
	cfg     config.Config
	logger  *zap.Logger
	loader  *pipeline.Loader
	fetcher *pricing.Fetcher
	calc    *cost.Calculator
	cache   *store.Cache
	loc     *time.Location
}

func (e *env) close() {
	if e.cache != nil {
		_ = e.cache.Close()
	}
	_ = e.logger.Sync()
}

func newLogger() *zap.Logger {
	level := zapcore.ErrorLevel
	if flagVerbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// setup loads config and builds the shared pipeline pieces.
func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if flagTimezone != "" {
		loc, err = time.LoadLocation(flagTimezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", flagTimezone, err)
		}
	}

	var roots []string
	if flagDataDir != "" {
		roots = append(roots, flagDataDir)
	} else if cfg.General.DataDir != "" {
		roots = append(roots, cfg.General.DataDir)
	}
	var sources []source.Source
	if len(roots) > 0 {
		for _, root := range roots {
			srcs, err := source.ScanDir(root)
			if err != nil {
				return nil, fmt.Errorf("scanning %s: %w", root, err)
			}
			sources = append(sources, srcs...)
		}
	} else {
		sources = source.Discover()
	}

	var cache *store.Cache
	if !flagNoCache {
		cache, err = store.Open(config.CachePath())
		if err != nil {
			logger.Warn("parse cache unavailable", zap.Error(err))
			cache = nil
		}
	}

	fetcher, err := pricing.NewFetcher(
		pricing.WithOffline(flagOffline || cfg.Pricing.Offline),
		pricing.WithTTL(cfg.PricingTTL()),
		pricing.WithOverrides(cfg.OverrideTable()),
		pricing.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		loader: &pipeline.Loader{
			Sources: sources,
			Logger:  logger,
			Cache:   cache,
		},
		fetcher: fetcher,
		calc:    cost.NewCalculator(fetcher),
		cache:   cache,
		loc:     loc,
	}, nil
}

// baseQuery translates the shared flags into a query descriptor.
func (e *env) baseQuery(view pipeline.View) (pipeline.Query, error) {
	mode := flagMode
	if mode == "" {
		mode = e.cfg.General.CostMode
	}
	costMode, err := model.ParseCostMode(mode)
	if err != nil {
		return pipeline.Query{}, err
	}

	q := pipeline.Query{
		View:     view,
		Mode:     costMode,
		Location: e.loc,
		Project:  flagProject,
	}
	if flagStrict {
		q.Policy = cost.PolicyStrict
	}

	if flagSince != "" {
		since, err := time.ParseInLocation("2006-01-02", flagSince, e.loc)
		if err != nil {
			return pipeline.Query{}, fmt.Errorf("invalid --since: %w", err)
		}
		q.Since = since
	}
	if flagUntil != "" {
		until, err := time.ParseInLocation("2006-01-02", flagUntil, e.loc)
		if err != nil {
			return pipeline.Query{}, fmt.Errorf("invalid --until: %w", err)
		}
		q.Until = until
	}
	if q.Since.IsZero() {
		days := flagDays
		if days <= 0 {
			days = e.cfg.General.Days
		}
		if days > 0 {
			q.Since = time.Now().In(e.loc).AddDate(0, 0, -days)
		}
	}
	return q, nil
}

// runQuery executes a query and hands the result to render, or emits it
// as JSON.
func runQuery(view pipeline.View, tune func(*env, *pipeline.Query), render func(*pipeline.Result)) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	q, err := e.baseQuery(view)
	if err != nil {
		return err
	}
	if tune != nil {
		tune(e, &q)
	}

	res, err := pipeline.Run(context.Background(), e.loader, e.calc, q)
	if err != nil {
		return err
	}
	res.WithPricingSource(e.fetcher)

	if flagJSON {
		return cli.WriteJSON(os.Stdout, res)
	}

	fmt.Println()
	render(res)
	if !flagQuiet {
		fmt.Print(cli.RenderDiagnostics(res.Diagnostics))
	}
	return nil
}
