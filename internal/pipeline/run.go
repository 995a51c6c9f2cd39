package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/ccmeter/internal/cost"
	"github.com/theirongolddev/ccmeter/internal/model"
)

// View selects which aggregation a query produces.
type View int

const (
	ViewDaily View = iota
	ViewSessions
	ViewMonthly
	ViewBlocks
)

// Query describes one aggregation request.
type Query struct {
	View View
	Mode model.CostMode

	// Policy decides whether an unpriced model excludes the entry's cost
	// or fails the query. Display mode never consults it.
	Policy cost.Policy

	// Since and Until bound entry timestamps as [Since, Until). Zero
	// values leave that side unbounded.
	Since time.Time
	Until time.Time

	// Location is the timezone for daily bucketing. Nil means UTC.
	Location *time.Location

	// Project, when set, keeps only entries from that project.
	Project string

	// Breakdown adds the per-instance daily slices to a daily view.
	Breakdown bool

	// Billing block tuning, blocks view only.
	BlockDuration time.Duration
	TokenLimit    int64
	CostLimit     float64
	WarnFraction  float64
	Now           time.Time
}

// Result is a query's records plus totals and line accounting.
type Result struct {
	Daily           []model.DailyUsage
	DailyByInstance []model.DailyInstanceUsage
	Sessions        []model.SessionUsage
	Monthly         []model.MonthlyUsage
	Blocks          []model.SessionBlock

	Totals      model.Totals
	Diagnostics model.Diagnostics
}

// PricingSourcer reports where pricing data came from. *pricing.Fetcher
// satisfies it.
type PricingSourcer interface {
	Source() model.PricingSource
}

// Run streams the loader's entries through the view's fold. Token
// overflow and, under a strict policy, unpriced models abort the query.
func Run(ctx context.Context, loader *Loader, calc *cost.Calculator, q Query) (*Result, error) {
	logger := loader.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}

	var (
		daily    *DailyBuilder
		sessions *SessionBuilder
		blocks   *BlockBuilder
	)
	switch q.View {
	case ViewDaily, ViewMonthly:
		daily = NewDailyBuilder(loc, q.View == ViewDaily && q.Breakdown)
	case ViewSessions:
		sessions = NewSessionBuilder()
	case ViewBlocks:
		blocks = NewBlockBuilder()
	}

	res := &Result{}
	var unpriced int64

	diag, err := loader.Each(ctx, func(e model.UsageEntry) error {
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			return nil
		}
		if !q.Until.IsZero() && !e.Timestamp.Before(q.Until) {
			return nil
		}
		if q.Project != "" && e.Project != q.Project {
			return nil
		}

		entryCost, err := calc.WithMode(ctx, q.Mode, e)
		if err != nil {
			var unknown *cost.UnknownModelError
			if errors.As(err, &unknown) && q.Policy == cost.PolicyExclude {
				unpriced++
				logger.Warn("no pricing for model, cost excluded",
					zap.String("model", unknown.Model),
					zap.String("file", e.SourceFile),
					zap.Int("line", e.SourceLine))
				entryCost = 0
			} else {
				return err
			}
		}

		sum, err := res.Totals.Tokens.Add(e.Tokens)
		if err != nil {
			return err
		}
		res.Totals.Tokens = sum
		res.Totals.TotalCost += entryCost
		res.Totals.Entries++

		switch {
		case daily != nil:
			return daily.Add(e, entryCost)
		case sessions != nil:
			return sessions.Add(e, entryCost)
		case blocks != nil:
			return blocks.Add(e, entryCost)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch q.View {
	case ViewDaily:
		res.Daily = daily.Finalize()
		res.DailyByInstance = daily.FinalizeInstances()
	case ViewMonthly:
		monthly, err := MonthlyFromDaily(daily.Finalize())
		if err != nil {
			return nil, err
		}
		res.Monthly = monthly
	case ViewSessions:
		res.Sessions = sessions.Finalize()
	case ViewBlocks:
		blks, err := blocks.Finalize(BlockConfig{
			Duration:     q.BlockDuration,
			Now:          q.Now,
			TokenLimit:   q.TokenLimit,
			CostLimit:    q.CostLimit,
			WarnFraction: q.WarnFraction,
		})
		if err != nil {
			return nil, err
		}
		res.Blocks = blks
	}

	diag.UnpricedEntries = unpriced
	res.Diagnostics = diag
	return res, nil
}

// WithPricingSource stamps the diagnostics with the pricing provenance
// once the query has run, since lookups happen lazily during the fold.
func (r *Result) WithPricingSource(p PricingSourcer) *Result {
	if p != nil {
		r.Diagnostics.PricingSource = p.Source()
	}
	return r
}
