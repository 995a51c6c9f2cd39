package pipeline

import (
	"sort"
	"time"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// DefaultBlockDuration is the standard billing window length.
const DefaultBlockDuration = 5 * time.Hour

// DefaultWarnFraction is the budget share at which a block is flagged as
// approaching its limit.
const DefaultWarnFraction = 0.8

// BlockConfig controls how billing blocks are cut and judged.
type BlockConfig struct {
	Duration time.Duration // zero means DefaultBlockDuration
	Now      time.Time     // zero means time.Now

	// TokenLimit and CostLimit bound each block. A zero cost limit is
	// replaced by the highest block cost seen in the data, so warnings
	// calibrate to the user's own history.
	TokenLimit   int64
	CostLimit    float64
	WarnFraction float64 // zero means DefaultWarnFraction
}

type blockEntry struct {
	ts        time.Time
	sessionID string
	modelName string
	tokens    model.TokenCounts
	cost      float64
}

// BlockBuilder collects costed entries and cuts them into fixed-duration
// hour-aligned windows on Finalize.
type BlockBuilder struct {
	entries []blockEntry
}

func NewBlockBuilder() *BlockBuilder {
	return &BlockBuilder{}
}

// Add records one costed entry for later windowing.
func (b *BlockBuilder) Add(e model.UsageEntry, cost float64) error {
	b.entries = append(b.entries, blockEntry{
		ts:        e.Timestamp,
		sessionID: e.SessionID,
		modelName: e.Model,
		tokens:    e.Tokens,
		cost:      cost,
	})
	return nil
}

type blockAcc struct {
	start    time.Time
	end      time.Time
	first    time.Time
	last     time.Time
	sessions modelSet
	models   modelSet
	tokens   model.TokenCounts
	cost     float64
	entries  int
}

func newBlockAcc(start time.Time, duration time.Duration) *blockAcc {
	return &blockAcc{
		start:    start,
		end:      start.Add(duration),
		sessions: make(modelSet),
		models:   make(modelSet),
	}
}

func (a *blockAcc) fold(e blockEntry) error {
	sum, err := a.tokens.Add(e.tokens)
	if err != nil {
		return err
	}
	a.tokens = sum
	a.cost += e.cost
	a.entries++
	a.sessions.add(e.sessionID)
	a.models.add(e.modelName)
	if a.first.IsZero() || e.ts.Before(a.first) {
		a.first = e.ts
	}
	if e.ts.After(a.last) {
		a.last = e.ts
	}
	return nil
}

func (a *blockAcc) finalize() model.SessionBlock {
	first, last := a.first, a.last
	return model.SessionBlock{
		StartTime:       a.start,
		EndTime:         a.end,
		ActualStartTime: &first,
		ActualEndTime:   &last,
		SessionIDs:      a.sessions.sorted(),
		Tokens:          a.tokens,
		TotalCost:       a.cost,
		ModelsUsed:      a.models.sorted(),
		Entries:         a.entries,
	}
}

// Finalize cuts the collected entries into billing blocks.
//
// The first window starts at the first entry's timestamp truncated to
// the hour (UTC). When a later entry falls past the current window's
// end, the next window starts at that end if the entry is within one
// duration of it; otherwise a gap block covering [end, entry hour) is
// emitted and a fresh hour-aligned window begins. Consecutive blocks are
// therefore always contiguous.
func (b *BlockBuilder) Finalize(cfg BlockConfig) ([]model.SessionBlock, error) {
	if len(b.entries) == 0 {
		return nil, nil
	}

	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultBlockDuration
	}
	now := cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	warnFraction := cfg.WarnFraction
	if warnFraction <= 0 {
		warnFraction = DefaultWarnFraction
	}

	entries := make([]blockEntry, len(b.entries))
	copy(entries, b.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts.Before(entries[j].ts) })

	var blocks []model.SessionBlock
	current := newBlockAcc(entries[0].ts.UTC().Truncate(time.Hour), duration)

	for _, e := range entries {
		for !e.ts.Before(current.end) {
			if current.entries > 0 {
				blocks = append(blocks, current.finalize())
			}
			if e.ts.Before(current.end.Add(duration)) {
				current = newBlockAcc(current.end, duration)
				continue
			}
			nextStart := e.ts.UTC().Truncate(time.Hour)
			// Sub-hour durations can truncate to before the current
			// window's end; never start a window in the past.
			if nextStart.Before(current.end) {
				nextStart = current.end
			}
			if nextStart.After(current.end) {
				blocks = append(blocks, model.SessionBlock{
					StartTime: current.end,
					EndTime:   nextStart,
					IsGap:     true,
				})
			}
			current = newBlockAcc(nextStart, duration)
		}
		if err := current.fold(e); err != nil {
			return nil, err
		}
	}
	blocks = append(blocks, current.finalize())

	costLimit := cfg.CostLimit
	if costLimit <= 0 {
		for _, blk := range blocks {
			if !blk.IsGap && blk.TotalCost > costLimit {
				costLimit = blk.TotalCost
			}
		}
	}

	for i := range blocks {
		blk := &blocks[i]
		if blk.IsGap {
			continue
		}
		blk.IsActive = !now.Before(blk.StartTime) && now.Before(blk.EndTime)
		blk.Warning = judge(blk.TotalCost, costLimit, warnFraction)
		if tw := judge(float64(blk.Tokens.Total()), float64(cfg.TokenLimit), warnFraction); tw > blk.Warning {
			blk.Warning = tw
		}
		if blk.IsActive {
			blk.Remaining = remaining(blk, now, costLimit, cfg.TokenLimit)
		}
	}

	return blocks, nil
}

// judge classifies spend against a limit. A non-positive limit means no
// limit is in force.
func judge(spent, limit, warnFraction float64) model.WarnLevel {
	if limit <= 0 {
		return model.WarnNone
	}
	switch {
	case spent >= limit:
		return model.WarnOver
	case spent >= limit*warnFraction:
		return model.WarnApproaching
	}
	return model.WarnNone
}

func remaining(blk *model.SessionBlock, now time.Time, costLimit float64, tokenLimit int64) *model.BlockBudget {
	budget := &model.BlockBudget{
		TimeLeft: blk.EndTime.Sub(now),
	}
	if budget.TimeLeft < 0 {
		budget.TimeLeft = 0
	}
	if costLimit > 0 {
		budget.CostLeft = costLimit - blk.TotalCost
		if budget.CostLeft < 0 {
			budget.CostLeft = 0
		}
	}
	if tokenLimit > 0 {
		budget.TokensLeft = tokenLimit - blk.Tokens.Total()
		if budget.TokensLeft < 0 {
			budget.TokensLeft = 0
		}
	}
	return budget
}
