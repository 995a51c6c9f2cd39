package pipeline

import (
	"sort"
	"time"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// modelSet accumulates distinct normalized model names.
type modelSet map[string]struct{}

func (s modelSet) add(name string) { s[name] = struct{}{} }

func (s modelSet) sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

type dailyAcc struct {
	date    time.Time
	tokens  model.TokenCounts
	cost    float64
	models  modelSet
	entries int
}

type instanceKey struct {
	date     string
	instance string
}

// DailyBuilder folds entries into timezone-local calendar dates. The
// fold is order independent; Finalize sorts ascending by date.
type DailyBuilder struct {
	loc       *time.Location
	breakdown bool

	days      map[string]*dailyAcc
	instances map[instanceKey]*dailyAcc
}

// NewDailyBuilder folds in the given location. With breakdown enabled a
// parallel per-instance fold is kept.
func NewDailyBuilder(loc *time.Location, breakdown bool) *DailyBuilder {
	if loc == nil {
		loc = time.UTC
	}
	b := &DailyBuilder{
		loc:  loc,
		days: make(map[string]*dailyAcc),
	}
	if breakdown {
		b.breakdown = true
		b.instances = make(map[instanceKey]*dailyAcc)
	}
	return b
}

func dayStart(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Add folds one costed entry.
func (b *DailyBuilder) Add(e model.UsageEntry, cost float64) error {
	day := dayStart(e.Timestamp, b.loc)
	key := day.Format("2006-01-02")

	acc, ok := b.days[key]
	if !ok {
		acc = &dailyAcc{date: day, models: make(modelSet)}
		b.days[key] = acc
	}
	if err := acc.fold(e, cost); err != nil {
		return err
	}

	if b.breakdown {
		ik := instanceKey{date: key, instance: e.InstanceID}
		iacc, ok := b.instances[ik]
		if !ok {
			iacc = &dailyAcc{date: day, models: make(modelSet)}
			b.instances[ik] = iacc
		}
		if err := iacc.fold(e, cost); err != nil {
			return err
		}
	}
	return nil
}

func (a *dailyAcc) fold(e model.UsageEntry, cost float64) error {
	sum, err := a.tokens.Add(e.Tokens)
	if err != nil {
		return err
	}
	a.tokens = sum
	a.cost += cost
	a.models.add(e.Model)
	a.entries++
	return nil
}

// Finalize returns the daily records sorted by date ascending.
func (b *DailyBuilder) Finalize() []model.DailyUsage {
	out := make([]model.DailyUsage, 0, len(b.days))
	for _, acc := range b.days {
		out = append(out, model.DailyUsage{
			Date:       acc.date,
			Tokens:     acc.tokens,
			TotalCost:  acc.cost,
			ModelsUsed: acc.models.sorted(),
			Entries:    acc.entries,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// FinalizeInstances returns the per-instance breakdown sorted by date
// then instance id, or nil when the breakdown was not enabled.
func (b *DailyBuilder) FinalizeInstances() []model.DailyInstanceUsage {
	if !b.breakdown {
		return nil
	}
	out := make([]model.DailyInstanceUsage, 0, len(b.instances))
	for k, acc := range b.instances {
		out = append(out, model.DailyInstanceUsage{
			Date:       acc.date,
			InstanceID: k.instance,
			Tokens:     acc.tokens,
			TotalCost:  acc.cost,
			ModelsUsed: acc.models.sorted(),
			Entries:    acc.entries,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out
}

type sessionAcc struct {
	start   time.Time
	end     time.Time
	tokens  model.TokenCounts
	cost    float64
	models  modelSet
	project string
	entries int
}

// SessionBuilder folds entries per session id, tracking the observed
// timestamp range.
type SessionBuilder struct {
	sessions map[string]*sessionAcc
}

func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{sessions: make(map[string]*sessionAcc)}
}

// Add folds one costed entry.
func (b *SessionBuilder) Add(e model.UsageEntry, cost float64) error {
	acc, ok := b.sessions[e.SessionID]
	if !ok {
		acc = &sessionAcc{start: e.Timestamp, end: e.Timestamp, models: make(modelSet)}
		b.sessions[e.SessionID] = acc
	}
	if e.Timestamp.Before(acc.start) {
		acc.start = e.Timestamp
	}
	if e.Timestamp.After(acc.end) {
		acc.end = e.Timestamp
	}

	sum, err := acc.tokens.Add(e.Tokens)
	if err != nil {
		return err
	}
	acc.tokens = sum
	acc.cost += cost
	acc.models.add(e.Model)
	if acc.project == "" {
		acc.project = e.Project
	}
	acc.entries++
	return nil
}

// Finalize returns sessions sorted by start time ascending, session id
// breaking ties so output is stable.
func (b *SessionBuilder) Finalize() []model.SessionUsage {
	out := make([]model.SessionUsage, 0, len(b.sessions))
	for id, acc := range b.sessions {
		out = append(out, model.SessionUsage{
			SessionID:  id,
			StartTime:  acc.start,
			EndTime:    acc.end,
			Tokens:     acc.tokens,
			TotalCost:  acc.cost,
			ModelsUsed: acc.models.sorted(),
			Project:    acc.project,
			Entries:    acc.entries,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// MonthlyFromDaily derives monthly records from finalized daily buckets.
// Months inherit the dailies' ordering, so the result is sorted when the
// input is.
func MonthlyFromDaily(daily []model.DailyUsage) ([]model.MonthlyUsage, error) {
	type monthlyAcc struct {
		tokens  model.TokenCounts
		cost    float64
		days    int
		entries int
	}

	months := make(map[string]*monthlyAcc)
	var order []string
	for _, d := range daily {
		key := d.Date.Format("2006-01")
		acc, ok := months[key]
		if !ok {
			acc = &monthlyAcc{}
			months[key] = acc
			order = append(order, key)
		}
		sum, err := acc.tokens.Add(d.Tokens)
		if err != nil {
			return nil, err
		}
		acc.tokens = sum
		acc.cost += d.TotalCost
		acc.days++
		acc.entries += d.Entries
	}

	out := make([]model.MonthlyUsage, 0, len(order))
	for _, key := range order {
		acc := months[key]
		out = append(out, model.MonthlyUsage{
			Month:      key,
			Tokens:     acc.tokens,
			TotalCost:  acc.cost,
			ActiveDays: acc.days,
			Entries:    acc.entries,
		})
	}
	return out, nil
}
