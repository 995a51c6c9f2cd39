package model

import "time"

// DailyUsage is the fold of one timezone-local calendar date.
type DailyUsage struct {
	Date       time.Time // midnight in the query location
	Tokens     TokenCounts
	TotalCost  float64
	ModelsUsed []string
	Entries    int
}

// DailyInstanceUsage is a per-instance slice of one calendar date,
// produced when the daily view runs with the instance breakdown enabled.
type DailyInstanceUsage struct {
	Date       time.Time
	InstanceID string
	Tokens     TokenCounts
	TotalCost  float64
	ModelsUsed []string
	Entries    int
}

// SessionUsage is the fold of one session id.
type SessionUsage struct {
	SessionID  string
	StartTime  time.Time
	EndTime    time.Time
	Tokens     TokenCounts
	TotalCost  float64
	ModelsUsed []string
	Project    string
	Entries    int
}

// Duration is the wall-clock span of the session. Never negative.
func (s SessionUsage) Duration() time.Duration {
	d := s.EndTime.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// MonthlyUsage is derived from finalized daily buckets, never from raw
// entries.
type MonthlyUsage struct {
	Month      string // "2006-01"
	Tokens     TokenCounts
	TotalCost  float64
	ActiveDays int
	Entries    int
}

// WarnLevel classifies a billing block against its configured limits.
type WarnLevel int

const (
	WarnNone WarnLevel = iota
	WarnApproaching
	WarnOver
)

func (w WarnLevel) String() string {
	switch w {
	case WarnApproaching:
		return "approaching"
	case WarnOver:
		return "over"
	}
	return "none"
}

// BlockBudget is what is left of the active block's window and limits.
// Components are clamped at zero.
type BlockBudget struct {
	TimeLeft   time.Duration
	CostLeft   float64
	TokensLeft int64
}

// SessionBlock is one fixed-duration billing window. Gap blocks carry no
// usage and exist only to keep consecutive windows contiguous.
type SessionBlock struct {
	StartTime time.Time // hour-aligned, or the previous block's end
	EndTime   time.Time // StartTime + duration; for gaps, the next window start

	// Actual first and last entry timestamps inside the window. Nil for
	// gap blocks.
	ActualStartTime *time.Time
	ActualEndTime   *time.Time

	IsActive bool
	IsGap    bool

	SessionIDs []string
	Tokens     TokenCounts
	TotalCost  float64
	ModelsUsed []string
	Entries    int

	Warning   WarnLevel
	Remaining *BlockBudget // active block only
}

// Totals is the grand total across a result's records.
type Totals struct {
	Tokens    TokenCounts
	TotalCost float64
	Entries   int
}

// PricingSource records where pricing data came from for a query.
type PricingSource int

const (
	PricingEmbedded PricingSource = iota
	PricingRemote
	PricingMixed
)

func (p PricingSource) String() string {
	switch p {
	case PricingRemote:
		return "remote"
	case PricingMixed:
		return "mixed"
	}
	return "embedded"
}

// Diagnostics accounts for every line touched while answering a query.
// ParsedEntries + SkippedLines + DeduplicatedEntries equals the total
// number of lines read; parsed entries are the ones that reached a fold.
type Diagnostics struct {
	ParsedEntries       int64
	SkippedLines        int64
	DeduplicatedEntries int64
	UnpricedEntries     int64
	FilesRead           int
	FileErrors          int
	CacheHits           int
	Reparsed            int
	PricingSource       PricingSource
}

// LinesRead is the total number of input lines the accounting covers.
func (d Diagnostics) LinesRead() int64 {
	return d.ParsedEntries + d.SkippedLines + d.DeduplicatedEntries
}
