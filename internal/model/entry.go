package model

import (
	"fmt"
	"strings"
	"time"
)

// UsageEntry is one parsed log line describing a single model invocation.
// Entries are immutable after parsing; an entry is only materialized when
// both its timestamp and its token counts are valid.
type UsageEntry struct {
	SessionID string
	Timestamp time.Time // UTC-normalized
	Model     string
	Tokens    TokenCounts

	// CostUSD is the pre-computed cost recorded in the log, if any.
	CostUSD *float64

	Project    string
	InstanceID string

	// Identity fields used for deduplication across overlapping exports.
	MessageID string
	RequestID string

	// Provenance, diagnostics only.
	SourceFile string
	SourceLine int
}

// CostMode governs whether a pre-computed or freshly computed cost is trusted.
type CostMode int

const (
	// CostModeAuto uses the entry's pre-computed cost when present and
	// computes from pricing otherwise.
	CostModeAuto CostMode = iota
	// CostModeCalculate always computes from pricing, ignoring any
	// pre-computed cost.
	CostModeCalculate
	// CostModeDisplay reports the pre-computed cost, falling back to zero
	// when absent. It never fails.
	CostModeDisplay
)

func (m CostMode) String() string {
	switch m {
	case CostModeAuto:
		return "auto"
	case CostModeCalculate:
		return "calculate"
	case CostModeDisplay:
		return "display"
	}
	return fmt.Sprintf("CostMode(%d)", int(m))
}

// ParseCostMode parses "auto", "calculate" or "display" (case-insensitive).
func ParseCostMode(s string) (CostMode, error) {
	switch strings.ToLower(s) {
	case "auto", "":
		return CostModeAuto, nil
	case "calculate":
		return CostModeCalculate, nil
	case "display":
		return CostModeDisplay, nil
	}
	return CostModeAuto, fmt.Errorf("invalid cost mode %q", s)
}
