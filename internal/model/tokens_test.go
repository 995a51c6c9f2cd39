package model

import (
	"errors"
	"math"
	"testing"
)

func TestTokenCountsAdd(t *testing.T) {
	a := TokenCounts{InputTokens: 1000, OutputTokens: 500, CacheCreationTokens: 100, CacheReadTokens: 50}
	b := TokenCounts{InputTokens: 1, OutputTokens: 2, CacheCreationTokens: 3, CacheReadTokens: 4}

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	want := TokenCounts{InputTokens: 1001, OutputTokens: 502, CacheCreationTokens: 103, CacheReadTokens: 54}
	if sum != want {
		t.Errorf("sum = %+v, want %+v", sum, want)
	}
	if got := sum.Total(); got != 1660 {
		t.Errorf("Total = %d, want 1660", got)
	}
}

func TestTokenCountsAddOverflow(t *testing.T) {
	cases := []struct {
		name string
		a, b TokenCounts
	}{
		{"input", TokenCounts{InputTokens: math.MaxInt64}, TokenCounts{InputTokens: 1}},
		{"output", TokenCounts{OutputTokens: math.MaxInt64 - 5}, TokenCounts{OutputTokens: 6}},
		{"cache_creation", TokenCounts{CacheCreationTokens: math.MaxInt64}, TokenCounts{CacheCreationTokens: math.MaxInt64}},
		{"cache_read", TokenCounts{CacheReadTokens: 1}, TokenCounts{CacheReadTokens: math.MaxInt64}},
		{"input underflow", TokenCounts{InputTokens: math.MinInt64}, TokenCounts{InputTokens: -1}},
		{"output underflow", TokenCounts{OutputTokens: -2}, TokenCounts{OutputTokens: math.MinInt64 + 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.a.Add(tc.b); !errors.Is(err, ErrTokenOverflow) {
				t.Errorf("Add = %v, want ErrTokenOverflow", err)
			}
		})
	}
}

func TestTokenCountsAddAtLimit(t *testing.T) {
	a := TokenCounts{InputTokens: math.MaxInt64 - 10}
	b := TokenCounts{InputTokens: 10}
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add at limit: %v", err)
	}
	if sum.InputTokens != math.MaxInt64 {
		t.Errorf("InputTokens = %d, want MaxInt64", sum.InputTokens)
	}
}

func TestParseCostMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want CostMode
		ok   bool
	}{
		{"auto", CostModeAuto, true},
		{"Calculate", CostModeCalculate, true},
		{"DISPLAY", CostModeDisplay, true},
		{"", CostModeAuto, true},
		{"bogus", CostModeAuto, false},
	} {
		got, err := ParseCostMode(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("ParseCostMode(%q) err = %v", tc.in, err)
			continue
		}
		if tc.ok && got != tc.want {
			t.Errorf("ParseCostMode(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSessionDurationNeverNegative(t *testing.T) {
	s := SessionUsage{}
	s.StartTime = s.EndTime.Add(1) // degenerate ordering
	if d := s.Duration(); d != 0 {
		t.Errorf("Duration = %v, want 0", d)
	}
}
