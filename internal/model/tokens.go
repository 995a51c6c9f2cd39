// Package model defines the value types shared across the ingestion and
// aggregation pipeline.
package model

import (
	"errors"
	"math"
)

// ErrTokenOverflow is returned when adding token counts would exceed int64.
// Overflow indicates corrupted input and must abort the query rather than
// produce a silently wrong total.
var ErrTokenOverflow = errors.New("token count overflow")

// TokenCounts holds the four token counters reported per API call.
type TokenCounts struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
}

// Total returns the sum of all four counters.
func (t TokenCounts) Total() int64 {
	return t.InputTokens + t.OutputTokens + t.CacheCreationTokens + t.CacheReadTokens
}

// IsZero reports whether every counter is zero.
func (t TokenCounts) IsZero() bool {
	return t == TokenCounts{}
}

// Add returns the component-wise sum of t and other. Each counter is
// checked independently; on overflow the result is ErrTokenOverflow.
func (t TokenCounts) Add(other TokenCounts) (TokenCounts, error) {
	input, err := checkedAdd(t.InputTokens, other.InputTokens)
	if err != nil {
		return TokenCounts{}, err
	}
	output, err := checkedAdd(t.OutputTokens, other.OutputTokens)
	if err != nil {
		return TokenCounts{}, err
	}
	creation, err := checkedAdd(t.CacheCreationTokens, other.CacheCreationTokens)
	if err != nil {
		return TokenCounts{}, err
	}
	read, err := checkedAdd(t.CacheReadTokens, other.CacheReadTokens)
	if err != nil {
		return TokenCounts{}, err
	}
	return TokenCounts{
		InputTokens:         input,
		OutputTokens:        output,
		CacheCreationTokens: creation,
		CacheReadTokens:     read,
	}, nil
}

func checkedAdd(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrTokenOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrTokenOverflow
	}
	return a + b, nil
}
