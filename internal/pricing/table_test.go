package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/ccmeter/internal/model"
)

func TestNormalize(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"claude-sonnet-4-5-20250929", "claude-sonnet-4-5"},
		{"anthropic/claude-opus-4-1", "claude-opus-4-1"},
		{"anthropic/claude-3-5-haiku-20241022", "claude-3-5-haiku"},
		{"claude-sonnet-4-5", "claude-sonnet-4-5"},
		{"  claude-3-opus ", "claude-3-opus"},
	} {
		assert.Equal(t, tc.want, Normalize(tc.in), "Normalize(%q)", tc.in)
	}
}

func TestTableLookup(t *testing.T) {
	table := Table{
		"claude-sonnet-4":   {InputCostPerToken: 1},
		"claude-sonnet-4-5": {InputCostPerToken: 2},
		"claude-opus-4-1":   {InputCostPerToken: 3},
	}

	t.Run("exact", func(t *testing.T) {
		p, ok := table.Lookup("claude-opus-4-1")
		require.True(t, ok)
		assert.Equal(t, 3.0, p.InputCostPerToken)
	})

	t.Run("case insensitive", func(t *testing.T) {
		p, ok := table.Lookup("Claude-Opus-4-1")
		require.True(t, ok)
		assert.Equal(t, 3.0, p.InputCostPerToken)
	})

	t.Run("longest prefix wins", func(t *testing.T) {
		p, ok := table.Lookup("claude-sonnet-4-5-20250929")
		require.True(t, ok)
		assert.Equal(t, 2.0, p.InputCostPerToken)
	})

	t.Run("shorter family still matches", func(t *testing.T) {
		p, ok := table.Lookup("claude-sonnet-4-20250514")
		require.True(t, ok)
		assert.Equal(t, 1.0, p.InputCostPerToken)
	})

	t.Run("provider prefix stripped", func(t *testing.T) {
		_, ok := table.Lookup("anthropic/claude-sonnet-4-5")
		assert.True(t, ok)
	})

	t.Run("unknown", func(t *testing.T) {
		_, ok := table.Lookup("gpt-4o")
		assert.False(t, ok)
	})
}

func TestTableMerge(t *testing.T) {
	base := Table{"a": {InputCostPerToken: 1}, "b": {InputCostPerToken: 2}}
	over := Table{"b": {InputCostPerToken: 9}, "c": {InputCostPerToken: 3}}

	merged := base.Merge(over)
	assert.Equal(t, 1.0, merged["a"].InputCostPerToken)
	assert.Equal(t, 9.0, merged["b"].InputCostPerToken)
	assert.Equal(t, 3.0, merged["c"].InputCostPerToken)
	assert.Equal(t, 2.0, base["b"].InputCostPerToken, "merge must not mutate the receiver")
}

func TestCostFor(t *testing.T) {
	p := ModelPricing{
		InputCostPerToken:         0.000015,
		OutputCostPerToken:        0.000075,
		CacheCreationCostPerToken: 0.0000188,
		CacheReadCostPerToken:     0.0000015,
	}
	tokens := model.TokenCounts{
		InputTokens:         1000,
		OutputTokens:        500,
		CacheCreationTokens: 100,
		CacheReadTokens:     50,
	}
	assert.InDelta(t, 0.054455, p.CostFor(tokens), 1e-9)
}
