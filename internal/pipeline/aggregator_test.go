package pipeline

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/ccmeter/internal/model"
)

func entryAt(ts string, sessionID, modelName string, input int64) model.UsageEntry {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return model.UsageEntry{
		SessionID: sessionID,
		Timestamp: parsed.UTC(),
		Model:     modelName,
		Tokens:    model.TokenCounts{InputTokens: input},
	}
}

func TestDailyBuilderTimezoneBuckets(t *testing.T) {
	// UTC-5: 02:00Z lands on the previous local day, 23:00Z on the same.
	loc := time.FixedZone("UTC-5", -5*3600)
	b := NewDailyBuilder(loc, false)

	require.NoError(t, b.Add(entryAt("2025-06-01T02:00:00Z", "s", "claude-sonnet-4-5", 100), 1.0))
	require.NoError(t, b.Add(entryAt("2025-06-01T23:00:00Z", "s", "claude-sonnet-4-5", 200), 2.0))

	daily := b.Finalize()
	require.Len(t, daily, 2)
	assert.Equal(t, "2025-05-31", daily[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2025-06-01", daily[1].Date.Format("2006-01-02"))
	assert.Equal(t, int64(100), daily[0].Tokens.InputTokens)
	assert.Equal(t, int64(200), daily[1].Tokens.InputTokens)
	assert.Equal(t, 1.0, daily[0].TotalCost)
}

func TestDailyBuilderSameLocalDay(t *testing.T) {
	// 10:00Z and 01:00Z the next UTC day are the same date in UTC-5.
	loc := time.FixedZone("UTC-5", -5*3600)
	b := NewDailyBuilder(loc, false)

	require.NoError(t, b.Add(entryAt("2024-01-15T10:00:00Z", "s", "m", 1), 0))
	require.NoError(t, b.Add(entryAt("2024-01-16T01:00:00Z", "s", "m", 1), 0))

	daily := b.Finalize()
	require.Len(t, daily, 1)
	assert.Equal(t, "2024-01-15", daily[0].Date.Format("2006-01-02"))
	assert.Equal(t, 2, daily[0].Entries)
}

func TestDailyBuilderOrderIndependent(t *testing.T) {
	entries := []model.UsageEntry{
		entryAt("2025-06-01T08:00:00Z", "a", "claude-sonnet-4-5", 10),
		entryAt("2025-06-01T12:00:00Z", "b", "claude-opus-4-1", 20),
		entryAt("2025-06-02T09:00:00Z", "a", "claude-sonnet-4-5", 30),
		entryAt("2025-06-03T01:00:00Z", "c", "claude-3-5-haiku", 40),
	}

	fold := func(order []int) []model.DailyUsage {
		b := NewDailyBuilder(time.UTC, false)
		for _, i := range order {
			require.NoError(t, b.Add(entries[i], float64(i)))
		}
		return b.Finalize()
	}

	want := fold([]int{0, 1, 2, 3})
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 5; trial++ {
		order := rng.Perm(len(entries))
		assert.Equal(t, want, fold(order), "order %v", order)
	}
}

func TestDailyBuilderInstanceBreakdownSumsToDaily(t *testing.T) {
	b := NewDailyBuilder(time.UTC, true)
	for i, instance := range []string{"host-a", "host-b", "host-a"} {
		e := entryAt("2025-06-01T10:00:00Z", "s", "claude-sonnet-4-5", int64(100*(i+1)))
		e.InstanceID = instance
		require.NoError(t, b.Add(e, 1.0))
	}

	daily := b.Finalize()
	require.Len(t, daily, 1)
	instances := b.FinalizeInstances()
	require.Len(t, instances, 2)

	var tokens int64
	var cost float64
	for _, inst := range instances {
		tokens += inst.Tokens.InputTokens
		cost += inst.TotalCost
	}
	assert.Equal(t, daily[0].Tokens.InputTokens, tokens)
	assert.Equal(t, daily[0].TotalCost, cost)
	assert.Equal(t, "host-a", instances[0].InstanceID)
}

func TestDailyBuilderOverflowAborts(t *testing.T) {
	b := NewDailyBuilder(time.UTC, false)
	require.NoError(t, b.Add(entryAt("2025-06-01T10:00:00Z", "s", "m", math.MaxInt64), 0))
	err := b.Add(entryAt("2025-06-01T11:00:00Z", "s", "m", 1), 0)
	assert.ErrorIs(t, err, model.ErrTokenOverflow)
}

func TestSessionBuilder(t *testing.T) {
	b := NewSessionBuilder()
	require.NoError(t, b.Add(entryAt("2025-06-01T12:00:00Z", "sess-1", "claude-sonnet-4-5", 10), 0.5))
	require.NoError(t, b.Add(entryAt("2025-06-01T10:00:00Z", "sess-1", "claude-opus-4-1", 20), 1.5))
	require.NoError(t, b.Add(entryAt("2025-06-01T11:00:00Z", "sess-2", "claude-sonnet-4-5", 30), 0.1))

	sessions := b.Finalize()
	require.Len(t, sessions, 2)

	s1 := sessions[0]
	assert.Equal(t, "sess-1", s1.SessionID)
	assert.Equal(t, "2025-06-01T10:00:00Z", s1.StartTime.Format(time.RFC3339))
	assert.Equal(t, "2025-06-01T12:00:00Z", s1.EndTime.Format(time.RFC3339))
	assert.Equal(t, 2*time.Hour, s1.Duration())
	assert.Equal(t, []string{"claude-opus-4-1", "claude-sonnet-4-5"}, s1.ModelsUsed)
	assert.InDelta(t, 2.0, s1.TotalCost, 1e-9)

	assert.Equal(t, "sess-2", sessions[1].SessionID)
}

func TestMonthlyFromDaily(t *testing.T) {
	b := NewDailyBuilder(time.UTC, false)
	require.NoError(t, b.Add(entryAt("2025-05-30T10:00:00Z", "s", "m", 100), 1.0))
	require.NoError(t, b.Add(entryAt("2025-06-01T10:00:00Z", "s", "m", 200), 2.0))
	require.NoError(t, b.Add(entryAt("2025-06-15T10:00:00Z", "s", "m", 300), 3.0))

	daily := b.Finalize()
	monthly, err := MonthlyFromDaily(daily)
	require.NoError(t, err)
	require.Len(t, monthly, 2)

	assert.Equal(t, "2025-05", monthly[0].Month)
	assert.Equal(t, "2025-06", monthly[1].Month)
	assert.Equal(t, 2, monthly[1].ActiveDays)

	// The monthly totals are exactly the sum of their dailies.
	var tokens int64
	var cost float64
	for _, d := range daily {
		tokens += d.Tokens.InputTokens
		cost += d.TotalCost
	}
	var mTokens int64
	var mCost float64
	for _, m := range monthly {
		mTokens += m.Tokens.InputTokens
		mCost += m.TotalCost
	}
	assert.Equal(t, tokens, mTokens)
	assert.Equal(t, cost, mCost)
}
