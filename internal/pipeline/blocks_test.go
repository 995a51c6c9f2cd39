package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/ccmeter/internal/model"
)

func buildBlocks(t *testing.T, cfg BlockConfig, entries ...model.UsageEntry) []model.SessionBlock {
	t.Helper()
	b := NewBlockBuilder()
	for _, e := range entries {
		require.NoError(t, b.Add(e, 1.0))
	}
	blocks, err := b.Finalize(cfg)
	require.NoError(t, err)
	return blocks
}

func TestBlocksHourAlignment(t *testing.T) {
	blocks := buildBlocks(t, BlockConfig{Now: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
		entryAt("2025-06-01T10:15:00Z", "s", "m", 100))

	require.Len(t, blocks, 1)
	blk := blocks[0]
	assert.Equal(t, "2025-06-01T10:00:00Z", blk.StartTime.Format(time.RFC3339))
	assert.Equal(t, "2025-06-01T15:00:00Z", blk.EndTime.Format(time.RFC3339))
	assert.False(t, blk.IsGap)
	assert.False(t, blk.IsActive)
	require.NotNil(t, blk.ActualStartTime)
	assert.Equal(t, "2025-06-01T10:15:00Z", blk.ActualStartTime.Format(time.RFC3339))
}

func TestBlocksGap(t *testing.T) {
	blocks := buildBlocks(t, BlockConfig{Now: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)},
		entryAt("2025-06-01T09:00:00Z", "s", "m", 100),
		entryAt("2025-06-01T20:30:00Z", "s", "m", 200))

	require.Len(t, blocks, 3)

	assert.Equal(t, "2025-06-01T09:00:00Z", blocks[0].StartTime.Format(time.RFC3339))
	assert.Equal(t, "2025-06-01T14:00:00Z", blocks[0].EndTime.Format(time.RFC3339))

	gap := blocks[1]
	assert.True(t, gap.IsGap)
	assert.Equal(t, "2025-06-01T14:00:00Z", gap.StartTime.Format(time.RFC3339))
	assert.Equal(t, "2025-06-01T20:00:00Z", gap.EndTime.Format(time.RFC3339))
	assert.Zero(t, gap.Entries)
	assert.Nil(t, gap.ActualStartTime)

	assert.Equal(t, "2025-06-01T20:00:00Z", blocks[2].StartTime.Format(time.RFC3339))
	assert.Equal(t, "2025-06-02T01:00:00Z", blocks[2].EndTime.Format(time.RFC3339))
}

func TestBlocksContiguousWindow(t *testing.T) {
	// 15:10 is past the 14:00 end but within one duration of it, so the
	// next window starts exactly at 14:00, no gap.
	blocks := buildBlocks(t, BlockConfig{Now: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
		entryAt("2025-06-01T09:00:00Z", "s", "m", 100),
		entryAt("2025-06-01T15:10:00Z", "s", "m", 200))

	require.Len(t, blocks, 2)
	assert.Equal(t, blocks[0].EndTime, blocks[1].StartTime)
	assert.False(t, blocks[1].IsGap)
	assert.Equal(t, "2025-06-01T14:00:00Z", blocks[1].StartTime.Format(time.RFC3339))
}

func TestBlocksContiguity(t *testing.T) {
	blocks := buildBlocks(t, BlockConfig{Now: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)},
		entryAt("2025-06-01T09:00:00Z", "a", "m", 1),
		entryAt("2025-06-01T16:00:00Z", "a", "m", 1),
		entryAt("2025-06-02T04:00:00Z", "b", "m", 1),
		entryAt("2025-06-02T05:00:00Z", "b", "m", 1))

	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, blocks[i-1].EndTime, blocks[i].StartTime,
			"block %d does not abut block %d", i, i-1)
	}
}

func TestBlocksActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	blocks := buildBlocks(t, BlockConfig{Now: now},
		entryAt("2025-06-01T10:15:00Z", "s", "m", 100))

	require.Len(t, blocks, 1)
	blk := blocks[0]
	assert.True(t, blk.IsActive)
	require.NotNil(t, blk.Remaining)
	assert.Equal(t, 3*time.Hour, blk.Remaining.TimeLeft)
}

func TestBlocksWarnings(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	t.Run("cost approaching", func(t *testing.T) {
		b := NewBlockBuilder()
		require.NoError(t, b.Add(entryAt("2025-06-01T10:00:00Z", "s", "m", 1), 8.5))
		blocks, err := b.Finalize(BlockConfig{Now: now, CostLimit: 10})
		require.NoError(t, err)
		assert.Equal(t, model.WarnApproaching, blocks[0].Warning)
	})

	t.Run("cost over", func(t *testing.T) {
		b := NewBlockBuilder()
		require.NoError(t, b.Add(entryAt("2025-06-01T10:00:00Z", "s", "m", 1), 12))
		blocks, err := b.Finalize(BlockConfig{Now: now, CostLimit: 10})
		require.NoError(t, err)
		assert.Equal(t, model.WarnOver, blocks[0].Warning)
	})

	t.Run("token level outranks cost level", func(t *testing.T) {
		b := NewBlockBuilder()
		require.NoError(t, b.Add(entryAt("2025-06-01T10:00:00Z", "s", "m", 1000), 1))
		blocks, err := b.Finalize(BlockConfig{Now: now, CostLimit: 100, TokenLimit: 900})
		require.NoError(t, err)
		assert.Equal(t, model.WarnOver, blocks[0].Warning)
	})

	t.Run("default cost limit is historical max", func(t *testing.T) {
		b := NewBlockBuilder()
		require.NoError(t, b.Add(entryAt("2025-06-01T01:00:00Z", "s", "m", 1), 10))
		require.NoError(t, b.Add(entryAt("2025-06-01T20:00:00Z", "s", "m", 1), 4))
		blocks, err := b.Finalize(BlockConfig{Now: now})
		require.NoError(t, err)
		require.Len(t, blocks, 3) // block, gap, block
		assert.Equal(t, model.WarnOver, blocks[0].Warning, "the max block sits at its own limit")
		assert.Equal(t, model.WarnNone, blocks[2].Warning)
	})
}

func TestBlocksSubHourDuration(t *testing.T) {
	// With a 15m duration the hour truncation of a later entry can land
	// before the current window's end; windows must still move forward.
	blocks := buildBlocks(t, BlockConfig{
		Duration: 15 * time.Minute,
		Now:      time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	},
		entryAt("2025-06-01T10:05:00Z", "s", "m", 1),
		entryAt("2025-06-01T10:35:00Z", "s", "m", 1))

	require.Len(t, blocks, 2)
	assert.Equal(t, "2025-06-01T10:00:00Z", blocks[0].StartTime.Format(time.RFC3339))
	assert.Equal(t, "2025-06-01T10:15:00Z", blocks[0].EndTime.Format(time.RFC3339))
	assert.Equal(t, "2025-06-01T10:30:00Z", blocks[1].StartTime.Format(time.RFC3339))
	assert.Equal(t, "2025-06-01T10:45:00Z", blocks[1].EndTime.Format(time.RFC3339))
	for i, blk := range blocks {
		assert.False(t, blk.IsGap)
		assert.True(t, blk.EndTime.After(blk.StartTime), "block %d runs backwards", i)
		if i > 0 {
			assert.False(t, blk.StartTime.Before(blocks[i-1].EndTime),
				"block %d overlaps block %d", i, i-1)
		}
	}
}

func TestBlocksOverflowAborts(t *testing.T) {
	b := NewBlockBuilder()
	require.NoError(t, b.Add(entryAt("2025-06-01T10:00:00Z", "s", "m", math.MaxInt64), 0))
	require.NoError(t, b.Add(entryAt("2025-06-01T10:30:00Z", "s", "m", 1), 0))
	_, err := b.Finalize(BlockConfig{Now: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)})
	assert.ErrorIs(t, err, model.ErrTokenOverflow)
}

func TestBlocksEmpty(t *testing.T) {
	b := NewBlockBuilder()
	blocks, err := b.Finalize(BlockConfig{})
	require.NoError(t, err)
	assert.Nil(t, blocks)
}

func TestBlocksSessionsAndModels(t *testing.T) {
	blocks := buildBlocks(t, BlockConfig{Now: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
		entryAt("2025-06-01T10:00:00Z", "sess-b", "claude-sonnet-4-5", 1),
		entryAt("2025-06-01T10:30:00Z", "sess-a", "claude-opus-4-1", 1),
		entryAt("2025-06-01T11:00:00Z", "sess-a", "claude-sonnet-4-5", 1))

	require.Len(t, blocks, 1)
	assert.Equal(t, []string{"sess-a", "sess-b"}, blocks[0].SessionIDs)
	assert.Equal(t, []string{"claude-opus-4-1", "claude-sonnet-4-5"}, blocks[0].ModelsUsed)
	assert.Equal(t, 3, blocks[0].Entries)
}
