package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// ParseStats accounts for every line of one stream. Lines is always
// Parsed + Skipped; deduplication happens downstream and is not a parse
// concern.
type ParseStats struct {
	Lines   int64
	Parsed  int64
	Skipped int64
}

// EmitFunc receives each validated entry in stream order.
type EmitFunc func(model.UsageEntry) error

// ParseReader scans one JSONL stream line by line. Malformed or
// non-usage lines are counted as skipped and logged; they never abort
// the stream. A read error on the underlying stream does.
func ParseReader(r io.Reader, name string, logger *zap.Logger, emit EmitFunc) (ParseStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var stats ParseStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	for scanner.Scan() {
		stats.Lines++
		line := scanner.Bytes()

		if len(bytes.TrimSpace(line)) == 0 {
			stats.Skipped++
			continue
		}

		var raw RawEntry
		if err := json.Unmarshal(line, &raw); err != nil {
			stats.Skipped++
			logger.Warn("malformed line",
				zap.String("file", name),
				zap.Int64("line", stats.Lines),
				zap.Error(err))
			continue
		}

		entry, ok := fromRaw(raw, name, stats.Lines)
		if !ok {
			stats.Skipped++
			continue
		}

		stats.Parsed++
		if err := emit(entry); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read %s: %w", name, err)
	}
	return stats, nil
}

// fromRaw validates a raw line into a usage entry. Returns false for
// lines that carry no billable usage: non-assistant types, API error
// records, synthetic models, entries missing a timestamp or usage
// block, and usage blocks with negative counters.
func fromRaw(raw RawEntry, file string, line int64) (model.UsageEntry, bool) {
	if raw.Type != "assistant" || raw.IsAPIErrorMessage {
		return model.UsageEntry{}, false
	}
	if raw.Message == nil || raw.Message.Usage == nil {
		return model.UsageEntry{}, false
	}
	modelName := raw.Message.Model
	if modelName == "" || modelName == "<synthetic>" {
		return model.UsageEntry{}, false
	}

	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			return model.UsageEntry{}, false
		}
	}
	ts = ts.UTC()

	u := raw.Message.Usage
	// Token counters are non-negative by definition; a negative value
	// means the line is corrupted.
	if u.InputTokens < 0 || u.OutputTokens < 0 ||
		u.CacheCreationInputTokens < 0 || u.CacheReadInputTokens < 0 {
		return model.UsageEntry{}, false
	}
	entry := model.UsageEntry{
		SessionID: raw.SessionID,
		Timestamp: ts,
		Model:     modelName,
		Tokens: model.TokenCounts{
			InputTokens:         u.InputTokens,
			OutputTokens:        u.OutputTokens,
			CacheCreationTokens: u.CacheCreationInputTokens,
			CacheReadTokens:     u.CacheReadInputTokens,
		},
		MessageID:  raw.Message.ID,
		RequestID:  raw.RequestID,
		SourceFile: file,
		SourceLine: int(line),
	}

	switch {
	case raw.CostUSD != nil:
		entry.CostUSD = raw.CostUSD
	case raw.CostUSDSnake != nil:
		entry.CostUSD = raw.CostUSDSnake
	}

	if raw.Cwd != "" {
		entry.Project = filepath.Base(raw.Cwd)
	}

	// Session ids are usually UUIDs; a non-UUID value is kept as-is since
	// older logs used free-form ids.
	if entry.SessionID == "" {
		if raw.UUID != "" {
			if _, err := uuid.Parse(raw.UUID); err == nil {
				entry.SessionID = raw.UUID
			}
		}
		if entry.SessionID == "" {
			entry.SessionID = fmt.Sprintf("generated-%d-%s", ts.Unix(), familyOf(modelName))
		}
	}

	return entry, true
}

func familyOf(name string) string {
	name = strings.ToLower(name)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
