// Package source discovers and parses Claude Code JSONL usage logs.
package source

import (
	"io"
	"os"
)

// RawMessage is the nested message object of an assistant entry.
type RawMessage struct {
	ID    string    `json:"id"`
	Model string    `json:"model"`
	Usage *RawUsage `json:"usage"`
}

// RawUsage carries the token counters as they appear on the wire.
type RawUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// RawEntry is one JSONL line before validation. Both costUSD spellings
// occur in the wild; camelCase wins when both are present.
type RawEntry struct {
	Type              string      `json:"type"`
	Timestamp         string      `json:"timestamp"`
	SessionID         string      `json:"sessionId"`
	RequestID         string      `json:"requestId"`
	UUID              string      `json:"uuid"`
	Cwd               string      `json:"cwd"`
	CostUSD           *float64    `json:"costUSD"`
	CostUSDSnake      *float64    `json:"cost_usd"`
	IsAPIErrorMessage bool        `json:"isApiErrorMessage"`
	Message           *RawMessage `json:"message"`
}

// Source is one readable stream of JSONL usage lines. Name identifies the
// stream in diagnostics; InstanceID groups sources that belong to the
// same installation.
type Source struct {
	Name       string
	Path       string
	InstanceID string
	Open       func() (io.ReadCloser, error)
}

// FileSource wraps a file on disk.
func FileSource(path, instanceID string) Source {
	return Source{
		Name:       path,
		Path:       path,
		InstanceID: instanceID,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// ReaderSource wraps an in-memory reader, mainly for tests and stdin.
func ReaderSource(name string, r io.Reader) Source {
	return Source{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
	}
}
