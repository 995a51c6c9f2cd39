// Package store provides a SQLite-backed cache of parsed usage entries,
// keyed by file identity so unchanged files skip re-parsing.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/theirongolddev/ccmeter/internal/model"
)

// Cache is the on-disk parse cache.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// FileInfo identifies one parsed file version and its line accounting.
type FileInfo struct {
	MtimeNs   int64
	SizeBytes int64
	Lines     int64
	Skipped   int64
}

// TrackedFiles returns file_path -> FileInfo for every cached file.
func (c *Cache) TrackedFiles() (map[string]FileInfo, error) {
	rows, err := c.db.Query("SELECT file_path, mtime_ns, size_bytes, lines, skipped FROM file_tracker")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]FileInfo)
	for rows.Next() {
		var path string
		var fi FileInfo
		if err := rows.Scan(&path, &fi.MtimeNs, &fi.SizeBytes, &fi.Lines, &fi.Skipped); err != nil {
			return nil, err
		}
		result[path] = fi
	}
	return result, rows.Err()
}

// ReplaceFile atomically replaces a file's cached entries and tracking
// row with a freshly parsed version.
func (c *Cache) ReplaceFile(path string, fi FileInfo, entries []model.UsageEntry) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM entries WHERE file_path = ?", path); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.Exec(`INSERT OR REPLACE INTO file_tracker
		(file_path, mtime_ns, size_bytes, lines, skipped, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		path, fi.MtimeNs, fi.SizeBytes, fi.Lines, fi.Skipped, now)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO entries
		(file_path, line, session_id, ts, model,
		 input_tokens, output_tokens, cache_creation, cache_read,
		 cost_usd, message_id, request_id, project, instance_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		var cost sql.NullFloat64
		if e.CostUSD != nil {
			cost = sql.NullFloat64{Float64: *e.CostUSD, Valid: true}
		}
		_, err := stmt.Exec(
			path, e.SourceLine, e.SessionID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Model,
			e.Tokens.InputTokens, e.Tokens.OutputTokens, e.Tokens.CacheCreationTokens, e.Tokens.CacheReadTokens,
			cost, e.MessageID, e.RequestID, e.Project, e.InstanceID,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadFileEntries replays a file's cached entries in line order.
func (c *Cache) LoadFileEntries(path string) ([]model.UsageEntry, error) {
	rows, err := c.db.Query(`SELECT
		line, session_id, ts, model,
		input_tokens, output_tokens, cache_creation, cache_read,
		cost_usd, message_id, request_id, project, instance_id
		FROM entries WHERE file_path = ? ORDER BY line`, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []model.UsageEntry
	for rows.Next() {
		var e model.UsageEntry
		var ts string
		var cost sql.NullFloat64
		var msgID, reqID, project, instance sql.NullString

		err := rows.Scan(
			&e.SourceLine, &e.SessionID, &ts, &e.Model,
			&e.Tokens.InputTokens, &e.Tokens.OutputTokens, &e.Tokens.CacheCreationTokens, &e.Tokens.CacheReadTokens,
			&cost, &msgID, &reqID, &project, &instance,
		)
		if err != nil {
			return nil, err
		}

		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("corrupt cached timestamp %q: %w", ts, err)
		}
		if cost.Valid {
			v := cost.Float64
			e.CostUSD = &v
		}
		e.MessageID = msgID.String
		e.RequestID = reqID.String
		e.Project = project.String
		e.InstanceID = instance.String
		e.SourceFile = path

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteFile drops a file and its entries from the cache.
func (c *Cache) DeleteFile(path string) error {
	_, err := c.db.Exec("DELETE FROM file_tracker WHERE file_path = ?", path)
	return err
}

// EntryCount returns the number of cached entries across all files.
func (c *Cache) EntryCount() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count)
	return count, err
}
