package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS file_tracker (
    file_path            TEXT PRIMARY KEY,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL,
    lines                INTEGER NOT NULL,
    skipped              INTEGER NOT NULL,
    parsed_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
    file_path            TEXT NOT NULL REFERENCES file_tracker(file_path) ON DELETE CASCADE,
    line                 INTEGER NOT NULL,
    session_id           TEXT NOT NULL,
    ts                   TEXT NOT NULL,
    model                TEXT NOT NULL,
    input_tokens         INTEGER NOT NULL,
    output_tokens        INTEGER NOT NULL,
    cache_creation       INTEGER NOT NULL,
    cache_read           INTEGER NOT NULL,
    cost_usd             REAL,
    message_id           TEXT,
    request_id           TEXT,
    project              TEXT,
    instance_id          TEXT,
    PRIMARY KEY (file_path, line)
);

CREATE INDEX IF NOT EXISTS idx_entries_ts ON entries(ts);
`
