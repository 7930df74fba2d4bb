package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates every table used by switchboard.
const Schema = `
-- Takeover backups. At most one live (restored = 0) row per app.
CREATE TABLE IF NOT EXISTS takeover_backups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    app TEXT NOT NULL,
    path TEXT NOT NULL,
    original BLOB,
    original_existed INTEGER NOT NULL,
    written BLOB NOT NULL,
    proxy_url TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    restored INTEGER NOT NULL DEFAULT 0,
    restored_at INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_takeover_live
    ON takeover_backups(app) WHERE restored = 0;

-- Request logs written by the usage logger.
CREATE TABLE IF NOT EXISTS request_logs (
    id TEXT PRIMARY KEY,
    request_id TEXT,
    timestamp INTEGER NOT NULL,
    app TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    model TEXT,
    method TEXT,
    path TEXT,
    status_code INTEGER NOT NULL,
    latency_ms INTEGER NOT NULL,
    success INTEGER NOT NULL,
    attempt INTEGER NOT NULL,
    streamed INTEGER NOT NULL DEFAULT 0,
    error_kind TEXT,
    input_tokens INTEGER,
    output_tokens INTEGER,
    cache_read_tokens INTEGER,
    cache_creation_tokens INTEGER
);

CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_request_logs_app_provider ON request_logs(app, provider_id);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion returns the newest applied schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`
