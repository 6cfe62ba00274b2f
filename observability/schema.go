package observability

import "database/sql"

// Schema contains the complete DDL for the observability tables.
// Call Init(db) to apply it, or use this constant to embed in your own
// schema management.
const Schema = `
-- Upstream call log: one row per attempt against the Pixiv API,
-- labelled with the operation kind, the connection path used, and the
-- classified outcome ("ok", "auth", "path", "upstream", "fatal_auth").
CREATE TABLE IF NOT EXISTS op_calls (
    call_id     TEXT PRIMARY KEY DEFAULT ('call_' || hex(randomblob(16))),
    kind        TEXT NOT NULL,
    path        TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_op_calls_kind_time
    ON op_calls(kind, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_op_calls_time
    ON op_calls(created_at DESC);

-- Liveness: one row per beat, tagged with the process instance so restarts
-- are visible in the history.
CREATE TABLE IF NOT EXISTS worker_heartbeats (
    heartbeat_id TEXT PRIMARY KEY,
    worker_name  TEXT NOT NULL,
    instance_id  TEXT NOT NULL,
    hostname     TEXT NOT NULL,
    worker_pid   INTEGER NOT NULL,
    beat_at      INTEGER NOT NULL,
    goroutines   INTEGER NOT NULL,
    heap_mb      REAL NOT NULL,
    sys_mb       REAL NOT NULL,
    gc_count     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
    ON worker_heartbeats(worker_name, beat_at DESC);
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
