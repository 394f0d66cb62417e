package sqlite

const schema = `
-- Change log: append-only audit trail of executed operations, one session
-- per run. State columns hold JSON-serialized property maps.
CREATE TABLE IF NOT EXISTS change_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    row_id TEXT NOT NULL,
    object_type TEXT NOT NULL,
    operation_type TEXT NOT NULL,
    success INTEGER NOT NULL,
    resource_id INTEGER,
    error_message TEXT,
    before_state TEXT,
    after_state TEXT
);

CREATE INDEX IF NOT EXISTS idx_change_log_session ON change_log(session_id);

-- Checkpoints: one row per completed batch plus terminal session markers.
CREATE TABLE IF NOT EXISTS checkpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    batch_id INTEGER NOT NULL,
    operation_index INTEGER NOT NULL DEFAULT 0,
    completed_operations INTEGER NOT NULL DEFAULT 0,
    total_operations INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'in_progress'
        CHECK(status IN ('in_progress', 'completed', 'failed')),
    input_hash TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id);
CREATE INDEX IF NOT EXISTS idx_checkpoints_timestamp ON checkpoints(timestamp);

-- Created resources: server ids assigned during a session, keyed by natural
-- key so deferred references still resolve after a resume.
CREATE TABLE IF NOT EXISTS created_resources (
    session_id TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    resource_key TEXT NOT NULL,
    bam_id INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (session_id, resource_type, resource_key)
);

CREATE INDEX IF NOT EXISTS idx_created_resources_session ON created_resources(session_id);
`
