package sqlite

import "github.com/skaldlabs/skald-sub002/internal/storage"

// Migrations returns the versioned SQLite schema. Timestamps are stored as
// unix milliseconds and embeddings as little-endian float32 blobs.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version: 1,
			Name:    "memos",
			Up: `
CREATE TABLE IF NOT EXISTS memos (
    uuid TEXT PRIMARY KEY,
    project_uuid TEXT NOT NULL,
    organization_uuid TEXT,
    title TEXT NOT NULL DEFAULT '',
    source TEXT,
    client_reference_id TEXT,
    metadata TEXT NOT NULL DEFAULT '{}',
    type TEXT NOT NULL DEFAULT 'plaintext',
    file_key TEXT,
    file_name TEXT,
    processing_status TEXT NOT NULL DEFAULT 'received',
    processing_lease TEXT,
    processing_started_at INTEGER,
    processing_completed_at INTEGER,
    processing_error TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memos_project ON memos(project_uuid);
CREATE INDEX IF NOT EXISTS idx_memos_status ON memos(processing_status);

CREATE TABLE IF NOT EXISTS memo_contents (
    memo_uuid TEXT PRIMARY KEY REFERENCES memos(uuid) ON DELETE CASCADE,
    project_uuid TEXT NOT NULL,
    content TEXT NOT NULL
);
`,
			Down: `
DROP TABLE IF EXISTS memo_contents;
DROP TABLE IF EXISTS memos;
`,
		},
		{
			Version: 2,
			Name:    "derived_rows",
			Up: `
CREATE TABLE IF NOT EXISTS memo_chunks (
    uuid TEXT PRIMARY KEY,
    memo_uuid TEXT NOT NULL REFERENCES memos(uuid) ON DELETE CASCADE,
    project_uuid TEXT NOT NULL,
    chunk_content TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    embedding BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memo_chunks_memo ON memo_chunks(memo_uuid);
CREATE INDEX IF NOT EXISTS idx_memo_chunks_project ON memo_chunks(project_uuid);

CREATE TABLE IF NOT EXISTS memo_tags (
    uuid TEXT PRIMARY KEY,
    memo_uuid TEXT NOT NULL REFERENCES memos(uuid) ON DELETE CASCADE,
    project_uuid TEXT NOT NULL,
    tag TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memo_tags_memo ON memo_tags(memo_uuid);

CREATE TABLE IF NOT EXISTS memo_summaries (
    uuid TEXT PRIMARY KEY,
    memo_uuid TEXT NOT NULL UNIQUE REFERENCES memos(uuid) ON DELETE CASCADE,
    project_uuid TEXT NOT NULL,
    summary TEXT NOT NULL,
    embedding BLOB NOT NULL
);
`,
			Down: `
DROP TABLE IF EXISTS memo_summaries;
DROP TABLE IF EXISTS memo_tags;
DROP TABLE IF EXISTS memo_chunks;
`,
		},
		{
			Version: 3,
			Name:    "organization_usage",
			Up: `
CREATE TABLE IF NOT EXISTS organization_usage (
    organization_uuid TEXT NOT NULL,
    period TEXT NOT NULL,
    write_units INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (organization_uuid, period)
);
`,
			Down: `DROP TABLE IF EXISTS organization_usage;`,
		},
	}
}
