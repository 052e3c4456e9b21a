// Package postgres provides PostgreSQL implementations of storage interfaces.
package postgres

import (
	"fmt"

	"github.com/skaldlabs/skald-sub002/internal/storage"
)

// Migrations returns the versioned PostgreSQL schema. Embedding columns are
// sized to dimension, which must match the configured embedding model.
func Migrations(dimension int) []storage.Migration {
	return []storage.Migration{
		{
			Version: 1,
			Name:    "memos",
			Up: `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memos (
    uuid UUID PRIMARY KEY,
    project_uuid UUID NOT NULL,
    organization_uuid UUID,
    title TEXT NOT NULL DEFAULT '',
    source TEXT,
    client_reference_id TEXT,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    type TEXT NOT NULL DEFAULT 'plaintext',
    file_key TEXT,
    file_name TEXT,

    -- Pipeline state. processing_lease identifies the run that owns the memo.
    processing_status TEXT NOT NULL DEFAULT 'received',
    processing_lease TEXT,
    processing_started_at TIMESTAMPTZ,
    processing_completed_at TIMESTAMPTZ,
    processing_error TEXT,

    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_memos_project ON memos(project_uuid);
CREATE INDEX IF NOT EXISTS idx_memos_status ON memos(processing_status);

CREATE TABLE IF NOT EXISTS memo_contents (
    memo_uuid UUID PRIMARY KEY REFERENCES memos(uuid) ON DELETE CASCADE,
    project_uuid UUID NOT NULL,
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
			Up: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS memo_chunks (
    uuid UUID PRIMARY KEY,
    memo_uuid UUID NOT NULL REFERENCES memos(uuid) ON DELETE CASCADE,
    project_uuid UUID NOT NULL,
    chunk_content TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    embedding vector(%[1]d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memo_chunks_memo ON memo_chunks(memo_uuid);
CREATE INDEX IF NOT EXISTS idx_memo_chunks_project ON memo_chunks(project_uuid);
CREATE INDEX IF NOT EXISTS idx_memo_chunks_embedding ON memo_chunks USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS memo_tags (
    uuid UUID PRIMARY KEY,
    memo_uuid UUID NOT NULL REFERENCES memos(uuid) ON DELETE CASCADE,
    project_uuid UUID NOT NULL,
    tag TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memo_tags_memo ON memo_tags(memo_uuid);
CREATE INDEX IF NOT EXISTS idx_memo_tags_tag ON memo_tags(project_uuid, tag);

CREATE TABLE IF NOT EXISTS memo_summaries (
    uuid UUID PRIMARY KEY,
    memo_uuid UUID NOT NULL UNIQUE REFERENCES memos(uuid) ON DELETE CASCADE,
    project_uuid UUID NOT NULL,
    summary TEXT NOT NULL,
    embedding vector(%[1]d) NOT NULL
);
`, dimension),
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
    organization_uuid UUID NOT NULL,
    period DATE NOT NULL,
    write_units BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (organization_uuid, period)
);
`,
			Down: `DROP TABLE IF EXISTS organization_usage;`,
		},
	}
}
