// Package sqlite provides an embedded SQLite implementation of the storage
// interfaces for local development and tests. Vector search is a brute-force
// cosine scan over the project's chunks.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/skaldlabs/skald-sub002/internal/storage"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*options)

type options struct {
	logger zerolog.Logger
}

// WithLogger sets the logger for WAL recovery and close diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewStore creates a new SQLite store with WAL self-healing and applies
// pending migrations. If the initial open fails due to stale WAL files (left
// behind by a crashed process), it verifies no other process holds them and
// retries once after removing the stale -shm/-wal files.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := openStore(dsn, o.logger)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(o.logger, dbPath)

	store, retryErr := openStore(dsn, o.logger)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	o.logger.Info().Str("path", dbPath).Msg("sqlite: recovered from stale WAL files")
	return store, nil
}

// openStore opens a SQLite database, configures WAL mode, and migrates the schema.
func openStore(dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and transactions across sessions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger, now: time.Now}

	mgr, err := s.Migrations()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := mgr.Up(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return s, nil
}

// Migrations returns a manager for this store's schema.
func (s *Store) Migrations() (*storage.MigrationManager, error) {
	return storage.NewMigrationManager(s.db, storage.DialectSQLite, Migrations())
}

// Session returns a session sharing the store's single connection.
func (s *Store) Session(ctx context.Context) (storage.Session, error) {
	return session{s}, nil
}

type session struct {
	*Store
}

func (session) Close() error { return nil }

// Close flushes the WAL into the main database file and releases resources.
// The TRUNCATE checkpoint removes the -shm and -wal files so that another
// process can open the database without encountering stale WAL state.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn().Err(err).Msg("sqlite: WAL checkpoint on close failed")
	}

	return s.db.Close()
}

func (s *Store) nowMillis() int64 {
	return s.now().UTC().UnixMilli()
}

// StartProcessing reads the memo's state and applies the transition table
// inside one transaction.
func (s *Store) StartProcessing(ctx context.Context, memoUUID string, staleAfter time.Duration) (storage.Lease, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Lease{}, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var startedAt sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT processing_status, processing_started_at FROM memos WHERE uuid = ?", memoUUID,
	).Scan(&status, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Lease{}, fmt.Errorf("%w: memo %s", storage.ErrNotFound, memoUUID)
	}
	if err != nil {
		return storage.Lease{}, fmt.Errorf("sqlite: failed to read memo status: %w", err)
	}

	now := s.nowMillis()
	current := types.ProcessingStatus(status)
	stale := current == types.StatusProcessing &&
		(!startedAt.Valid || now-startedAt.Int64 >= staleAfter.Milliseconds())
	if !types.IsValidStatusTransition(current, types.StatusProcessing, stale) {
		return storage.Lease{}, fmt.Errorf("%w: memo %s is %s, cannot move to %s",
			storage.ErrInvalidTransition, memoUUID, current, types.StatusProcessing)
	}

	token := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		UPDATE memos
		SET processing_status = 'processing', processing_lease = ?, processing_started_at = ?,
			processing_completed_at = NULL, processing_error = NULL, updated_at = ?
		WHERE uuid = ?
	`, token, now, now, memoUUID); err != nil {
		return storage.Lease{}, fmt.Errorf("sqlite: failed to start processing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.Lease{}, fmt.Errorf("sqlite: failed to commit: %w", err)
	}
	return storage.Lease{MemoUUID: memoUUID, Token: token}, nil
}

// CompleteProcessing marks the leased run processed.
func (s *Store) CompleteProcessing(ctx context.Context, lease storage.Lease) error {
	return s.finish(ctx, lease, types.StatusProcessed, sql.NullString{})
}

// FailProcessing marks the leased run failed.
func (s *Store) FailProcessing(ctx context.Context, lease storage.Lease, message string) error {
	return s.finish(ctx, lease, types.StatusError, sql.NullString{String: message, Valid: true})
}

func (s *Store) finish(ctx context.Context, lease storage.Lease, status types.ProcessingStatus, message sql.NullString) error {
	now := s.nowMillis()
	res, err := s.db.ExecContext(ctx, `
		UPDATE memos
		SET processing_status = ?, processing_lease = NULL, processing_completed_at = ?,
			processing_error = ?, updated_at = ?
		WHERE uuid = ? AND processing_status = 'processing' AND processing_lease = ?
	`, string(status), now, message, now, lease.MemoUUID, lease.Token)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set status %s: %w", status, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, "SELECT processing_status FROM memos WHERE uuid = ?", lease.MemoUUID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: memo %s", storage.ErrNotFound, lease.MemoUUID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to read memo status: %w", err)
	}
	return fmt.Errorf("%w: memo %s is %s under another lease", storage.ErrInvalidTransition, lease.MemoUUID, current)
}

// GetMemoWithContent loads the memo joined with its content row.
func (s *Store) GetMemoWithContent(ctx context.Context, memoUUID string) (*types.Memo, *types.MemoContent, error) {
	var (
		m                                             types.Memo
		orgUUID, source, clientRef, fileKey, fileName sql.NullString
		procError, content                            sql.NullString
		metadataJSON, memoType, status                string
		startedAt, completedAt                        sql.NullInt64
		createdAt, updatedAt                          int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT m.uuid, m.project_uuid, m.organization_uuid, m.title, m.source,
			m.client_reference_id, m.metadata, m.type, m.file_key, m.file_name,
			m.processing_status, m.processing_started_at, m.processing_completed_at,
			m.processing_error, m.created_at, m.updated_at, c.content
		FROM memos m
		LEFT JOIN memo_contents c ON c.memo_uuid = m.uuid
		WHERE m.uuid = ?
	`, memoUUID).Scan(
		&m.UUID, &m.ProjectUUID, &orgUUID, &m.Title, &source,
		&clientRef, &metadataJSON, &memoType, &fileKey, &fileName,
		&status, &startedAt, &completedAt,
		&procError, &createdAt, &updatedAt, &content,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: memo %s", storage.ErrNotFound, memoUUID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: failed to load memo: %w", err)
	}

	m.OrganizationUUID = orgUUID.String
	m.Source = source.String
	m.ClientReferenceID = clientRef.String
	m.FileKey = fileKey.String
	m.FileName = fileName.String
	m.ProcessingError = procError.String
	m.Type = types.MemoType(memoType)
	m.ProcessingStatus = types.ProcessingStatus(status)
	m.ProcessingStartedAt = millisPtr(startedAt)
	m.ProcessingCompletedAt = millisPtr(completedAt)
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if err := json.Unmarshal([]byte(metadataJSON), &m.Metadata); err != nil {
		return nil, nil, fmt.Errorf("sqlite: failed to decode memo metadata: %w", err)
	}

	if !content.Valid {
		return &m, nil, nil
	}
	return &m, &types.MemoContent{MemoUUID: m.UUID, ProjectUUID: m.ProjectUUID, Content: content.String}, nil
}

// SaveContent upserts the memo's content row.
func (s *Store) SaveContent(ctx context.Context, content *types.MemoContent) error {
	if content == nil || content.MemoUUID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memo_contents (memo_uuid, project_uuid, content) VALUES (?, ?, ?)
		ON CONFLICT (memo_uuid) DO UPDATE SET content = excluded.content
	`, content.MemoUUID, content.ProjectUUID, content.Content)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save content: %w", err)
	}
	return nil
}

// ReplaceDerived swaps the memo's chunks, tags and summary in one
// transaction after checking the lease. The single connection serialises
// concurrent replacements.
func (s *Store) ReplaceDerived(ctx context.Context, lease storage.Lease, rows types.DerivedRows) error {
	memoUUID := lease.MemoUUID
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var held int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM memos
		WHERE uuid = ? AND processing_status = 'processing' AND processing_lease = ?
	`, memoUUID, lease.Token).Scan(&held)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: memo %s processing lease is no longer current", storage.ErrInvalidTransition, memoUUID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to check processing lease: %w", err)
	}

	for _, table := range []string{"memo_chunks", "memo_tags", "memo_summaries"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE memo_uuid = ?", memoUUID); err != nil {
			return fmt.Errorf("sqlite: failed to clear %s: %w", table, err)
		}
	}

	for _, c := range rows.Chunks {
		if c.UUID == "" {
			c.UUID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memo_chunks (uuid, memo_uuid, project_uuid, chunk_content, chunk_index, embedding)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.UUID, memoUUID, c.ProjectUUID, c.Content, c.ChunkIndex, serializeEmbedding(c.Embedding)); err != nil {
			return fmt.Errorf("sqlite: failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	for _, t := range rows.Tags {
		if t.UUID == "" {
			t.UUID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memo_tags (uuid, memo_uuid, project_uuid, tag) VALUES (?, ?, ?, ?)
		`, t.UUID, memoUUID, t.ProjectUUID, t.Tag); err != nil {
			return fmt.Errorf("sqlite: failed to insert tag %q: %w", t.Tag, err)
		}
	}

	if sum := rows.Summary; sum != nil {
		if sum.UUID == "" {
			sum.UUID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memo_summaries (uuid, memo_uuid, project_uuid, summary, embedding) VALUES (?, ?, ?, ?, ?)
		`, sum.UUID, memoUUID, sum.ProjectUUID, sum.Summary, serializeEmbedding(sum.Embedding)); err != nil {
			return fmt.Errorf("sqlite: failed to insert summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit derived rows: %w", err)
	}
	return nil
}

// RecordWriteUnits adds units to the organization's current monthly period.
func (s *Store) RecordWriteUnits(ctx context.Context, organizationUUID string, units int) error {
	if organizationUUID == "" {
		return fmt.Errorf("%w: organization uuid is required", storage.ErrInvalidInput)
	}
	if units <= 0 {
		return fmt.Errorf("%w: write units must be positive, got %d", storage.ErrInvalidInput, units)
	}

	period := s.now().UTC().Format("2006-01")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organization_usage (organization_uuid, period, write_units) VALUES (?, ?, ?)
		ON CONFLICT (organization_uuid, period) DO UPDATE
		SET write_units = organization_usage.write_units + excluded.write_units
	`, organizationUUID, period, units)
	if err != nil {
		return fmt.Errorf("sqlite: failed to record write units: %w", err)
	}
	return nil
}

// WriteUnits returns the organization's write units for the current period.
func (s *Store) WriteUnits(ctx context.Context, organizationUUID string) (int, error) {
	var units int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(write_units), 0) FROM organization_usage WHERE organization_uuid = ? AND period = ?
	`, organizationUUID, s.now().UTC().Format("2006-01")).Scan(&units)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to read write units: %w", err)
	}
	return units, nil
}

// SearchChunks scans the project's chunks, scores them by cosine distance and
// evaluates filters in memory.
func (s *Store) SearchChunks(ctx context.Context, q storage.ChunkQuery) ([]types.ChunkCandidate, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.uuid, c.memo_uuid, c.chunk_content, c.chunk_index, c.embedding,
			m.title, m.source, m.client_reference_id, m.metadata
		FROM memo_chunks c
		JOIN memos m ON m.uuid = c.memo_uuid
		WHERE c.project_uuid = ?
	`, q.ProjectUUID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to search chunks: %w", err)
	}

	var hits []types.ChunkCandidate
	memos := make(map[string]*types.Memo)
	for rows.Next() {
		var (
			c                 types.ChunkCandidate
			blob              []byte
			title, metadata   string
			source, clientRef sql.NullString
		)
		if err := rows.Scan(&c.ChunkUUID, &c.MemoUUID, &c.Content, &c.ChunkIndex, &blob,
			&title, &source, &clientRef, &metadata); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: failed to scan chunk: %w", err)
		}

		vec, err := deserializeEmbedding(blob)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: chunk %s: %w", c.ChunkUUID, err)
		}
		c.Distance = cosineDistance(q.Embedding, vec)
		if c.Distance > q.MaxDistance {
			continue
		}

		if _, ok := memos[c.MemoUUID]; !ok && len(q.Filters) > 0 {
			m := &types.Memo{UUID: c.MemoUUID, Title: title, Source: source.String, ClientReferenceID: clientRef.String}
			if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite: failed to decode memo metadata: %w", err)
			}
			memos[c.MemoUUID] = m
		}
		hits = append(hits, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: failed to iterate chunks: %w", err)
	}
	rows.Close()

	if len(q.Filters) > 0 && len(hits) > 0 {
		tags, err := s.tagsFor(ctx, keys(memos))
		if err != nil {
			return nil, err
		}
		kept := hits[:0]
		for _, c := range hits {
			if matchesAll(q.Filters, memos[c.MemoUUID], tags[c.MemoUUID]) {
				kept = append(kept, c)
			}
		}
		hits = kept
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func matchesAll(filters []types.MemoFilter, memo *types.Memo, tags []string) bool {
	for _, f := range filters {
		if !f.Matches(memo, tags) {
			return false
		}
	}
	return true
}

func (s *Store) tagsFor(ctx context.Context, memoUUIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(memoUUIDs))
	if len(memoUUIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT memo_uuid, tag FROM memo_tags WHERE memo_uuid IN "+buildInClause(len(memoUUIDs)),
		toArgs(memoUUIDs)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memoUUID, tag string
		if err := rows.Scan(&memoUUID, &tag); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan tag: %w", err)
		}
		out[memoUUID] = append(out[memoUUID], tag)
	}
	return out, rows.Err()
}

// GetMemoProperties loads title, summary and content for many memos at once.
func (s *Store) GetMemoProperties(ctx context.Context, memoUUIDs []string) (map[string]types.MemoProperties, error) {
	props := make(map[string]types.MemoProperties, len(memoUUIDs))
	if len(memoUUIDs) == 0 {
		return props, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.uuid, m.title, COALESCE(s.summary, ''), COALESCE(c.content, '')
		FROM memos m
		LEFT JOIN memo_summaries s ON s.memo_uuid = m.uuid
		LEFT JOIN memo_contents c ON c.memo_uuid = m.uuid
		WHERE m.uuid IN `+buildInClause(len(memoUUIDs)), toArgs(memoUUIDs)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load memo properties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var p types.MemoProperties
		if err := rows.Scan(&id, &p.Title, &p.Summary, &p.Content); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memo properties: %w", err)
		}
		props[id] = p
	}
	return props, rows.Err()
}

// CreateMemo inserts a memo in the received state, with its content when
// content is non-empty.
func (s *Store) CreateMemo(ctx context.Context, memo *types.Memo, content string) error {
	if memo == nil {
		return storage.ErrInvalidInput
	}
	if memo.ProjectUUID == "" {
		return fmt.Errorf("%w: project uuid is required", storage.ErrInvalidInput)
	}
	if memo.UUID == "" {
		memo.UUID = uuid.NewString()
	}
	if memo.Type == "" {
		memo.Type = types.MemoTypePlaintext
	}
	memo.ProcessingStatus = types.StatusReceived

	metadata := memo.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode metadata: %w", err)
	}

	now := s.nowMillis()
	memo.CreatedAt = time.UnixMilli(now).UTC()
	memo.UpdatedAt = memo.CreatedAt

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memos (uuid, project_uuid, organization_uuid, title, source, client_reference_id,
			metadata, type, file_key, file_name, processing_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'received', ?, ?)
	`, memo.UUID, memo.ProjectUUID, nullableString(memo.OrganizationUUID), memo.Title,
		nullableString(memo.Source), nullableString(memo.ClientReferenceID), string(metadataJSON),
		string(memo.Type), nullableString(memo.FileKey), nullableString(memo.FileName), now, now); err != nil {
		return fmt.Errorf("sqlite: failed to insert memo: %w", err)
	}

	if content != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memo_contents (memo_uuid, project_uuid, content) VALUES (?, ?, ?)
		`, memo.UUID, memo.ProjectUUID, content); err != nil {
			return fmt.Errorf("sqlite: failed to insert content: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit memo: %w", err)
	}
	return nil
}

// ListStalled finds memos waiting in received or stuck in processing.
func (s *Store) ListStalled(ctx context.Context, receivedBefore, processingBefore time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid FROM memos
		WHERE (processing_status = 'received' AND created_at < ?)
		   OR (processing_status = 'processing' AND processing_started_at < ?)
		ORDER BY created_at ASC
		LIMIT ?
	`, receivedBefore.UnixMilli(), processingBefore.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list stalled memos: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memo uuid: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// buildInClause returns "(?, ?, ...)" with n placeholders.
func buildInClause(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func toArgs(ss []string) []interface{} {
	args := make([]interface{}, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func keys(m map[string]*types.Memo) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// nullableString converts a string to sql.NullString.
// An empty string is treated as NULL.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
