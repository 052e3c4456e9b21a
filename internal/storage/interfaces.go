// Package storage provides composable storage interfaces for the Skald
// ingestion and retrieval core.
package storage

import (
	"context"
	"time"

	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// MemoStore covers the memo lifecycle operations the ingestion pipeline
// performs. Memos themselves are created upstream; the pipeline only moves
// them through the processing states and replaces their derived rows.
type MemoStore interface {
	// StartProcessing moves a memo into the processing state and returns the
	// lease that owns the run. A memo already processing under a lease younger
	// than staleAfter is rejected with ErrInvalidTransition.
	// Returns ErrNotFound if the memo does not exist.
	StartProcessing(ctx context.Context, memoUUID string, staleAfter time.Duration) (Lease, error)

	// CompleteProcessing marks the leased run as processed and clears any
	// previous error. Returns ErrInvalidTransition if the lease was lost.
	CompleteProcessing(ctx context.Context, lease Lease) error

	// FailProcessing marks the leased run as failed with the given message.
	FailProcessing(ctx context.Context, lease Lease, message string) error

	// GetMemoWithContent loads a memo and its content in a single query.
	// content is nil when no content row exists yet.
	GetMemoWithContent(ctx context.Context, memoUUID string) (*types.Memo, *types.MemoContent, error)

	// SaveContent inserts or replaces the memo's content row.
	SaveContent(ctx context.Context, content *types.MemoContent) error

	// ReplaceDerived deletes the memo's chunks, tags and summary and inserts
	// the new rows atomically, serialised per memo. Returns
	// ErrInvalidTransition and writes nothing if lease is no longer the
	// memo's current processing run.
	ReplaceDerived(ctx context.Context, lease Lease, rows types.DerivedRows) error
}

// UsageRecorder maintains the per-organization usage ledger.
type UsageRecorder interface {
	// RecordWriteUnits adds units to the organization's current billing period.
	RecordWriteUnits(ctx context.Context, organizationUUID string, units int) error
}

// ChunkSearcher provides the queries the retrieval graph runs.
type ChunkSearcher interface {
	// SearchChunks returns chunks of the project ordered by ascending cosine
	// distance, restricted to distance <= MaxDistance and the given filters.
	SearchChunks(ctx context.Context, q ChunkQuery) ([]types.ChunkCandidate, error)

	// GetMemoProperties bulk-loads title, summary and content for the given
	// memos. Memos without a row are absent from the map.
	GetMemoProperties(ctx context.Context, memoUUIDs []string) (map[string]types.MemoProperties, error)
}

// MemoWriter creates memos. The pipeline never calls it; it backs the
// enqueue command and tests.
type MemoWriter interface {
	CreateMemo(ctx context.Context, memo *types.Memo, content string) error
}

// RecoveryLister finds memos the pipeline never finished.
type RecoveryLister interface {
	// ListStalled returns memos still received and created before
	// receivedBefore, plus memos processing since before processingBefore.
	ListStalled(ctx context.Context, receivedBefore, processingBefore time.Time, limit int) ([]string, error)
}

// Session is a forked unit of work bound to one queue message.
type Session interface {
	MemoStore
	UsageRecorder
	Close() error
}

// SessionFactory opens isolated sessions for concurrent message processing.
type SessionFactory interface {
	Session(ctx context.Context) (Session, error)
}

// Store is the full backend implemented by the postgres and sqlite packages.
type Store interface {
	MemoStore
	UsageRecorder
	ChunkSearcher
	MemoWriter
	RecoveryLister
	SessionFactory
	Close() error
}
