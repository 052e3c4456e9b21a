// Package types defines the core data structures for the Skald ingestion and
// retrieval core: memos and the rows derived from them, queue payloads, and
// the ephemeral records that flow through the retrieval graph.
package types

// ProcessingStatus represents where a memo is in the ingestion pipeline.
type ProcessingStatus string

// MemoType distinguishes memos created from plain text from uploaded documents.
type MemoType string

// Processing status constants
const (
	// StatusReceived indicates the memo was created and is waiting for the pipeline
	StatusReceived ProcessingStatus = "received"

	// StatusProcessing indicates a pipeline run currently owns the memo
	StatusProcessing ProcessingStatus = "processing"

	// StatusProcessed indicates chunks, tags and summary were generated
	StatusProcessed ProcessingStatus = "processed"

	// StatusError indicates the last pipeline run failed
	StatusError ProcessingStatus = "error"
)

// Memo type constants
const (
	MemoTypePlaintext MemoType = "plaintext"
	MemoTypeDocument  MemoType = "document"
)

// ValidProcessingStatuses contains all valid processing status values
var ValidProcessingStatuses = []ProcessingStatus{
	StatusReceived,
	StatusProcessing,
	StatusProcessed,
	StatusError,
}

// IsValidProcessingStatus checks if the given status is a known processing status.
func IsValidProcessingStatus(status ProcessingStatus) bool {
	for _, s := range ValidProcessingStatuses {
		if status == s {
			return true
		}
	}
	return false
}
