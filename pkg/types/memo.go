package types

import "time"

// Memo is a unit of ingested knowledge-base content. Memos are created by the
// API layer; the ingestion pipeline only mutates the processing fields.
type Memo struct {
	UUID              string                 `json:"uuid"`
	ProjectUUID       string                 `json:"project_uuid"`
	OrganizationUUID  string                 `json:"organization_uuid"`
	Title             string                 `json:"title"`
	Source            string                 `json:"source,omitempty"`
	ClientReferenceID string                 `json:"client_reference_id,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Type              MemoType               `json:"type"`

	// FileKey locates the uploaded document in blob storage (document memos only)
	FileKey  string `json:"file_key,omitempty"`
	FileName string `json:"file_name,omitempty"`

	ProcessingStatus      ProcessingStatus `json:"processing_status"`
	ProcessingStartedAt   *time.Time       `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time       `json:"processing_completed_at,omitempty"`
	ProcessingError       string           `json:"processing_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoContent is the resolved plain/markdown text of a memo (1:1 with Memo).
type MemoContent struct {
	MemoUUID    string `json:"memo_uuid"`
	ProjectUUID string `json:"project_uuid"`
	Content     string `json:"content"`
}

// MemoChunk is one bounded-size fragment of a memo plus its embedding.
// Chunks are immutable: they are regenerated, never patched.
type MemoChunk struct {
	UUID        string    `json:"uuid"`
	MemoUUID    string    `json:"memo_uuid"`
	ProjectUUID string    `json:"project_uuid"`
	Content     string    `json:"chunk_content"`
	ChunkIndex  int       `json:"chunk_index"`
	Embedding   []float32 `json:"-"`
}

// MemoTag is a single extracted tag.
type MemoTag struct {
	UUID        string `json:"uuid"`
	MemoUUID    string `json:"memo_uuid"`
	ProjectUUID string `json:"project_uuid"`
	Tag         string `json:"tag"`
}

// MemoSummary is the generated summary of a memo's full text.
type MemoSummary struct {
	UUID        string    `json:"uuid"`
	MemoUUID    string    `json:"memo_uuid"`
	ProjectUUID string    `json:"project_uuid"`
	Summary     string    `json:"summary"`
	Embedding   []float32 `json:"-"`
}

// DerivedRows groups everything the pipeline regenerates for a memo. The rows
// are always replaced together.
type DerivedRows struct {
	Chunks  []MemoChunk
	Tags    []MemoTag
	Summary *MemoSummary
}

// QueueMessage is the JSON body carried by every queue transport.
type QueueMessage struct {
	MemoUUID string `json:"memo_uuid"`
}
