package types

// ChunkCandidate is a vector search hit. Distance is cosine distance, lower is closer.
type ChunkCandidate struct {
	ChunkUUID  string
	MemoUUID   string
	Content    string
	ChunkIndex int
	Distance   float64
}

// MemoProperties is the per-memo projection joined onto candidates.
type MemoProperties struct {
	Title   string
	Summary string
	Content string
}

// RetrievalResult is one ranked passage returned to search and chat callers.
type RetrievalResult struct {
	ChunkUUID      string  `json:"chunk_uuid"`
	MemoUUID       string  `json:"memo_uuid"`
	MemoTitle      string  `json:"memo_title"`
	MemoSummary    string  `json:"memo_summary"`
	ContentSnippet string  `json:"content_snippet"`
	ChunkContent   string  `json:"chunk_content"`
	Distance       float64 `json:"distance"`
}

// RerankResult is a relevance score for the document at Index of the input slice.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}
