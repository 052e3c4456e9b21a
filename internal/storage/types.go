package storage

import (
	"errors"
	"fmt"
	"math"

	"github.com/skaldlabs/skald-sub002/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a processing status change that the
	// memo's current state does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Lease identifies one processing run of a memo. Completing or failing a run
// only succeeds while the lease token is still the memo's current one.
type Lease struct {
	MemoUUID string
	Token    string
}

// ChunkQuery parameterises a vector search over memo chunks.
type ChunkQuery struct {
	ProjectUUID string
	Embedding   []float32

	// Limit caps the number of candidates returned.
	Limit int

	// MaxDistance is the largest cosine distance accepted (1 - similarity threshold).
	MaxDistance float64

	Filters []types.MemoFilter
}

// Validate checks the query before it reaches a backend.
func (q ChunkQuery) Validate() error {
	if q.ProjectUUID == "" {
		return fmt.Errorf("%w: project uuid is required", ErrInvalidInput)
	}
	if len(q.Embedding) == 0 {
		return fmt.Errorf("%w: query embedding is required", ErrInvalidInput)
	}
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidInput, q.Limit)
	}
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

// WriteUnits converts a converted document's length into billable write units:
// one unit per started thousand characters, minimum one.
func WriteUnits(content string) int {
	units := int(math.Ceil(float64(len(content)) / 1000))
	if units < 1 {
		return 1
	}
	return units
}
