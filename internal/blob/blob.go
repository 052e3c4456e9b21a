// Package blob reads and writes uploaded documents by key.
package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/skaldlabs/skald-sub002/internal/config"
)

// ErrNotFound indicates no object exists under the key.
var ErrNotFound = errors.New("blob not found")

// Store is the document storage the pipeline reads memo files from.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// NewStore builds the configured blob store.
func NewStore(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	case "filesystem", "":
		return NewFilesystemStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unsupported blob provider: %s", cfg.Provider)
	}
}
