// Package docconv turns uploaded documents (PDF, DOCX, ...) into markdown
// through an external conversion service.
package docconv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skaldlabs/skald-sub002/internal/config"
)

// ErrConversionTimeout is returned when a conversion job does not finish
// within the polling budget.
var ErrConversionTimeout = errors.New("document conversion timed out")

// ErrConversionFailed is returned when the service reports a failed job.
var ErrConversionFailed = errors.New("document conversion failed")

// DocumentInput is one document to convert.
type DocumentInput struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Converter converts a document into markdown text.
type Converter interface {
	Convert(ctx context.Context, doc DocumentInput) (string, error)
}

// NewConverter builds the configured converter.
func NewConverter(cfg config.DocConvConfig, logger zerolog.Logger) (Converter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("docconv: url is required")
	}

	switch cfg.Provider {
	case "presigned":
		return NewPresignedConverter(PresignedConfig{
			URL:          cfg.URL,
			APIKey:       cfg.APIKey,
			PollInterval: cfg.PollInterval,
			MaxPolls:     cfg.MaxPolls,
			Timeout:      cfg.Timeout,
			Logger:       logger,
		}), nil
	case "sync", "":
		return NewSyncConverter(SyncConfig{
			URL:     cfg.URL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported docconv provider: %s", cfg.Provider)
	}
}

func defaultTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 120 * time.Second
	}
	return d
}
