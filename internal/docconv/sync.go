package docconv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/skaldlabs/skald-sub002/internal/llm"
)

// SyncConfig configures the single-request conversion service.
type SyncConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// SyncConverter posts the document as multipart form data and receives the
// markdown in the response.
type SyncConverter struct {
	config         SyncConfig
	client         *http.Client
	circuitBreaker *llm.CircuitBreaker
}

var _ Converter = (*SyncConverter)(nil)

// NewSyncConverter creates a new converter.
func NewSyncConverter(cfg SyncConfig) *SyncConverter {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &SyncConverter{
		config:         cfg,
		client:         &http.Client{Timeout: defaultTimeout(cfg.Timeout)},
		circuitBreaker: llm.NewCircuitBreaker("docconv-sync"),
	}
}

// Convert implements Converter.
func (c *SyncConverter) Convert(ctx context.Context, doc DocumentInput) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.convert(ctx, doc)
	})
	if errors.Is(err, llm.ErrCircuitOpen) {
		return "", fmt.Errorf("docconv circuit breaker open: %w", err)
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *SyncConverter) convert(ctx context.Context, doc DocumentInput) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", doc.FileName)
	if err != nil {
		return "", fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return "", fmt.Errorf("failed to build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/v1/convert", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("conversion service returned status %d: %s", resp.StatusCode, string(b))
	}

	var out struct {
		Markdown string `json:"markdown"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Markdown, nil
}
