package docconv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skaldlabs/skald-sub002/internal/llm"
)

// PresignedConfig configures the upload-then-poll conversion service.
type PresignedConfig struct {
	URL          string
	APIKey       string
	PollInterval time.Duration // default: 2s
	MaxPolls     int           // default: 150
	Timeout      time.Duration // per HTTP request
	Logger       zerolog.Logger
}

// PresignedConverter requests an upload URL, PUTs the document to it, then
// polls the job until markdown is available.
type PresignedConverter struct {
	config         PresignedConfig
	client         *http.Client
	circuitBreaker *llm.CircuitBreaker
}

var _ Converter = (*PresignedConverter)(nil)

type uploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
	JobID     string `json:"job_id"`
}

type jobResponse struct {
	Status   string `json:"status"`
	Markdown string `json:"markdown"`
	Error    string `json:"error"`
}

// Job statuses reported by the service
const (
	jobCompleted = "completed"
	jobFailed    = "failed"
)

// NewPresignedConverter creates a new converter.
func NewPresignedConverter(cfg PresignedConfig) *PresignedConverter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 150
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &PresignedConverter{
		config:         cfg,
		client:         &http.Client{Timeout: defaultTimeout(cfg.Timeout)},
		circuitBreaker: llm.NewCircuitBreaker("docconv-presigned"),
	}
}

// Convert implements Converter.
func (c *PresignedConverter) Convert(ctx context.Context, doc DocumentInput) (string, error) {
	var upload uploadResponse
	if err := c.call(ctx, http.MethodPost, c.config.URL+"/v1/uploads", uploadRequest{
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
	}, &upload); err != nil {
		return "", fmt.Errorf("failed to request upload url: %w", err)
	}
	if upload.UploadURL == "" || upload.JobID == "" {
		return "", fmt.Errorf("conversion service returned an incomplete upload response")
	}

	if err := c.upload(ctx, upload.UploadURL, doc); err != nil {
		return "", err
	}

	logger := c.config.Logger.With().Str("job_id", upload.JobID).Str("file_name", doc.FileName).Logger()
	logger.Debug().Msg("document uploaded, polling conversion job")

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.config.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var job jobResponse
		if err := c.call(ctx, http.MethodGet, c.config.URL+"/v1/jobs/"+upload.JobID, nil, &job); err != nil {
			return "", fmt.Errorf("failed to poll conversion job: %w", err)
		}

		switch job.Status {
		case jobCompleted:
			logger.Debug().Int("attempt", attempt).Msg("document conversion completed")
			return job.Markdown, nil
		case jobFailed:
			return "", fmt.Errorf("%w: %s", ErrConversionFailed, job.Error)
		}
	}

	return "", fmt.Errorf("%w after %d polls (%s)", ErrConversionTimeout,
		c.config.MaxPolls, time.Duration(c.config.MaxPolls)*c.config.PollInterval)
}

func (c *PresignedConverter) upload(ctx context.Context, url string, doc DocumentInput) error {
	_, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(doc.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to create upload request: %w", err)
		}
		if doc.ContentType != "" {
			req.Header.Set("Content-Type", doc.ContentType)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to upload document: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode/100 != 2 {
			b, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("document upload returned status %d: %s", resp.StatusCode, string(b))
		}
		return nil, nil
	})
	return err
}

func (c *PresignedConverter) call(ctx context.Context, method, url string, body, out interface{}) error {
	_, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return nil, doJSON(ctx, c.client, method, url, c.config.APIKey, body, out)
	})
	if errors.Is(err, llm.ErrCircuitOpen) {
		return fmt.Errorf("docconv circuit breaker open: %w", err)
	}
	return err
}

func doJSON(ctx context.Context, client *http.Client, method, url, apiKey string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("conversion service returned status %d: %s", resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
