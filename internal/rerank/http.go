package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/skaldlabs/skald-sub002/internal/llm"
)

// httpCaller posts JSON to a rerank endpoint behind a rate limiter and a
// circuit breaker.
type httpCaller struct {
	name           string
	url            string
	headers        map[string]string
	client         *http.Client
	limiter        *rate.Limiter
	circuitBreaker *llm.CircuitBreaker
}

func newHTTPCaller(name, url string, client *http.Client, requestsPerSecond float64) *httpCaller {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &httpCaller{
		name:           name,
		url:            url,
		headers:        map[string]string{},
		client:         client,
		limiter:        rate.NewLimiter(limit, max(1, int(requestsPerSecond))),
		circuitBreaker: llm.NewCircuitBreaker(name),
	}
}

func (c *httpCaller) post(ctx context.Context, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return nil, c.do(ctx, body, out)
	})
	if errors.Is(err, llm.ErrCircuitOpen) {
		return fmt.Errorf("%s circuit breaker open: %w", c.name, err)
	}
	return err
}

func (c *httpCaller) do(ctx context.Context, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", c.name, resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
