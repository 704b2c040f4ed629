// Package llm provides the Ollama-backed generation and embedding client
// used by the editorial and deduplication services.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/newsloom/newsloom/pkg/config"
)

// Client talks to one Ollama server over its HTTP API.
type Client struct {
	baseURL    string
	model      string
	embedModel string

	embeddingDim   int
	embedCharLimit int
	contextWindow  int
	maxRetries     int

	requestTimeout time.Duration
	embedTimeout   time.Duration
	healthTimeout  time.Duration

	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client from resolved configuration. Timeouts are
// applied per call through context deadlines, not on the shared transport.
func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		model:          cfg.Model,
		embedModel:     cfg.EmbedModel,
		embeddingDim:   cfg.EmbeddingDim,
		embedCharLimit: cfg.EmbedCharLimit,
		contextWindow:  cfg.ContextWindow,
		maxRetries:     cfg.MaxRetries,
		requestTimeout: cfg.RequestTimeout,
		embedTimeout:   cfg.EmbedTimeout,
		healthTimeout:  cfg.HealthTimeout,
		httpClient:     &http.Client{},
		logger:         slog.With("component", "llm"),
	}
}

// Model returns the generation model name recorded on processed items.
func (c *Client) Model() string { return c.model }

// Health probes the server's model listing endpoint with a short deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health probe returned %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

// retryBaseDelay is doubled on each retry: 1s, 2s, 4s. Tests shrink it.
var retryBaseDelay = time.Second

// post sends one JSON request with retries on 429 and 5xx. Other 4xx fail
// immediately. The returned body is fully read.
func (c *Client) post(ctx context.Context, path string, payload any, timeout time.Duration) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	attempts := c.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			c.logger.Warn("retrying llm request",
				"path", path, "attempt", attempt+1, "delay", delay.String())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, ctx.Err())
			}
		}

		data, retryable, err := c.postOnce(ctx, path, body, timeout)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) postOnce(ctx context.Context, path string, body []byte, timeout time.Duration) (data []byte, retryable bool, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: %s", ErrRateLimited, truncateForLog(data))
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, truncateForLog(data))
	default:
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrBackendRejected, resp.StatusCode, truncateForLog(data))
	}
}

func truncateForLog(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
