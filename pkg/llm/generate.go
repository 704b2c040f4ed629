package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GenerateRequest describes one completion call. When System is set the
// chat endpoint carries it as a system-role message; otherwise the plain
// generate endpoint is used.
type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// approxCharsPerToken is the coarse estimate used when fitting prompts to
// the model's context window.
const approxCharsPerToken = 4

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatAPIRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatAPIResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

type generateAPIRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateAPIResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs one non-streaming completion and returns the model's text.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	system, prompt := c.fitToContext(req.System, req.Prompt)

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	if system != "" {
		return c.generateChat(ctx, system, prompt, options)
	}
	return c.generatePlain(ctx, prompt, options)
}

func (c *Client) generateChat(ctx context.Context, system, prompt string, options map[string]any) (string, error) {
	data, err := c.post(ctx, "/api/chat", chatAPIRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream:  false,
		Options: options,
	}, c.requestTimeout)
	if err != nil {
		return "", err
	}

	var resp chatAPIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedResponse)
	}
	return text, nil
}

func (c *Client) generatePlain(ctx context.Context, prompt string, options map[string]any) (string, error) {
	data, err := c.post(ctx, "/api/generate", generateAPIRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	}, c.requestTimeout)
	if err != nil {
		return "", err
	}

	var resp generateAPIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedResponse)
	}
	return text, nil
}

// fitToContext truncates the user prompt so the combined input leaves
// roughly a quarter of the context window for output. The system prompt is
// kept whole; the user prompt is cut at a word boundary when one is near.
func (c *Client) fitToContext(system, prompt string) (string, string) {
	window := c.contextWindow
	if window <= 0 {
		return system, prompt
	}
	budget := window * approxCharsPerToken * 3 / 4
	if len(system)+len(prompt) <= budget {
		return system, prompt
	}

	keep := budget - len(system)
	if keep <= 0 {
		// System prompt alone overflows the budget; pass it through and let
		// the backend truncate. This only happens with tiny context windows.
		return system, ""
	}
	c.logger.Debug("truncating prompt to fit context window",
		"prompt_chars", len(prompt), "kept_chars", keep)
	return system, cutAtWordBoundary(prompt, keep)
}

// cutAtWordBoundary shortens s to at most limit bytes, backing up to the
// last space unless that would discard more than half of the kept text.
func cutAtWordBoundary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \t\n")
}
