package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

type embedAPIRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedAPIResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding vector for text using the configured embed
// model. Input beyond the character budget is cut at a word boundary; the
// resulting vector dimension is validated against the configured size.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedCharLimit > 0 && len(text) > c.embedCharLimit {
		text = cutAtWordBoundary(text, c.embedCharLimit)
	}

	data, err := c.post(ctx, "/api/embeddings", embedAPIRequest{
		Model:  c.embedModel,
		Prompt: text,
	}, c.embedTimeout)
	if err != nil {
		return nil, err
	}

	var resp embedAPIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrMalformedResponse)
	}
	if c.embeddingDim > 0 && len(resp.Embedding) != c.embeddingDim {
		return nil, fmt.Errorf("%w: embedding has %d dimensions, expected %d",
			ErrMalformedResponse, len(resp.Embedding), c.embeddingDim)
	}

	vector := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}
