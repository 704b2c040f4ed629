package llm

import (
	"context"
	"fmt"
	"strings"
)

// Summarize produces a compact summary of text, capped at roughly maxWords
// words. Low-ish temperature keeps the output factual.
func (c *Client) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	if maxWords <= 0 {
		maxWords = 100
	}
	prompt := fmt.Sprintf(
		"Summarize the following text in at most %d words. Reply with the summary only.\n\n%s",
		maxWords, text)
	return c.Generate(ctx, GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.3,
	})
}

// ExtractKeywords asks the model for up to max comma-separated keywords.
func (c *Client) ExtractKeywords(ctx context.Context, text string, max int) ([]string, error) {
	if max <= 0 {
		max = 5
	}
	prompt := fmt.Sprintf(
		"Extract up to %d keywords from the following text. Reply with a single comma-separated list and nothing else.\n\n%s",
		max, text)
	out, err := c.Generate(ctx, GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   100,
	})
	if err != nil {
		return nil, err
	}

	parts := strings.FieldsFunc(out, func(r rune) bool { return r == ',' || r == '\n' })
	keywords := make([]string, 0, max)
	for _, p := range parts {
		kw := strings.TrimSpace(strings.Trim(strings.TrimSpace(p), `"'`))
		kw = strings.TrimPrefix(kw, "- ")
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
		if len(keywords) == max {
			break
		}
	}
	return keywords, nil
}

// Sentiment classes for Classify.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Sentiment classifies text as positive, negative, or neutral. Anything the
// model says that is not one of those labels counts as neutral.
func (c *Client) Sentiment(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Classify the sentiment of the following text. Reply with exactly one word: positive, negative, or neutral.\n\n%s",
		text)
	out, err := c.Generate(ctx, GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		return "", err
	}

	label := strings.ToLower(strings.Trim(strings.TrimSpace(out), ".!\"'"))
	switch {
	case strings.Contains(label, SentimentPositive):
		return SentimentPositive, nil
	case strings.Contains(label, SentimentNegative):
		return SentimentNegative, nil
	default:
		return SentimentNeutral, nil
	}
}
