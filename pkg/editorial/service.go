// Package editorial runs raw items through the generation backend and turns
// the model's output into structured verdicts: a relevance decision, a
// rewritten piece, and an optional short-form rendering for a chat channel.
//
// The model output parser is deliberately tolerant. Every other boundary in
// the system is strict JSON, but LLM output drifts: fences, single quotes,
// stray prose, missing keys. The parse protocol in verdict.go absorbs all of
// that and always produces a usable verdict for a non-empty response.
package editorial

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/llm"
	"github.com/newsloom/newsloom/pkg/models"
)

const (
	reviewTemperature    = 0.7
	shortFormTemperature = 0.3
	reviewMaxTokens      = 2000
	shortFormMaxTokens   = 1200

	// maxPromptChars bounds the item content embedded in the user prompt.
	maxPromptChars   = 3000
	truncationMarker = "\n\n[content truncated]"

	// techArticleFloor is the minimum relevance for curated tech-publisher
	// items; the source policy is that they are always kept.
	techArticleFloor = 0.8
)

// Generator is the completion surface the service needs. *llm.Client
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
	Model() string
}

// Service reviews items and renders short-form posts. The system prompt is
// composed once from the editorial document at construction.
type Service struct {
	gen          Generator
	cfg          *config.EditorialConfig
	systemPrompt string
	logger       *slog.Logger
}

// New builds the editorial service from the loaded editorial document.
func New(gen Generator, cfg *config.EditorialConfig) *Service {
	return &Service{
		gen:          gen,
		cfg:          cfg,
		systemPrompt: composeSystemPrompt(cfg),
		logger:       slog.With("component", "editorial"),
	}
}

// SystemPrompt returns the composed system prompt.
func (s *Service) SystemPrompt() string { return s.systemPrompt }

// Review asks the model for an editorial verdict on the item. A transport
// or empty-response failure returns an error; anything the model actually
// said is parsed into a verdict, however malformed.
func (s *Service) Review(ctx context.Context, item models.RawItem) (Verdict, error) {
	start := time.Now()
	s.logger.Info("editorial review",
		"kind", item.SourceKind,
		"source_id", item.SourceID,
		"title", headline(item.Title),
		"content_chars", len(item.ContentText()))

	out, err := s.gen.Generate(ctx, llm.GenerateRequest{
		System:      s.systemPrompt,
		Prompt:      buildUserPrompt(item.Title, item.Body),
		Temperature: reviewTemperature,
		MaxTokens:   reviewMaxTokens,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("editorial: generate: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return Verdict{}, fmt.Errorf("editorial: %w: empty response", llm.ErrMalformedResponse)
	}

	v := s.parseVerdict(out, item)
	v.ModelName = s.gen.Model()
	v.ProcessingMS = int(time.Since(start).Milliseconds())

	s.logger.Info("editorial verdict",
		"kind", item.SourceKind,
		"source_id", item.SourceID,
		"is_news", v.IsNews,
		"relevance_score", v.RelevanceScore,
		"content_type", v.ContentType,
		"processing_ms", v.ProcessingMS)
	return v, nil
}

// composeSystemPrompt flattens the editorial document (role, objective,
// numbered pipeline) into one instruction block with the JSON output schema
// appended.
func composeSystemPrompt(cfg *config.EditorialConfig) string {
	var b strings.Builder
	b.WriteString(cfg.Role)
	b.WriteString("\n\nOBJECTIVE: ")
	b.WriteString(cfg.Objective)
	b.WriteString("\n\nINSTRUCTIONS:\n\n")
	for i, step := range cfg.Pipeline {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	b.WriteString(`
OUTPUT FORMAT:
Strict JSON. No text before or after the JSON block.

If RELEVANT:
{
  "is_news": true,
  "relevance_score": 0.0-1.0,
  "relevance_reason": "...",
  "original_summary": "...",
  "rewritten_post": "...",
  "title": "...",
  "teaser": "...",
  "image_prompt": "...",
  "content_type": "news|research|tutorial|humor|discussion|meme"
}

If NOT RELEVANT:
{
  "is_news": false,
  "relevance_score": 0.0-1.0,
  "relevance_reason": "..."
}

RULES:
- Facts above all
- Keep the text lively but never clickbait
- Always rewrite in your own words
- Only the JSON object in the response, nothing else`)
	return strings.TrimSpace(b.String())
}

// buildUserPrompt wraps the item content in literal delimiters so the model
// cannot confuse instructions with material.
func buildUserPrompt(title, body string) string {
	content := "Title: " + title
	if body != "" {
		content += "\n\nBody:\n" + body
	}
	if runes := []rune(content); len(runes) > maxPromptChars {
		content = string(runes[:maxPromptChars]) + truncationMarker
	}
	return "Review the following post:\n\n<<<\n" + content + "\n>>>\n\nReturn ONLY the JSON object, no extra text."
}

// headline shortens a title for log lines.
func headline(title string) string {
	runes := []rune(title)
	if len(runes) <= 60 {
		return title
	}
	return string(runes[:60]) + "..."
}
