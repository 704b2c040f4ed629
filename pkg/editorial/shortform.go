package editorial

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/newsloom/newsloom/pkg/llm"
)

const (
	minHashtags = 3
	maxHashtags = 5
)

// ShortForm is the size-bounded chat-channel rendering of a relevant item.
// Formatted carries lightweight markup; CharCount counts its runes.
type ShortForm struct {
	Title     string
	Body      string
	Hashtags  []string
	Formatted string
	CharCount int
}

// RenderShortForm asks the model for a compact channel post built from the
// verdict. Unlike Review this is strict: a response missing title, body, or
// enough hashtags fails the call and no record is created.
func (s *Service) RenderShortForm(ctx context.Context, v Verdict) (ShortForm, error) {
	out, err := s.gen.Generate(ctx, llm.GenerateRequest{
		System:      composeShortFormPrompt(s.cfg.ShortForm.Role, s.maxChars()),
		Prompt:      buildShortFormUserPrompt(v),
		Temperature: shortFormTemperature,
		MaxTokens:   shortFormMaxTokens,
	})
	if err != nil {
		return ShortForm{}, fmt.Errorf("editorial: short-form generate: %w", err)
	}

	fields, ok := decodeObject(out)
	if !ok {
		return ShortForm{}, fmt.Errorf("editorial: %w: short-form output not parseable: %s", llm.ErrMalformedResponse, snippet(out))
	}

	title, hasTitle := stringField(fields, "title")
	body, hasBody := stringField(fields, "body")
	tags := hashtagList(fields["hashtags"])

	switch {
	case !hasTitle:
		return ShortForm{}, fmt.Errorf("editorial: %w: short-form missing title", llm.ErrMalformedResponse)
	case !hasBody:
		return ShortForm{}, fmt.Errorf("editorial: %w: short-form missing body", llm.ErrMalformedResponse)
	case len(tags) < minHashtags:
		return ShortForm{}, fmt.Errorf("editorial: %w: short-form has %d hashtags, need at least %d", llm.ErrMalformedResponse, len(tags), minHashtags)
	}
	if len(tags) > maxHashtags {
		tags = tags[:maxHashtags]
	}

	body = fitBody(title, body, tags, s.maxChars())
	formatted := formatShortForm(title, body, tags)

	return ShortForm{
		Title:     title,
		Body:      body,
		Hashtags:  tags,
		Formatted: formatted,
		CharCount: utf8.RuneCountInString(formatted),
	}, nil
}

func (s *Service) maxChars() int {
	if s.cfg.ShortForm.MaxChars > 0 {
		return s.cfg.ShortForm.MaxChars
	}
	return 3500
}

func composeShortFormPrompt(role string, maxChars int) string {
	return fmt.Sprintf(`%s

OUTPUT FORMAT:
Strict JSON. No text before or after the JSON block.
{
  "title": "...",
  "body": "...",
  "hashtags": ["#tag1", "#tag2", "#tag3"]
}

RULES:
- 3 to 5 hashtags
- Body under %d characters
- Lightweight markup only (**bold**, *italic*, `+"`code`"+`)
- Only the JSON object in the response, nothing else`, strings.TrimSpace(role), maxChars)
}

func buildShortFormUserPrompt(v Verdict) string {
	var b strings.Builder
	b.WriteString("Render the following editorial piece as a channel post:\n\n<<<\nTitle: ")
	b.WriteString(v.Title)
	if v.Teaser != "" {
		b.WriteString("\n\nTeaser: ")
		b.WriteString(v.Teaser)
	}
	b.WriteString("\n\nBody:\n")
	body := v.RewrittenPost
	if runes := []rune(body); len(runes) > maxPromptChars {
		body = string(runes[:maxPromptChars]) + truncationMarker
	}
	b.WriteString(body)
	b.WriteString("\n>>>\n\nReturn ONLY the JSON object, no extra text.")
	return b.String()
}

// hashtagList normalizes the model's hashtag field: a JSON array or a single
// delimited string, each tag trimmed, prefixed with '#', de-duplicated.
func hashtagList(raw any) []string {
	var parts []string
	switch t := raw.(type) {
	case []any:
		for _, v := range t {
			parts = append(parts, fmt.Sprint(v))
		}
	case string:
		parts = strings.FieldsFunc(t, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n'
		})
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(parts))
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		tag := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "#"))
		if tag == "" || isPlaceholder(tag) {
			continue
		}
		tag = "#" + tag
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// formatShortForm assembles the final wire format: bold title, body, and one
// hashtag line.
func formatShortForm(title, body string, tags []string) string {
	return "**" + title + "**\n\n" + body + "\n\n" + strings.Join(tags, " ")
}

// fitBody trims the body at a word boundary so the formatted rendering stays
// within maxChars.
func fitBody(title, body string, tags []string, maxChars int) string {
	overhead := utf8.RuneCountInString(formatShortForm(title, "", tags))
	budget := maxChars - overhead
	runes := []rune(body)
	if len(runes) <= budget {
		return body
	}
	if budget <= 0 {
		return ""
	}
	cut := string(runes[:budget])
	if i := strings.LastIndexAny(cut, " \n\t"); i > budget/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
