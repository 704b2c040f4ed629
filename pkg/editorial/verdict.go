package editorial

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/newsloom/newsloom/pkg/models"
)

// Verdict is the parsed editorial decision for one item. When IsNews is
// false only the relevance fields are meaningful.
type Verdict struct {
	IsNews          bool
	RelevanceScore  float64
	RelevanceReason string
	OriginalSummary string
	RewrittenPost   string
	Title           string
	Teaser          string
	ImagePrompt     string
	ContentType     models.ContentType
	ModelName       string
	ProcessingMS    int
}

// parseVerdict is total over non-empty model output: fences and surrounding
// prose are stripped, near-JSON is repaired once, missing required keys are
// synthesized, and output that defies all of that becomes an irrelevant
// verdict instead of an error.
func (s *Service) parseVerdict(raw string, item models.RawItem) Verdict {
	fields, ok := decodeObject(raw)
	if !ok {
		s.logger.Warn("unparseable editorial output",
			"source_id", item.SourceID, "snippet", snippet(raw))
		v := Verdict{
			IsNews:          false,
			RelevanceScore:  0.3,
			RelevanceReason: "editorial output was not valid JSON: " + snippet(raw),
		}
		s.applySourcePolicy(&v, item)
		if v.IsNews {
			s.fillEditorialFields(&v, nil, item)
		}
		return v
	}

	var v Verdict
	isNews, hasNews := boolField(fields, "is_news")
	score, hasScore := floatField(fields, "relevance_score")
	if hasScore {
		score = clamp01(score)
	}
	reason, hasReason := stringField(fields, "relevance_reason")

	// Synthesize missing required keys from whichever of the pair arrived.
	switch {
	case !hasNews && hasScore:
		isNews = score > 0.6
	case hasNews && !hasScore:
		if isNews {
			score = 0.7
		} else {
			score = 0.3
		}
	case !hasNews && !hasScore:
		isNews = false
		score = 0.3
	}
	if !hasReason {
		reason = s.cfg.Defaults.RelevanceReason
	}

	v.IsNews = isNews
	v.RelevanceScore = score
	v.RelevanceReason = reason
	v.OriginalSummary, _ = stringField(fields, "original_summary")

	s.applySourcePolicy(&v, item)

	if v.IsNews {
		s.fillEditorialFields(&v, fields, item)
	}
	return v
}

// fillEditorialFields completes a relevant verdict: missing fields fall back
// to the item's own text first, then the domain defaults. fields may be nil.
func (s *Service) fillEditorialFields(v *Verdict, fields map[string]any, item models.RawItem) {
	if v.Title, _ = stringField(fields, "title"); v.Title == "" {
		if v.Title = strings.TrimSpace(item.Title); v.Title == "" {
			v.Title = s.cfg.Defaults.Title
		}
	}
	if v.RewrittenPost, _ = stringField(fields, "rewritten_post"); v.RewrittenPost == "" {
		if v.RewrittenPost = strings.TrimSpace(item.Body); v.RewrittenPost == "" {
			v.RewrittenPost = strings.TrimSpace(item.Title)
		}
	}
	if v.Teaser, _ = stringField(fields, "teaser"); v.Teaser == "" {
		v.Teaser = s.cfg.Defaults.Teaser
	}
	if v.ImagePrompt, _ = stringField(fields, "image_prompt"); v.ImagePrompt == "" {
		v.ImagePrompt = s.cfg.Defaults.ImagePrompt
	}
	label, _ := stringField(fields, "content_type")
	v.ContentType = normalizeContentType(label)
}

// applySourcePolicy raises the relevance floor for curated tech-publisher
// items: they are never dropped, whatever the model said.
func (s *Service) applySourcePolicy(v *Verdict, item models.RawItem) {
	if item.SourceKind != models.SourceTechArticle {
		return
	}
	if v.IsNews && v.RelevanceScore >= techArticleFloor {
		return
	}
	v.IsNews = true
	if v.RelevanceScore < techArticleFloor {
		v.RelevanceScore = techArticleFloor
	}
	if reason := strings.TrimSpace(v.RelevanceReason); reason == "" {
		v.RelevanceReason = "kept by tech-publisher policy"
	} else {
		v.RelevanceReason = reason + " [kept by tech-publisher policy]"
	}
}

// decodeObject extracts and parses the JSON object in the model output:
// strip fences, cut from the first '{' to the last '}', strict parse, then
// one repair attempt with quotes normalized and newlines collapsed.
func decodeObject(raw string) (map[string]any, bool) {
	cleaned := stripFences(strings.TrimSpace(raw))

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	jsonStr := cleaned[start : end+1]

	var fields map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &fields); err == nil {
		return fields, true
	}

	repaired := strings.NewReplacer("'", `"`, "\r", " ", "\n", " ").Replace(jsonStr)
	if err := json.Unmarshal([]byte(repaired), &fields); err == nil {
		return fields, true
	}
	return nil, false
}

// stripFences removes a surrounding markup fence (``` or ```json) if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// placeholders the model emits instead of omitting a key.
func isPlaceholder(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n/a", "none", "null", "undefined":
		return true
	}
	return false
}

// stringField reads a trimmed string value; placeholders count as missing.
func stringField(fields map[string]any, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return "", false
	}
	s, isString := raw.(string)
	if !isString {
		s = fmt.Sprint(raw)
	}
	s = strings.TrimSpace(s)
	if isPlaceholder(s) {
		return "", false
	}
	return s, true
}

// boolField coerces common truthy/falsy tokens.
func boolField(fields map[string]any, key string) (bool, bool) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return false, false
	}
	switch t := raw.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case string:
		if isPlaceholder(t) {
			return false, false
		}
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	}
	return false, false
}

// floatField coerces numbers and numeric strings.
func floatField(fields map[string]any, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch t := raw.(type) {
	case float64:
		return t, true
	case string:
		if isPlaceholder(t) {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// normalizeContentType folds the model's free-form labels into the fixed
// enum; anything unrecognized is news.
func normalizeContentType(label string) models.ContentType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "research", "paper", "science":
		return models.ContentResearch
	case "tutorial", "guide", "howto":
		return models.ContentTutorial
	case "humor", "joke", "fun":
		return models.ContentHumor
	case "discussion", "question", "opinion":
		return models.ContentDiscussion
	case "meme":
		return models.ContentMeme
	default:
		return models.ContentNews
	}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= 200 {
		return s
	}
	return string(runes[:200]) + "..."
}
