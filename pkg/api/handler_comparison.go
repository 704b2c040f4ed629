package api

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/newsloom/newsloom/pkg/models"
	"github.com/newsloom/newsloom/pkg/store"
)

const (
	// previewChars bounds the text echoed back per side.
	previewChars = 500
	// similarityChars bounds the text the body similarity is computed over.
	similarityChars = 1000
)

// comparisonHandler handles GET /comparison: raw items of one kind paired
// with their editorial products, with Jaccard word-set similarity between
// the two titles and the two bodies.
func (s *Server) comparisonHandler(c *gin.Context) {
	sourceParam := c.Query("source")
	if sourceParam == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "source query parameter is required"})
		return
	}
	kind, err := models.ParseSourceKind(sourceParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	limit, err := intQuery(c, "limit", 10)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	onlyProcessed, err := boolQuery(c, "only_processed", false)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	raws, err := s.deps.Raw.ListBySource(ctx, kind, limit, 0)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := ComparisonResponse{
		Source:    kind,
		Timestamp: time.Now().UTC(),
		Items:     make([]ComparisonItem, 0, len(raws)),
	}
	var titleSims, contentSims []float64

	for i := range raws {
		raw := &raws[i]
		processed, err := s.deps.Processed.GetBySourceID(ctx, kind, raw.SourceID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeError(c, err)
			return
		}
		if processed == nil && onlyProcessed {
			continue
		}

		item := ComparisonItem{
			SourceID:  raw.SourceID,
			URL:       raw.URL,
			FetchedAt: raw.FetchedAt,
			Original: ComparisonSide{
				Title:          raw.Title,
				ContentPreview: firstRunes(raw.Body, previewChars),
				ContentLength:  utf8.RuneCountInString(raw.Body),
				Author:         raw.Author,
			},
		}

		if processed != nil {
			item.IsProcessed = true
			item.IsRelevant = &processed.IsRelevant
			item.RelevanceScore = &processed.RelevanceScore
			item.Processed = &ComparisonSide{
				Title:          processed.EditorialTitle,
				ContentPreview: firstRunes(processed.EditorialBody, previewChars),
				ContentLength:  utf8.RuneCountInString(processed.EditorialBody),
				Teaser:         processed.EditorialTeaser,
				ImagePrompt:    processed.ImagePrompt,
			}
			if raw.Title != "" && processed.EditorialTitle != "" {
				sim := round3(jaccardSimilarity(raw.Title, processed.EditorialTitle))
				item.TitleSimilarity = &sim
				titleSims = append(titleSims, sim)
			}
			if raw.Body != "" && processed.EditorialBody != "" {
				sim := round3(jaccardSimilarity(
					firstRunes(raw.Body, similarityChars),
					firstRunes(processed.EditorialBody, similarityChars),
				))
				item.ContentSimilarity = &sim
				contentSims = append(contentSims, sim)
			}
			resp.Stats.Processed++
		}

		resp.Items = append(resp.Items, item)
	}

	resp.Stats.Total = len(resp.Items)
	resp.Stats.AvgTitleSimilarity = round3(mean(titleSims))
	resp.Stats.AvgContentSimilarity = round3(mean(contentSims))

	c.JSON(http.StatusOK, resp)
}

// jaccardSimilarity is the overlap between the lower-cased
// whitespace-separated word sets of two texts: |A∩B| / |A∪B|.
func jaccardSimilarity(a, b string) float64 {
	aw := wordSet(a)
	bw := wordSet(b)
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	intersection := 0
	for w := range aw {
		if bw[w] {
			intersection++
		}
	}
	union := len(aw) + len(bw) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// firstRunes truncates to n runes without splitting a multi-byte character.
func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
