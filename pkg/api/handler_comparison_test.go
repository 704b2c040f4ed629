package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/models"
)

func TestComparisonPairs(t *testing.T) {
	f := newServerFixture()

	processedRaw := rawFixture("a")
	processedRaw.Title = "Go 1.25 released today"
	processedRaw.Body = "The release ships a new garbage collector."
	bare := rawFixture("b")
	f.raw.items = []models.RawItem{processedRaw, bare}

	f.processed.byID["a"] = &models.ProcessedItem{
		SourceKind:     models.SourceForumPost,
		SourceID:       "a",
		IsRelevant:     true,
		RelevanceScore: 0.92,
		EditorialTitle: "Go 1.25 released",
		EditorialBody:  "The release ships a new garbage collector.",
	}

	rec := f.request(t, http.MethodGet, "/comparison?source=forum_post", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ComparisonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.SourceForumPost, resp.Source)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 2, resp.Stats.Total)
	assert.Equal(t, 1, resp.Stats.Processed)

	pair := resp.Items[0]
	assert.True(t, pair.IsProcessed)
	require.NotNil(t, pair.IsRelevant)
	assert.True(t, *pair.IsRelevant)
	require.NotNil(t, pair.Processed)
	assert.Equal(t, "Go 1.25 released", pair.Processed.Title)

	// Title words {go, 1.25, released, today} vs {go, 1.25, released}:
	// 3 shared of 4 total.
	require.NotNil(t, pair.TitleSimilarity)
	assert.InDelta(t, 0.75, *pair.TitleSimilarity, 1e-9)
	require.NotNil(t, pair.ContentSimilarity)
	assert.InDelta(t, 1.0, *pair.ContentSimilarity, 1e-9)

	unprocessed := resp.Items[1]
	assert.False(t, unprocessed.IsProcessed)
	assert.Nil(t, unprocessed.Processed)
	assert.Nil(t, unprocessed.TitleSimilarity)

	assert.InDelta(t, 0.75, resp.Stats.AvgTitleSimilarity, 1e-9)
	assert.InDelta(t, 1.0, resp.Stats.AvgContentSimilarity, 1e-9)
}

func TestComparisonOnlyProcessed(t *testing.T) {
	f := newServerFixture()
	f.raw.items = []models.RawItem{rawFixture("a"), rawFixture("b")}
	f.processed.byID["a"] = &models.ProcessedItem{
		SourceKind: models.SourceForumPost,
		SourceID:   "a",
		IsRelevant: true,
	}

	rec := f.request(t, http.MethodGet, "/comparison?source=forum_post&only_processed=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ComparisonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "a", resp.Items[0].SourceID)
	assert.Equal(t, 1, resp.Stats.Total)
}

func TestComparisonRequiresSource(t *testing.T) {
	f := newServerFixture()

	rec := f.request(t, http.MethodGet, "/comparison", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "source query parameter is required")

	rec = f.request(t, http.MethodGet, "/comparison?source=podcast", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "unknown source kind")
}

func TestComparisonTruncatesPreviewByRunes(t *testing.T) {
	f := newServerFixture()

	long := rawFixture("a")
	long.Body = strings.Repeat("дата", 200) // 800 runes, 1600 bytes
	f.raw.items = []models.RawItem{long}

	rec := f.request(t, http.MethodGet, "/comparison?source=forum_post", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ComparisonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)

	original := resp.Items[0].Original
	assert.Equal(t, previewChars, utf8.RuneCountInString(original.ContentPreview))
	assert.Equal(t, 800, original.ContentLength)
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "quick brown fox", b: "quick brown fox", want: 1},
		{name: "disjoint", a: "alpha beta", b: "gamma delta", want: 0},
		{name: "half overlap", a: "one two three", b: "two three four", want: 0.5},
		{name: "case and whitespace ignored", a: "Hello   World", b: "hello world", want: 1},
		{name: "empty left", a: "", b: "words here", want: 0},
		{name: "both empty", a: "", b: "", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, jaccardSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestFirstRunes(t *testing.T) {
	assert.Equal(t, "abc", firstRunes("abc", 10))
	assert.Equal(t, "ab", firstRunes("abcd", 2))
	assert.Equal(t, "дат", firstRunes("дата", 3))
}
