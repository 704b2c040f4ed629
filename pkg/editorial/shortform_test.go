package editorial

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/llm"
)

func relevantVerdict() Verdict {
	return Verdict{
		IsNews:          true,
		RelevanceScore:  0.9,
		RelevanceReason: "solid news",
		Title:           "New flagship model ships",
		Teaser:          "Benchmarks included.",
		RewrittenPost:   "The lab shipped its new flagship model today with strong benchmark results.",
	}
}

func TestRenderShortForm(t *testing.T) {
	gen := &fakeGen{out: `{
		"title": "Flagship model ships",
		"body": "A new flagship model landed today with **strong** benchmarks.",
		"hashtags": ["#AI", "#LLM", "#Benchmarks"]
	}`}
	svc := newTestService(gen)

	sf, err := svc.RenderShortForm(context.Background(), relevantVerdict())

	require.NoError(t, err)
	assert.Equal(t, "Flagship model ships", sf.Title)
	assert.Equal(t, []string{"#AI", "#LLM", "#Benchmarks"}, sf.Hashtags)
	assert.Equal(t, "**Flagship model ships**\n\nA new flagship model landed today with **strong** benchmarks.\n\n#AI #LLM #Benchmarks", sf.Formatted)
	assert.Equal(t, utf8.RuneCountInString(sf.Formatted), sf.CharCount)
	assert.LessOrEqual(t, sf.CharCount, 3500)

	assert.InDelta(t, 0.3, gen.lastReq.Temperature, 1e-9)
	assert.Contains(t, gen.lastReq.Prompt, "New flagship model ships")
}

func TestRenderShortFormHashtagString(t *testing.T) {
	gen := &fakeGen{out: `{"title": "T", "body": "B", "hashtags": "#ai, #ml #news"}`}
	svc := newTestService(gen)

	sf, err := svc.RenderShortForm(context.Background(), relevantVerdict())

	require.NoError(t, err)
	assert.Equal(t, []string{"#ai", "#ml", "#news"}, sf.Hashtags)
}

func TestRenderShortFormClampsHashtags(t *testing.T) {
	gen := &fakeGen{out: `{"title": "T", "body": "B",
		"hashtags": ["#a", "#b", "#c", "#d", "#e", "#f", "#g"]}`}
	svc := newTestService(gen)

	sf, err := svc.RenderShortForm(context.Background(), relevantVerdict())

	require.NoError(t, err)
	assert.Len(t, sf.Hashtags, 5)
	assert.Equal(t, []string{"#a", "#b", "#c", "#d", "#e"}, sf.Hashtags)
}

func TestRenderShortFormTooFewHashtags(t *testing.T) {
	gen := &fakeGen{out: `{"title": "T", "body": "B", "hashtags": ["#only", "#two"]}`}
	svc := newTestService(gen)

	_, err := svc.RenderShortForm(context.Background(), relevantVerdict())

	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
	assert.ErrorContains(t, err, "hashtags")
}

func TestRenderShortFormMissingFields(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"missing title", `{"body": "B", "hashtags": ["#a", "#b", "#c"]}`},
		{"placeholder title", `{"title": "N/A", "body": "B", "hashtags": ["#a", "#b", "#c"]}`},
		{"missing body", `{"title": "T", "hashtags": ["#a", "#b", "#c"]}`},
		{"not json at all", `cannot comply`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&fakeGen{out: tt.out})
			_, err := svc.RenderShortForm(context.Background(), relevantVerdict())
			assert.Error(t, err)
		})
	}
}

func TestRenderShortFormGenerateError(t *testing.T) {
	svc := newTestService(&fakeGen{err: llm.ErrBackendUnavailable})

	_, err := svc.RenderShortForm(context.Background(), relevantVerdict())

	assert.ErrorIs(t, err, llm.ErrBackendUnavailable)
}

func TestRenderShortFormTrimsOverlongBody(t *testing.T) {
	longBody := strings.Repeat("alpha beta gamma ", 300)
	gen := &fakeGen{out: `{"title": "T", "body": "` + longBody + `", "hashtags": ["#a", "#b", "#c"]}`}

	cfg := testEditorialConfig()
	cfg.ShortForm.MaxChars = 500
	svc := New(gen, cfg)

	sf, err := svc.RenderShortForm(context.Background(), relevantVerdict())

	require.NoError(t, err)
	assert.LessOrEqual(t, sf.CharCount, 500)
	assert.Equal(t, utf8.RuneCountInString(sf.Formatted), sf.CharCount)
	// Trimmed at a word boundary, not mid-token.
	assert.False(t, strings.HasSuffix(sf.Body, "alph"))
}

func TestHashtagList(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"array", []any{"#a", "b", " #c "}, []string{"#a", "#b", "#c"}},
		{"string with commas", "#x, #y, #z", []string{"#x", "#y", "#z"}},
		{"duplicates dropped", []any{"#a", "#a", "#b"}, []string{"#a", "#b"}},
		{"placeholders dropped", []any{"#a", "N/A", ""}, []string{"#a"}},
		{"nil", nil, nil},
		{"wrong type", 42, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hashtagList(tt.in))
		})
	}
}

func TestFitBodyLeavesShortBodies(t *testing.T) {
	body := fitBody("T", "short body", []string{"#a", "#b", "#c"}, 3500)
	assert.Equal(t, "short body", body)
}
