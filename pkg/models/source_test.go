package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceKind(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SourceKind
		wantErr bool
	}{
		{name: "forum post", input: "forum_post", want: SourceForumPost},
		{name: "tech article", input: "tech_article", want: SourceTechArticle},
		{name: "chat message", input: "chat_message", want: SourceChatMessage},
		{name: "blog article", input: "blog_article", want: SourceBlogArticle},
		{name: "unknown", input: "podcast", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "case sensitive", input: "Forum_Post", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSourceKind(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestSourceKindCollection(t *testing.T) {
	// Every kind maps to a distinct collection.
	seen := map[string]bool{}
	for _, kind := range AllSourceKinds {
		name := kind.Collection()
		assert.NotEmpty(t, name)
		assert.False(t, seen[name], "collection %q reused", name)
		seen[name] = true
	}
}

func TestRawItemContentText(t *testing.T) {
	item := RawItem{Title: "GPT-5 released", Body: "OpenAI ships a new model."}
	assert.Equal(t, "GPT-5 released\n\nOpenAI ships a new model.", item.ContentText())

	empty := RawItem{Title: "just a title"}
	assert.Equal(t, "just a title", empty.ContentText())
}

func TestJobStateTerminal(t *testing.T) {
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
}

func TestRunCountersAsMap(t *testing.T) {
	c := RunCounters{Saved: 3, Skipped: 1, SemanticDuplicates: 2, EditorialProcessed: 3, Errors: 0}
	m := c.AsMap()
	assert.Equal(t, 3, m["saved"])
	assert.Equal(t, 2, m["semantic_duplicates"])
	assert.NotContains(t, m, "blocked")

	c.Blocked = 4
	c.RSSUsed = 1
	m = c.AsMap()
	assert.Equal(t, 4, m["blocked"])
	assert.Equal(t, 1, m["rss_used"])
}
