package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/models"
)

const channelPreviewHTML = `<!DOCTYPE html>
<html>
<body>
  <div class="tgme_widget_message" data-post="ai_newz/101">
    <div class="tgme_widget_message_text">Вышла новая модель
Подробности и замеры в треде.</div>
    <span class="tgme_widget_message_views">1.2K</span>
    <time datetime="2026-08-24T08:00:00+00:00">08:00</time>
  </div>
  <div class="tgme_widget_message" data-post="ai_newz/102">
    <a class="tgme_widget_message_photo_wrap" href="#"></a>
  </div>
  <div class="tgme_widget_message" data-post="ai_newz/103">
    <div class="tgme_widget_message_text">Одна строка без переносов</div>
    <span class="tgme_widget_message_views">87</span>
    <time datetime="2026-08-24T09:30:00+00:00">09:30</time>
  </div>
</body>
</html>`

func TestChatFetchItems(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(channelPreviewHTML))
	}))
	defer srv.Close()

	d := NewChatDriver(testSource(srv.URL+"/s", "ai_newz"))
	res, err := d.FetchItems(context.Background(), FetchParams{MaxItems: 10})
	require.NoError(t, err)
	assert.Equal(t, "/s/ai_newz", gotPath)

	// The media-only message carries no text and is dropped.
	items := res.Items
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, models.SourceChatMessage, first.SourceKind)
	assert.Equal(t, "ai_newz/101", first.SourceID)
	assert.Equal(t, "Вышла новая модель", first.Title, "title is the first text line")
	assert.Contains(t, first.Body, "Подробности и замеры")
	assert.Equal(t, srv.URL+"/ai_newz/101", first.URL)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, 8, first.PublishedAt.Hour())
	assert.Equal(t, "ai_newz", first.SourceMetadata["channel"])
	assert.Equal(t, int64(1200), first.SourceMetadata["views"])

	second := items[1]
	assert.Equal(t, "ai_newz/103", second.SourceID)
	assert.Equal(t, "Одна строка без переносов", second.Title)
	assert.Equal(t, second.Title, second.Body, "single-line message doubles as its own body")
	assert.Equal(t, int64(87), second.SourceMetadata["views"])
}

func TestChatFetchItemsKeepsNewest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(channelPreviewHTML))
	}))
	defer srv.Close()

	d := NewChatDriver(testSource(srv.URL+"/s", "ai_newz"))
	res, err := d.FetchItems(context.Background(), FetchParams{MaxItems: 1})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "ai_newz/103", res.Items[0].SourceID,
		"the page lists oldest-first; the cap keeps the newest")
}

func TestChatFetchItemsStripsAtPrefix(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(channelPreviewHTML))
	}))
	defer srv.Close()

	d := NewChatDriver(testSource(srv.URL+"/s", "@ai_newz"))
	_, err := d.FetchItems(context.Background(), FetchParams{})
	require.NoError(t, err)
	assert.Equal(t, "/s/ai_newz", gotPath)
}

func TestChatFetchItemsSkipsFailingChannel(t *testing.T) {
	fastRetries(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/s/broken" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(channelPreviewHTML))
	}))
	defer srv.Close()

	d := NewChatDriver(testSource(srv.URL+"/s", "broken", "ai_newz"))
	res, err := d.FetchItems(context.Background(), FetchParams{MaxItems: 10})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
}

func TestChatFetchItemsRejectsEmptyFilter(t *testing.T) {
	d := NewChatDriver(testSource("http://unused.test/s"))
	_, err := d.FetchItems(context.Background(), FetchParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no channels")
}

func TestParseViews(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{"87", 87, true},
		{"1.2K", 1200, true},
		{"3M", 3000000, true},
		{"10,500", 10500, true},
		{"  42  ", 42, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseViews(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
