package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetries(t *testing.T) {
	t.Helper()
	origInitial, origMax := retryInitialWait, retryMaxWait
	retryInitialWait = time.Millisecond
	retryMaxWait = 2 * time.Millisecond
	t.Cleanup(func() {
		retryInitialWait = origInitial
		retryMaxWait = origMax
	})
}

// testSource returns a descriptor that never throttles the test server.
func testSource(baseURL string, filters ...string) *config.SourceConfig {
	return &config.SourceConfig{
		BaseURL:           baseURL,
		Filters:           filters,
		RequestsPerSecond: 1000,
		MaxItems:          10,
	}
}

func TestFetcherRetriesServerErrors(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := newFetcher(testSource(srv.URL), testLogger())
	data, err := f.get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetcherRetriesRateLimit(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newFetcher(testSource(srv.URL), testLogger())
	data, err := f.get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetcherGivesUpAfterMaxAttempts(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newFetcher(testSource(srv.URL), testLogger())
	_, err := f.get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 502")
	assert.EqualValues(t, maxFetchAttempts, calls.Load())
}

func TestFetcherDoesNotRetryClientErrors(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newFetcher(testSource(srv.URL), testLogger())
	_, err := f.get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetcherRotatesUserAgents(t *testing.T) {
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	src := testSource(srv.URL)
	src.UserAgents = []string{"agent-a", "agent-b"}

	f := newFetcher(src, testLogger())
	for i := 0; i < 3; i++ {
		_, err := f.get(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"agent-a", "agent-b", "agent-a"}, agents)
}

func TestFetcherDefaultUserAgent(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newFetcher(testSource(srv.URL), testLogger())
	_, err := f.get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, defaultUserAgent, agent)
}

func TestFetchParamsWithDefaults(t *testing.T) {
	src := &config.SourceConfig{
		Filters:  []string{"alpha", "beta"},
		MaxItems: 25,
	}

	t.Run("zero values fall back to descriptor", func(t *testing.T) {
		p := FetchParams{}.withDefaults(src)
		assert.Equal(t, 25, p.MaxItems)
		assert.Equal(t, []string{"alpha", "beta"}, p.Filter)
	})

	t.Run("explicit values win", func(t *testing.T) {
		p := FetchParams{MaxItems: 3, Filter: []string{"gamma"}}.withDefaults(src)
		assert.Equal(t, 3, p.MaxItems)
		assert.Equal(t, []string{"gamma"}, p.Filter)
	})

	t.Run("empty descriptor gets a floor", func(t *testing.T) {
		p := FetchParams{}.withDefaults(&config.SourceConfig{})
		assert.Equal(t, 10, p.MaxItems)
	})
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(models.SourceKind("carrier_pigeon"), &config.SourceConfig{})
	require.Error(t, err)

	_, err = New(models.SourceForumPost, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source descriptor")
}

func TestRegistryBuildsConfiguredDrivers(t *testing.T) {
	sources := &config.SourcesConfig{
		Sources: map[models.SourceKind]*config.SourceConfig{
			models.SourceForumPost:   {BaseURL: "http://forum.test"},
			models.SourceTechArticle: {BaseURL: "http://tech.test"},
		},
	}

	drivers, err := Registry(sources)
	require.NoError(t, err)
	require.Len(t, drivers, 2)
	assert.Equal(t, models.SourceForumPost, drivers[models.SourceForumPost].Kind())
	assert.Equal(t, models.SourceTechArticle, drivers[models.SourceTechArticle].Kind())
	assert.NotContains(t, drivers, models.SourceChatMessage)
}
