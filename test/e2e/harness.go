// Package e2e provides end-to-end test infrastructure for the newsloom
// pipeline: a full application instance over a real per-test database, a
// scripted generation backend, a scripted source listing server, and an
// in-memory vector index.
package e2e

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/api"
	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/database"
	"github.com/newsloom/newsloom/pkg/dedup"
	"github.com/newsloom/newsloom/pkg/editorial"
	"github.com/newsloom/newsloom/pkg/ingest"
	"github.com/newsloom/newsloom/pkg/jobs"
	"github.com/newsloom/newsloom/pkg/llm"
	"github.com/newsloom/newsloom/pkg/logstream"
	"github.com/newsloom/newsloom/pkg/models"
	"github.com/newsloom/newsloom/pkg/pipeline"
	"github.com/newsloom/newsloom/pkg/store"
	testdb "github.com/newsloom/newsloom/test/database"
)

// Test-wide tunables. The embedding dimension is small so vector math stays
// cheap; the thresholds match the shapes the scenarios are written against.
const (
	testEmbeddingDim        = 64
	testSimilarityThreshold = 0.90
	testMinContentLength    = 20
)

// TestApp boots a complete newsloom instance for e2e testing.
type TestApp struct {
	// Core
	Config   *config.Config
	DBClient *database.Client
	Store    *store.Store

	// Mocks / test wiring
	LLM    *ScriptedLLMServer // generation backend, Ollama wire protocol
	Source *ListingServer     // forum listing API
	Index  *MemoryIndex       // vector index behind the dedup service

	// Real infrastructure
	Pipeline *pipeline.Pipeline
	Runner   *jobs.Manager
	Logs     *logstream.Manager
	Server   *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	workers          int
	maxParallelTasks int
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithWorkerCount sets the number of job runner workers.
func WithWorkerCount(n int) TestAppOption {
	return func(c *testAppConfig) { c.workers = n }
}

// WithMaxParallelTasks sets the per-job editorial worker pool size. Values
// above one route enrichment through the parallel path.
func WithMaxParallelTasks(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxParallelTasks = n }
}

// NewTestApp creates and starts a full newsloom test instance. Shutdown is
// registered via t.Cleanup automatically. Scripts and listing posts are set
// on the returned app's LLM and Source fields; jobs only run on submission,
// so scripting after boot is safe.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		workers:          1,
		maxParallelTasks: 1,
	}
	for _, opt := range opts {
		opt(tc)
	}

	// 1. Database — isolated migrated schema per test.
	dbClient := testdb.NewTestClient(t)
	st := store.New(dbClient.Pool())

	// 2. Mock backends: the generation server speaks the Ollama wire
	//    protocol, the listing server speaks the forum listing API.
	llmSrv := NewScriptedLLMServer(t, testEmbeddingDim)
	sourceSrv := NewListingServer(t)

	// 3. Config pointed at the mocks. Nothing listens on the redis address,
	//    which forces the log store onto its file backend below.
	cfg := testConfig(t, llmSrv.URL(), sourceSrv.URL(), tc)

	// 4. Real LLM client against the scripted server.
	llmClient := llm.NewClient(cfg.LLM)

	// 5. Dedup over the in-memory index; editorial over the real client.
	index := NewMemoryIndex()
	dedupSvc := dedup.New(llmClient, index, cfg.Pipeline.SimilarityThreshold)
	editorialSvc := editorial.New(llmClient, cfg.Editorial)

	// 6. Source drivers from the descriptor registry.
	drivers, err := ingest.Registry(cfg.Sources)
	require.NoError(t, err)

	// 7. Log store. The unreachable redis address fails the dial
	//    immediately, so the manager lands on the file backend in the
	//    test's temp dir.
	ctx := context.Background()
	logStore, err := logstream.New(ctx, cfg.Redis, cfg.Pipeline)
	require.NoError(t, err)
	require.Equal(t, "file", logStore.Backend())

	// 8. Pipeline and job runner.
	pipe := pipeline.New(drivers, pipeline.Deps{
		Raw:       st.Raw,
		Finalizer: st,
		Dedup:     dedupSvc,
		Editorial: editorialSvc,
		Health:    llmClient,
		Logs:      logStore,
	}, cfg.Pipeline)
	runner := jobs.New(pipe, cfg.Pipeline)
	runCtx, cancelRun := context.WithCancel(ctx)
	runner.Start(runCtx)

	// 9. HTTP server over an httptest listener.
	server := api.NewServer(cfg, api.Deps{
		Jobs:      runner,
		Raw:       st.Raw,
		Processed: st.Processed,
		ShortForm: st.ShortForm,
		Stats:     st,
		Logs:      logStore,
		DB:        dbClient.Pool(),
	})
	httpSrv := httptest.NewServer(server.Router())

	app := &TestApp{
		Config:   cfg,
		DBClient: dbClient,
		Store:    st,
		LLM:      llmSrv,
		Source:   sourceSrv,
		Index:    index,
		Pipeline: pipe,
		Runner:   runner,
		Logs:     logStore,
		Server:   server,
		BaseURL:  httpSrv.URL,
		t:        t,
	}

	// Register cleanup in reverse-creation order. The mock servers and the
	// database schema register their own cleanups.
	t.Cleanup(func() {
		httpSrv.Close()
		cancelRun()
		runner.Stop()
	})

	return app
}

// testConfig builds a config around the mock endpoints with short timeouts.
func testConfig(t *testing.T, llmURL, sourceURL string, tc *testAppConfig) *config.Config {
	t.Helper()
	return &config.Config{
		HTTP: config.HTTPConfig{
			Addr:            "127.0.0.1:0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: time.Second,
		},
		LLM: config.LLMConfig{
			BaseURL:        llmURL,
			Model:          "test-model",
			EmbedModel:     "test-embed",
			EmbeddingDim:   testEmbeddingDim,
			RequestTimeout: 10 * time.Second,
			EmbedTimeout:   10 * time.Second,
			HealthTimeout:  2 * time.Second,
			MaxRetries:     1,
			ContextWindow:  8192,
			EmbedCharLimit: 8000,
		},
		Redis: config.RedisConfig{Addr: "127.0.0.1:1"},
		Pipeline: config.PipelineConfig{
			SimilarityThreshold: testSimilarityThreshold,
			MinContentLength:    testMinContentLength,
			MaxParallelTasks:    tc.maxParallelTasks,
			RunnerWorkers:       tc.workers,
			MaxItemsCap:         100,
			MaxLogs:             1000,
			LogDir:              t.TempDir(),
		},
		Sources: &config.SourcesConfig{
			Sources: map[models.SourceKind]*config.SourceConfig{
				models.SourceForumPost: {
					BaseURL:           sourceURL,
					Filters:           []string{"machinelearning"},
					RequestsPerSecond: 1000,
					MaxItems:          25,
				},
			},
		},
		Editorial: testEditorialConfig(),
	}
}

func testEditorialConfig() *config.EditorialConfig {
	return &config.EditorialConfig{
		Role:      "You are the news desk editor of a technology channel.",
		Objective: "Select items worth publishing and rewrite them.",
		Pipeline: []string{
			"Judge whether the item is news the channel should carry.",
			"Rewrite relevant items in the channel's voice.",
		},
		Defaults: config.EditorialDefaults{
			RelevanceReason: "relevance not stated",
			Title:           "Untitled",
			Teaser:          "Details inside",
			ImagePrompt:     "abstract newsroom illustration",
		},
		ShortForm: config.ShortFormPrompt{
			Role:     "You compress editorial pieces into channel posts.",
			MaxChars: models.MaxShortFormChars,
		},
	}
}
