package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/ingest"
	"github.com/newsloom/newsloom/pkg/models"
)

func logMessages(logs *fakeLogs) []string {
	logs.mu.Lock()
	defer logs.mu.Unlock()
	msgs := make([]string, 0, len(logs.entries))
	for _, e := range logs.entries {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

func forumDriver(result ingest.FetchResult, err error) *fakeDriver {
	return &fakeDriver{kind: models.SourceForumPost, result: result, err: err}
}

func drivers(d *fakeDriver) map[models.SourceKind]ingest.Driver {
	return map[models.SourceKind]ingest.Driver{d.kind: d}
}

func TestRunSequentialCounters(t *testing.T) {
	f := newFixture()
	f.raw = newFakeRaw("dup-1")

	invalid := testItem("bad-1")
	invalid.Title = "no"
	thin := testItem("thin-1")
	thin.Title = "Short note"
	thin.Body = ""

	driver := forumDriver(ingest.FetchResult{
		Items:   []models.RawItem{testItem("ok-1"), testItem("dup-1"), invalid, thin},
		Blocked: 1,
		RSSUsed: 2,
	}, nil)
	p := New(drivers(driver), f.deps(), testConfig())

	params := models.JobParams{MaxItems: 25, Filter: []string{"golang"}, EnableDeduplication: true}
	counters, err := p.Run(context.Background(), models.SourceForumPost, params)
	require.NoError(t, err)

	assert.Equal(t, 2, counters.Saved, "ok-1 plus the thin item")
	assert.Equal(t, 2, counters.Skipped, "the exact duplicate and the invalid item")
	assert.Zero(t, counters.SemanticDuplicates)
	assert.Zero(t, counters.EditorialProcessed)
	assert.Zero(t, counters.Errors)
	assert.Equal(t, 1, counters.Blocked, "driver counters pass through")
	assert.Equal(t, 2, counters.RSSUsed)

	assert.Equal(t, 25, driver.params.MaxItems)
	assert.Equal(t, []string{"golang"}, driver.params.Filter)

	assert.Len(t, f.dedup.checked, 1, "only the full-length survivor reaches the embedder")
	assert.Empty(t, f.editor.reviewed)

	assert.Equal(t, 1, f.logs.sessions)
	assert.Equal(t, []string{"session-1"}, f.logs.closed)
	msgs := logMessages(f.logs)
	assert.Contains(t, msgs, "run started: forum_post (llm=false dedup=true)")
	assert.Contains(t, msgs, "fetched 4 items")
	assert.Contains(t, msgs, "saved ok-1")
	assert.Contains(t, msgs, "skipped dup-1: duplicate_id")
	assert.Contains(t, msgs, "skipped bad-1: invalid")
	assert.Contains(t, msgs, "saved thin-1 without enrichment: too_short")
	assert.Contains(t, msgs, "run finished: saved=2 skipped=2 semantic_duplicates=0 editorial=0 errors=0")
}

func TestRunCountsSemanticDuplicates(t *testing.T) {
	f := newFixture()
	f.dedup.dup = true
	f.dedup.dupOf = "origin-1"
	f.dedup.similarity = 0.95

	driver := forumDriver(ingest.FetchResult{
		Items: []models.RawItem{testItem("a"), testItem("b")},
	}, nil)
	p := New(drivers(driver), f.deps(), testConfig())

	counters, err := p.Run(context.Background(), models.SourceForumPost, models.JobParams{MaxItems: 5, EnableDeduplication: true})
	require.NoError(t, err)

	assert.Equal(t, 2, counters.SemanticDuplicates)
	assert.Zero(t, counters.Saved, "rolled-back items do not count as saved")
	assert.Zero(t, counters.Skipped)
	assert.Equal(t, []string{"a", "b"}, f.raw.deleted)

	msgs := logMessages(f.logs)
	assert.Contains(t, msgs, "semantic duplicate a of origin-1 (similarity 0.95)")
}

func TestRunUnknownKind(t *testing.T) {
	f := newFixture()
	p := New(map[models.SourceKind]ingest.Driver{}, f.deps(), testConfig())

	_, err := p.Run(context.Background(), models.SourceTechArticle, allOn())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no driver configured")
	assert.Zero(t, f.logs.sessions, "rejected runs never open a session")
}

func TestRunFetchFailure(t *testing.T) {
	f := newFixture()
	driver := forumDriver(ingest.FetchResult{}, errors.New("api: 500"))
	p := New(drivers(driver), f.deps(), testConfig())

	counters, err := p.Run(context.Background(), models.SourceForumPost, allOn())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch forum_post")
	assert.Zero(t, counters.Saved)

	assert.Equal(t, 1, f.logs.sessions)
	require.Len(t, f.logs.closed, 1, "the session closes even when the fetch fails")
	assert.Contains(t, logMessages(f.logs), "fetch failed: api: 500")
}

func TestRunItemErrorsDoNotAbort(t *testing.T) {
	f := newFixture()
	f.raw.saveErr = errors.New("connection refused")
	driver := forumDriver(ingest.FetchResult{
		Items: []models.RawItem{testItem("a"), testItem("b")},
	}, nil)
	p := New(drivers(driver), f.deps(), testConfig())

	counters, err := p.Run(context.Background(), models.SourceForumPost, models.JobParams{MaxItems: 5})
	require.NoError(t, err, "per-item failures are counted, not returned")
	assert.Equal(t, 2, counters.Errors)
	assert.Zero(t, counters.Saved)
	assert.Contains(t, logMessages(f.logs), "a: persist raw: connection refused")
}

func TestRunParallelEditorial(t *testing.T) {
	f := newFixture()
	items := make([]models.RawItem, 0, 8)
	for i := 0; i < 8; i++ {
		items = append(items, testItem(fmt.Sprintf("p%d", i)))
	}
	driver := forumDriver(ingest.FetchResult{Items: items}, nil)

	cfg := testConfig()
	cfg.MaxParallelTasks = 4
	p := New(drivers(driver), f.deps(), cfg)

	counters, err := p.Run(context.Background(), models.SourceForumPost, allOn())
	require.NoError(t, err)

	assert.Equal(t, 8, counters.Saved)
	assert.Equal(t, 8, counters.EditorialProcessed)
	assert.Zero(t, counters.Skipped)
	assert.Zero(t, counters.Errors)

	assert.Len(t, f.raw.saved, 8)
	assert.Len(t, f.editor.reviewed, 8)
	assert.Len(t, f.finalizer.calls, 8)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFixture()
	driver := forumDriver(ingest.FetchResult{Items: []models.RawItem{testItem("a")}}, nil)
	p := New(drivers(driver), f.deps(), testConfig())

	counters, err := p.Run(ctx, models.SourceForumPost, models.JobParams{MaxItems: 5})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, counters.Saved)
	assert.Empty(t, f.raw.saved)
	require.Len(t, f.logs.closed, 1, "the session closes even on cancellation")
}

func TestRunToleratesLogStoreOutage(t *testing.T) {
	f := newFixture()
	f.logs.createErr = errors.New("redis: connection refused")
	driver := forumDriver(ingest.FetchResult{Items: []models.RawItem{testItem("a")}}, nil)
	p := New(drivers(driver), f.deps(), testConfig())

	counters, err := p.Run(context.Background(), models.SourceForumPost, models.JobParams{MaxItems: 5, EnableDeduplication: true})
	require.NoError(t, err, "a dead log store never affects the run")
	assert.Equal(t, 1, counters.Saved)
	assert.Empty(t, f.logs.entries)
	assert.Empty(t, f.logs.closed)
}

func TestRunWithoutLogStore(t *testing.T) {
	f := newFixture()
	deps := f.deps()
	deps.Logs = nil
	driver := forumDriver(ingest.FetchResult{Items: []models.RawItem{testItem("a")}}, nil)
	p := New(drivers(driver), deps, testConfig())

	counters, err := p.Run(context.Background(), models.SourceForumPost, models.JobParams{MaxItems: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, counters.Saved)
}
