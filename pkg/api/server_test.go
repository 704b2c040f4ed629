package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/jobs"
	"github.com/newsloom/newsloom/pkg/logstream"
	"github.com/newsloom/newsloom/pkg/models"
	"github.com/newsloom/newsloom/pkg/store"
)

// The production collaborators must satisfy the handler interfaces.
var (
	_ JobService      = (*jobs.Manager)(nil)
	_ RawLister       = (*store.RawItemRepo)(nil)
	_ ProcessedGetter = (*store.ProcessedItemRepo)(nil)
	_ ShortFormGetter = (*store.ShortFormRepo)(nil)
	_ StatsCollector  = (*store.Store)(nil)
	_ LogStore        = (*logstream.Manager)(nil)
	_ Pinger          = (*pgxpool.Pool)(nil)
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type submission struct {
	kind   models.SourceKind
	params models.JobParams
}

type fakeJobs struct {
	submitted []submission
	submitErr error
	job       *models.Job
	getErr    error
	list      []*models.Job
	cleaned   int
	stats     jobs.Stats
}

func (f *fakeJobs) Submit(kind models.SourceKind, params models.JobParams) (*models.Job, error) {
	f.submitted = append(f.submitted, submission{kind: kind, params: params})
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.Job{
		JobID:      "job-1",
		SourceKind: kind,
		Params:     params,
		State:      models.JobPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (f *fakeJobs) Get(string) (*models.Job, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.job, nil
}

func (f *fakeJobs) List(limit int) []*models.Job {
	if limit > 0 && limit < len(f.list) {
		return f.list[:limit]
	}
	return f.list
}

func (f *fakeJobs) Cleanup() int { return f.cleaned }

func (f *fakeJobs) Snapshot() jobs.Stats { return f.stats }

type fakeRawLister struct {
	items []models.RawItem
	err   error
}

func (f *fakeRawLister) ListBySource(_ context.Context, _ models.SourceKind, limit, _ int) ([]models.RawItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.items) {
		return f.items[:limit], nil
	}
	return f.items, nil
}

type fakeProcessedGetter struct {
	byID map[string]*models.ProcessedItem
	err  error
}

func (f *fakeProcessedGetter) GetBySourceID(_ context.Context, _ models.SourceKind, sourceID string) (*models.ProcessedItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.byID[sourceID]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

type fakeShortFormGetter struct {
	byID  map[string]*models.ShortFormItem
	calls int
}

func (f *fakeShortFormGetter) GetBySourceID(_ context.Context, _ models.SourceKind, sourceID string) (*models.ShortFormItem, error) {
	f.calls++
	if s, ok := f.byID[sourceID]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

type fakeStats struct {
	stats *store.Stats
	err   error
}

func (f *fakeStats) CollectStats(context.Context) (*store.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

type fakeLogStore struct {
	entries        []models.LogEntry
	lastQuery      logstream.Query
	removed        int
	clearedSession string
	sessions       []models.Session
	err            error
}

func (f *fakeLogStore) GetLogs(_ context.Context, q logstream.Query) ([]models.LogEntry, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeLogStore) ClearLogs(_ context.Context, sessionID string) (int, error) {
	f.clearedSession = sessionID
	if f.err != nil {
		return 0, f.err
	}
	return f.removed, nil
}

func (f *fakeLogStore) ActiveSessions(context.Context) ([]models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions, nil
}

func (f *fakeLogStore) Backend() string { return "file" }

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

type serverFixture struct {
	jobs      *fakeJobs
	raw       *fakeRawLister
	processed *fakeProcessedGetter
	short     *fakeShortFormGetter
	stats     *fakeStats
	logs      *fakeLogStore
	db        *fakePinger
	server    *Server
}

func newServerFixture() *serverFixture {
	f := &serverFixture{
		jobs:      &fakeJobs{stats: jobs.Stats{Workers: 2}},
		raw:       &fakeRawLister{},
		processed: &fakeProcessedGetter{byID: make(map[string]*models.ProcessedItem)},
		short:     &fakeShortFormGetter{byID: make(map[string]*models.ShortFormItem)},
		stats:     &fakeStats{stats: &store.Stats{}},
		logs:      &fakeLogStore{},
		db:        &fakePinger{},
	}
	cfg := &config.Config{
		Sources: &config.SourcesConfig{
			Sources: map[models.SourceKind]*config.SourceConfig{
				models.SourceForumPost: {MaxItems: 25},
			},
		},
	}
	f.server = NewServer(cfg, Deps{
		Jobs:      f.jobs,
		Raw:       f.raw,
		Processed: f.processed,
		ShortForm: f.short,
		Stats:     f.stats,
		Logs:      f.logs,
		DB:        f.db,
	})
	return f
}

func (f *serverFixture) request(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestUnknownRouteReturns404(t *testing.T) {
	f := newServerFixture()
	rec := f.request(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticRoutesWinOverRecordsWildcard(t *testing.T) {
	f := newServerFixture()

	// Same shape as /:source/records but a static first segment.
	rec := f.request(t, http.MethodGet, "/logs/sessions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodGet, "/forum_post/records", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
