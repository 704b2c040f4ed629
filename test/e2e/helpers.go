package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/models"
	"github.com/newsloom/newsloom/pkg/store"
)

// ────────────────────────────────────────────────────────────
// HTTP Client Helpers
// ────────────────────────────────────────────────────────────

// SubmitScrape posts a scrape request for kind and returns the accepted job.
func (app *TestApp) SubmitScrape(t *testing.T, kind string, body map[string]any) map[string]any {
	t.Helper()
	return app.postJSON(t, "/scrape/"+kind, body, http.StatusAccepted)
}

// RunScrape submits a scrape request, waits for the job to finish, and fails
// the test unless it completed. Returns the final job document.
func (app *TestApp) RunScrape(t *testing.T, kind string, body map[string]any) map[string]any {
	t.Helper()
	job := app.SubmitScrape(t, kind, body)
	jobID, _ := job["job_id"].(string)
	require.NotEmpty(t, jobID, "accepted job has no job_id: %v", job)
	final := app.WaitForJobState(t, jobID, "completed", "failed")
	require.Equalf(t, "completed", final["state"], "job %s failed: %v", jobID, final["error"])
	return final
}

// WaitForJobState polls the status endpoint until the job reaches one of the
// expected states and returns the final job document.
func (app *TestApp) WaitForJobState(t *testing.T, jobID string, expected ...string) map[string]any {
	t.Helper()
	var last map[string]any
	var lastState string
	require.Eventually(t, func() bool {
		resp, err := http.Get(app.BaseURL + "/scrape/status/" + jobID)
		if err != nil {
			return false // transient error, let Eventually retry
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var job map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
			return false
		}
		last = job
		lastState, _ = job["state"].(string)
		for _, exp := range expected {
			if lastState == exp {
				return true
			}
		}
		return false
	}, 15*time.Second, 50*time.Millisecond,
		"job %s did not reach state %v (last: %s)", jobID, expected, lastState)
	return last
}

// GetJobs calls GET /scrape/jobs.
func (app *TestApp) GetJobs(t *testing.T) map[string]any {
	t.Helper()
	return app.getJSON(t, "/scrape/jobs", http.StatusOK)
}

// ClearJobs calls DELETE /scrape/jobs.
func (app *TestApp) ClearJobs(t *testing.T) map[string]any {
	t.Helper()
	return app.deleteJSON(t, "/scrape/jobs", http.StatusOK)
}

// GetRecords calls GET /:source/records with optional query params.
func (app *TestApp) GetRecords(t *testing.T, kind, queryParams string) map[string]any {
	t.Helper()
	path := "/" + kind + "/records"
	if queryParams != "" {
		path += "?" + queryParams
	}
	return app.getJSON(t, path, http.StatusOK)
}

// GetStatistics calls GET /statistics.
func (app *TestApp) GetStatistics(t *testing.T) map[string]any {
	t.Helper()
	return app.getJSON(t, "/statistics", http.StatusOK)
}

// GetComparison calls GET /comparison with optional query params.
func (app *TestApp) GetComparison(t *testing.T, queryParams string) map[string]any {
	t.Helper()
	path := "/comparison"
	if queryParams != "" {
		path += "?" + queryParams
	}
	return app.getJSON(t, path, http.StatusOK)
}

// GetHealth calls GET /health.
func (app *TestApp) GetHealth(t *testing.T) map[string]any {
	t.Helper()
	return app.getJSON(t, "/health", http.StatusOK)
}

// GetLogs calls GET /logs with optional query params.
func (app *TestApp) GetLogs(t *testing.T, queryParams string) []any {
	t.Helper()
	path := "/logs"
	if queryParams != "" {
		path += "?" + queryParams
	}
	return app.getJSONArray(t, path, http.StatusOK)
}

// GetLogSessions calls GET /logs/sessions.
func (app *TestApp) GetLogSessions(t *testing.T) map[string]any {
	t.Helper()
	return app.getJSON(t, "/logs/sessions", http.StatusOK)
}

// ClearLogs calls DELETE /logs.
func (app *TestApp) ClearLogs(t *testing.T) map[string]any {
	t.Helper()
	return app.deleteJSON(t, "/logs", http.StatusOK)
}

func (app *TestApp) postJSON(t *testing.T, path string, body any, expectedStatus int) map[string]any {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: unexpected status", path)
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(app.BaseURL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: unexpected status", path)
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func (app *TestApp) getJSONArray(t *testing.T, path string, expectedStatus int) []any {
	t.Helper()
	resp, err := http.Get(app.BaseURL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: unexpected status", path)
	var result []any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func (app *TestApp) deleteJSON(t *testing.T, path string, expectedStatus int) map[string]any {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, app.BaseURL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "DELETE %s: unexpected status", path)
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

// ────────────────────────────────────────────────────────────
// DB Record Helpers
// ────────────────────────────────────────────────────────────

// RawRecord fetches a stored raw item straight from the database.
func (app *TestApp) RawRecord(t *testing.T, kind models.SourceKind, sourceID string) *models.RawItem {
	t.Helper()
	item, err := app.Store.Raw.GetBySourceID(context.Background(), kind, sourceID)
	require.NoError(t, err)
	return item
}

// RawRecordExists reports whether a raw item row exists.
func (app *TestApp) RawRecordExists(t *testing.T, kind models.SourceKind, sourceID string) bool {
	t.Helper()
	exists, err := app.Store.Raw.ExistsBySourceID(context.Background(), kind, sourceID)
	require.NoError(t, err)
	return exists
}

// CountRaw returns the number of raw rows stored for kind.
func (app *TestApp) CountRaw(t *testing.T, kind models.SourceKind) int {
	t.Helper()
	n, err := app.Store.Raw.CountByKind(context.Background(), kind)
	require.NoError(t, err)
	return int(n)
}

// ProcessedRecord fetches a stored verdict row.
func (app *TestApp) ProcessedRecord(t *testing.T, kind models.SourceKind, sourceID string) *models.ProcessedItem {
	t.Helper()
	item, err := app.Store.Processed.GetBySourceID(context.Background(), kind, sourceID)
	require.NoError(t, err)
	return item
}

// HasProcessedRecord reports whether a verdict row exists for the item.
func (app *TestApp) HasProcessedRecord(t *testing.T, kind models.SourceKind, sourceID string) bool {
	t.Helper()
	_, err := app.Store.Processed.GetBySourceID(context.Background(), kind, sourceID)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

// ShortFormRecord fetches a stored short-form row.
func (app *TestApp) ShortFormRecord(t *testing.T, kind models.SourceKind, sourceID string) *models.ShortFormItem {
	t.Helper()
	item, err := app.Store.ShortForm.GetBySourceID(context.Background(), kind, sourceID)
	require.NoError(t, err)
	return item
}

// HasShortFormRecord reports whether a short-form row exists for the item.
func (app *TestApp) HasShortFormRecord(t *testing.T, kind models.SourceKind, sourceID string) bool {
	t.Helper()
	_, err := app.Store.ShortForm.GetBySourceID(context.Background(), kind, sourceID)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

// ────────────────────────────────────────────────────────────
// JSON Value Helpers
// ────────────────────────────────────────────────────────────

// resultCounter reads one run counter from a finished job document. Counters
// the run never touched decode as 0.
func resultCounter(t *testing.T, job map[string]any, name string) int {
	t.Helper()
	result, ok := job["result"].(map[string]any)
	require.True(t, ok, "job has no result: %v", job)
	return toInt(result[name])
}

// toInt converts a JSON-decoded numeric value (typically float64) to int.
// Returns 0 for nil and unrecognized types.
func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case float32:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
