package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/pkg/jobs"
)

func TestHealthHealthy(t *testing.T) {
	f := newServerFixture()

	rec := f.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Equal(t, healthStatusHealthy, resp.Checks["database"].Status)
	assert.Equal(t, healthStatusHealthy, resp.Checks["job_runner"].Status)
	assert.Equal(t, "file", resp.Checks["log_store"].Message)
}

func TestHealthUnhealthyDatabase(t *testing.T) {
	f := newServerFixture()
	f.db.err = errors.New("connection refused")

	rec := f.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusUnhealthy, resp.Status)
	assert.Equal(t, healthStatusUnhealthy, resp.Checks["database"].Status)
	assert.Contains(t, resp.Checks["database"].Message, "connection refused")
}

func TestHealthDegradedWithoutWorkers(t *testing.T) {
	f := newServerFixture()
	f.jobs.stats = jobs.Stats{Workers: 0}

	rec := f.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code, "degraded still answers 200")

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusDegraded, resp.Status)
	assert.Equal(t, healthStatusDegraded, resp.Checks["job_runner"].Status)
}
