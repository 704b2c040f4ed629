package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/newsloom/newsloom/pkg/models"
)

// fallbackMaxItems applies when neither the request nor the source
// descriptor names a per-job item cap.
const fallbackMaxItems = 10

// submitScrapeHandler handles POST /scrape/:source_kind. An empty body
// means all defaults.
func (s *Server) submitScrapeHandler(c *gin.Context) {
	kind, err := models.ParseSourceKind(c.Param("source_kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var req SubmitScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	job, err := s.deps.Jobs.Submit(kind, s.scrapeParams(kind, req))
	if err != nil {
		writeError(c, err)
		return
	}

	s.logger.Info("scrape job accepted", "job_id", job.JobID, "source_kind", kind)
	c.JSON(http.StatusAccepted, job)
}

// scrapeParams fills request gaps: omitted max_items uses the source
// descriptor's default, omitted toggles default to on.
func (s *Server) scrapeParams(kind models.SourceKind, req SubmitScrapeRequest) models.JobParams {
	params := models.JobParams{
		Filter:              req.Filter,
		EnableLLM:           true,
		EnableDeduplication: true,
	}
	if req.EnableLLM != nil {
		params.EnableLLM = *req.EnableLLM
	}
	if req.EnableDeduplication != nil {
		params.EnableDeduplication = *req.EnableDeduplication
	}

	switch {
	case req.MaxItems != nil:
		params.MaxItems = *req.MaxItems
	default:
		params.MaxItems = fallbackMaxItems
		if sc := s.cfg.Sources.ForKind(kind); sc != nil && sc.MaxItems > 0 {
			params.MaxItems = sc.MaxItems
		}
	}
	return params
}

// jobStatusHandler handles GET /scrape/status/:job_id.
func (s *Server) jobStatusHandler(c *gin.Context) {
	job, err := s.deps.Jobs.Get(c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// listJobsHandler handles GET /scrape/jobs.
func (s *Server) listJobsHandler(c *gin.Context) {
	limit, err := intQuery(c, "limit", 20)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	snapshot := s.deps.Jobs.Snapshot()
	c.JSON(http.StatusOK, JobListResponse{
		Total: snapshot.Pending + snapshot.Running + snapshot.Completed + snapshot.Failed,
		Jobs:  s.deps.Jobs.List(limit),
	})
}

// cleanupJobsHandler handles DELETE /scrape/jobs. Pending and running jobs
// survive.
func (s *Server) cleanupJobsHandler(c *gin.Context) {
	removed := s.deps.Jobs.Cleanup()
	snapshot := s.deps.Jobs.Snapshot()
	c.JSON(http.StatusOK, CleanupResponse{
		Removed:   removed,
		Remaining: snapshot.Pending + snapshot.Running + snapshot.Completed + snapshot.Failed,
	})
}
