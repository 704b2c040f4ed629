package api

import (
	"time"

	"github.com/newsloom/newsloom/pkg/models"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JobListResponse is returned by GET /scrape/jobs. Total counts every job
// in the table; Jobs carries the newest page.
type JobListResponse struct {
	Total int           `json:"total"`
	Jobs  []*models.Job `json:"jobs"`
}

// CleanupResponse is returned by DELETE /scrape/jobs.
type CleanupResponse struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// RecordView pairs a raw item with its editorial artifacts when the caller
// asks for the processed join.
type RecordView struct {
	Raw       *models.RawItem       `json:"raw"`
	Processed *models.ProcessedItem `json:"processed,omitempty"`
	ShortForm *models.ShortFormItem `json:"short_form,omitempty"`
}

// RecordsResponse is returned by GET /:source/records.
type RecordsResponse struct {
	SourceKind models.SourceKind `json:"source_kind"`
	Count      int               `json:"count"`
	Records    []RecordView      `json:"records"`
}

// ComparisonSide is one half of a raw-vs-editorial pair. Previews are
// truncated; lengths count the full text.
type ComparisonSide struct {
	Title          string `json:"title"`
	ContentPreview string `json:"content_preview"`
	ContentLength  int    `json:"content_length"`
	Author         string `json:"author,omitempty"`
	Teaser         string `json:"teaser,omitempty"`
	ImagePrompt    string `json:"image_prompt,omitempty"`
}

// ComparisonItem is one raw item with its editorial counterpart and the
// word-overlap similarity between the two.
type ComparisonItem struct {
	SourceID          string          `json:"source_id"`
	URL               string          `json:"url"`
	FetchedAt         time.Time       `json:"fetched_at"`
	IsProcessed       bool            `json:"is_processed"`
	IsRelevant        *bool           `json:"is_relevant,omitempty"`
	RelevanceScore    *float64        `json:"relevance_score,omitempty"`
	Original          ComparisonSide  `json:"original"`
	Processed         *ComparisonSide `json:"processed,omitempty"`
	TitleSimilarity   *float64        `json:"title_similarity,omitempty"`
	ContentSimilarity *float64        `json:"content_similarity,omitempty"`
}

// ComparisonStats aggregates a comparison page.
type ComparisonStats struct {
	Total                int     `json:"total"`
	Processed            int     `json:"processed"`
	AvgTitleSimilarity   float64 `json:"avg_title_similarity"`
	AvgContentSimilarity float64 `json:"avg_content_similarity"`
}

// ComparisonResponse is returned by GET /comparison.
type ComparisonResponse struct {
	Source    models.SourceKind `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Items     []ComparisonItem  `json:"items"`
	Stats     ComparisonStats   `json:"stats"`
}

// HealthCheck is one component probe inside the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Checks    map[string]HealthCheck `json:"checks,omitempty"`
}

// ClearLogsResponse is returned by DELETE /logs.
type ClearLogsResponse struct {
	Removed int `json:"removed"`
}

// SessionsResponse is returned by GET /logs/sessions.
type SessionsResponse struct {
	Sessions []models.Session `json:"sessions"`
}
