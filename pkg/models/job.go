package models

import (
	"time"
)

// JobState tracks a scrape job through its lifecycle. Terminal states
// (completed, failed) are immutable once set.
type JobState string

// Job lifecycle states.
const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobParams are the validated parameters of a scrape job.
type JobParams struct {
	MaxItems            int      `json:"max_items"`
	Filter              []string `json:"filter,omitempty"`
	EnableLLM           bool     `json:"enable_llm"`
	EnableDeduplication bool     `json:"enable_deduplication"`
}

// Job is one unit of orchestrator work. Jobs are process-local: they live
// in memory, are polled by job_id, and are lost on restart.
type Job struct {
	JobID       string         `json:"job_id"`
	SourceKind  SourceKind     `json:"source_kind"`
	Params      JobParams      `json:"params"`
	State       JobState       `json:"state"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// RunCounters accumulate per-run outcomes. All counters are strictly
// monotone within a run.
type RunCounters struct {
	Saved              int `json:"saved"`
	Skipped            int `json:"skipped"`
	SemanticDuplicates int `json:"semantic_duplicates"`
	EditorialProcessed int `json:"editorial_processed"`
	Errors             int `json:"errors"`
	Blocked            int `json:"blocked,omitempty"`
	RSSUsed            int `json:"rss_used,omitempty"`
}

// AsMap renders the counters as a job result mapping.
func (c RunCounters) AsMap() map[string]any {
	m := map[string]any{
		"saved":               c.Saved,
		"skipped":             c.Skipped,
		"semantic_duplicates": c.SemanticDuplicates,
		"editorial_processed": c.EditorialProcessed,
		"errors":              c.Errors,
	}
	if c.Blocked > 0 {
		m["blocked"] = c.Blocked
	}
	if c.RSSUsed > 0 {
		m["rss_used"] = c.RSSUsed
	}
	return m
}
