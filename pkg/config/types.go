// Package config loads and validates the process configuration: environment
// settings, the per-source descriptor file (sources.yaml), and the editorial
// prompt document (editorial.yaml).
package config

import (
	"time"

	"github.com/newsloom/newsloom/pkg/models"
)

// Config is the complete, immutable process configuration. It is built once
// at startup by Initialize and passed by handle into components.
type Config struct {
	configDir string

	HTTP      HTTPConfig
	LLM       LLMConfig
	Vector    VectorConfig
	Redis     RedisConfig
	Pipeline  PipelineConfig
	Sources   *SourcesConfig
	Editorial *EditorialConfig
}

// ConfigDir returns the directory the YAML documents were loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// HTTPConfig holds the REST server settings.
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LLMConfig holds the generation/embedding backend settings.
type LLMConfig struct {
	BaseURL        string
	Model          string
	EmbedModel     string
	EmbeddingDim   int
	RequestTimeout time.Duration
	EmbedTimeout   time.Duration
	HealthTimeout  time.Duration
	MaxRetries     int
	ContextWindow  int
	EmbedCharLimit int
}

// VectorConfig holds the vector index settings.
type VectorConfig struct {
	Addr string
}

// RedisConfig holds the remote log store settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PipelineConfig holds orchestrator-wide tunables.
type PipelineConfig struct {
	// SimilarityThreshold is τ: cosine similarity at or above which an item
	// counts as a semantic duplicate of an existing point.
	SimilarityThreshold float64
	// MinContentLength gates dedup+editorial: items whose title+body is
	// shorter are saved raw and skipped.
	MinContentLength int
	// MaxParallelTasks bounds the editorial worker pool per job.
	MaxParallelTasks int
	// RunnerWorkers bounds how many jobs execute at once; further jobs wait
	// in pending.
	RunnerWorkers int
	// MaxItemsCap is the upper bound accepted for a job's max_items.
	MaxItemsCap int
	// MaxLogs caps the retained log entries (most recent kept).
	MaxLogs int
	// LogDir is where the file-backed log store writes.
	LogDir string
}

// SourceConfig describes one ingestion source.
type SourceConfig struct {
	BaseURL string `yaml:"base_url"`
	// Filters is the default hub/tag/channel/subreddit list used when a job
	// does not supply its own.
	Filters []string `yaml:"filters"`
	// RequestsPerSecond paces driver HTTP calls (token bucket).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// MaxItems is the default per-job item cap for this source.
	MaxItems int `yaml:"max_items"`
	// FetchFullContent makes the driver follow item links and extract the
	// article body from HTML (tech/blog sources).
	FetchFullContent bool `yaml:"fetch_full_content"`
	// UserAgents, when non-empty, is rotated across requests.
	UserAgents []string `yaml:"user_agents"`
}

// SourcesConfig is the parsed sources.yaml document.
type SourcesConfig struct {
	Sources map[models.SourceKind]*SourceConfig `yaml:"sources"`
}

// ForKind returns the descriptor for a source kind, or nil when absent.
func (s *SourcesConfig) ForKind(kind models.SourceKind) *SourceConfig {
	if s == nil {
		return nil
	}
	return s.Sources[kind]
}

// EditorialDefaults fill missing fields in relevant editorial verdicts.
type EditorialDefaults struct {
	RelevanceReason string `yaml:"relevance_reason"`
	Title           string `yaml:"title"`
	Teaser          string `yaml:"teaser"`
	ImagePrompt     string `yaml:"image_prompt"`
}

// ShortFormPrompt configures the short-form rendering call.
type ShortFormPrompt struct {
	Role     string `yaml:"role"`
	MaxChars int    `yaml:"max_chars"`
}

// EditorialConfig is the parsed editorial.yaml document: the role, objective
// and numbered pipeline are composed into the system prompt; defaults repair
// incomplete model output.
type EditorialConfig struct {
	Role      string            `yaml:"role"`
	Objective string            `yaml:"objective"`
	Pipeline  []string          `yaml:"pipeline"`
	Defaults  EditorialDefaults `yaml:"defaults"`
	ShortForm ShortFormPrompt   `yaml:"short_form"`
}
