package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/newsloom/newsloom/pkg/models"
)

// Initialize loads, validates, and returns the ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Resolve environment-driven settings (HTTP, LLM, vector, redis, pipeline)
//  2. Load sources.yaml and editorial.yaml from configDir (both optional)
//  3. Expand {{.VAR}} environment templates in the YAML content
//  4. Merge user documents over built-in defaults
//  5. Validate the result
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"sources", len(cfg.Sources.Sources),
		"similarity_threshold", cfg.Pipeline.SimilarityThreshold,
		"max_parallel_tasks", cfg.Pipeline.MaxParallelTasks)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	sources, err := loader.loadSourcesYAML()
	if err != nil {
		return nil, NewLoadError("sources.yaml", err)
	}

	editorial, err := loader.loadEditorialYAML()
	if err != nil {
		return nil, NewLoadError("editorial.yaml", err)
	}

	return &Config{
		configDir: configDir,
		HTTP:      resolveHTTPConfig(),
		LLM:       resolveLLMConfig(),
		Vector:    resolveVectorConfig(),
		Redis:     resolveRedisConfig(),
		Pipeline:  resolvePipelineConfig(),
		Sources:   sources,
		Editorial: editorial,
	}, nil
}

type configLoader struct {
	configDir string
}

// loadSourcesYAML reads sources.yaml and merges it over the built-in
// descriptor. A missing file yields the defaults unchanged.
func (l *configLoader) loadSourcesYAML() (*SourcesConfig, error) {
	merged := defaultSources()

	data, ok, err := l.readFile("sources.yaml")
	if err != nil {
		return nil, err
	}
	if !ok {
		return merged, nil
	}

	var user SourcesConfig
	if err := yaml.Unmarshal(ExpandEnv(data), &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	for kind, sc := range user.Sources {
		if !kind.Valid() {
			return nil, NewValidationError("sources", string(kind), fmt.Errorf("%w: unknown source kind", ErrInvalidValue))
		}
		base, exists := merged.Sources[kind]
		if !exists {
			merged.Sources[kind] = sc
			continue
		}
		// User values override built-ins; unset fields keep defaults.
		if err := mergo.Merge(base, sc, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge source %s: %w", kind, err)
		}
	}
	return merged, nil
}

// loadEditorialYAML reads editorial.yaml and merges it over the built-in
// prompt document.
func (l *configLoader) loadEditorialYAML() (*EditorialConfig, error) {
	merged := defaultEditorial()

	data, ok, err := l.readFile("editorial.yaml")
	if err != nil {
		return nil, err
	}
	if !ok {
		return merged, nil
	}

	var user EditorialConfig
	if err := yaml.Unmarshal(ExpandEnv(data), &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := mergo.Merge(merged, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge editorial config: %w", err)
	}
	return merged, nil
}

// readFile reads a file from the config directory. The second return value
// reports whether the file exists.
func (l *configLoader) readFile(name string) ([]byte, bool, error) {
	path := filepath.Join(l.configDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("Config file absent, using built-in defaults", "file", name)
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func resolveHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:            getEnv("HTTP_ADDR", ":8000"),
		ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}

func resolveLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:        getEnv("OLLAMA_BASE_URL", "http://ollama:11434"),
		Model:          getEnv("OLLAMA_MODEL", "gpt-oss:20b"),
		EmbedModel:     getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		EmbeddingDim:   getEnvInt("EMBEDDING_DIM", 768),
		RequestTimeout: getEnvDuration("LLM_REQUEST_TIMEOUT", 120*time.Second),
		EmbedTimeout:   getEnvDuration("LLM_EMBED_TIMEOUT", 30*time.Second),
		HealthTimeout:  getEnvDuration("LLM_HEALTH_TIMEOUT", 5*time.Second),
		MaxRetries:     getEnvInt("LLM_MAX_RETRIES", 3),
		ContextWindow:  getEnvInt("LLM_CONTEXT_WINDOW", 8192),
		EmbedCharLimit: getEnvInt("LLM_EMBED_CHAR_LIMIT", 8000),
	}
}

func resolveVectorConfig() VectorConfig {
	return VectorConfig{
		Addr: getEnv("QDRANT_ADDR", "qdrant:6334"),
	}
}

func resolveRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", "redis:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

func resolvePipelineConfig() PipelineConfig {
	return PipelineConfig{
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.95),
		MinContentLength:    getEnvInt("MIN_CONTENT_LENGTH", 50),
		MaxParallelTasks:    getEnvInt("MAX_PARALLEL_TASKS", 1),
		RunnerWorkers:       getEnvInt("RUNNER_WORKERS", 2),
		MaxItemsCap:         getEnvInt("MAX_ITEMS_CAP", 100),
		MaxLogs:             getEnvInt("MAX_LOGS", 1000),
		LogDir:              getEnv("LOG_DIR", "./data"),
	}
}

// validate performs cross-field validation on the loaded configuration.
func validate(cfg *Config) error {
	if cfg.Pipeline.SimilarityThreshold <= 0 || cfg.Pipeline.SimilarityThreshold > 1 {
		return NewValidationError("pipeline", "similarity_threshold",
			fmt.Errorf("%w: must be in (0, 1], got %v", ErrInvalidValue, cfg.Pipeline.SimilarityThreshold))
	}
	if cfg.Pipeline.MinContentLength < 0 {
		return NewValidationError("pipeline", "min_content_length",
			fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
	}
	if cfg.Pipeline.MaxParallelTasks < 1 {
		return NewValidationError("pipeline", "max_parallel_tasks",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if cfg.Pipeline.RunnerWorkers < 1 {
		return NewValidationError("pipeline", "runner_workers",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if cfg.LLM.EmbeddingDim < 1 {
		return NewValidationError("llm", "embedding_dim",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	for _, kind := range models.AllSourceKinds {
		sc := cfg.Sources.ForKind(kind)
		if sc == nil {
			return NewValidationError("sources", string(kind), ErrMissingRequiredField)
		}
		if sc.BaseURL == "" {
			return NewValidationError("sources", string(kind)+".base_url", ErrMissingRequiredField)
		}
		if sc.RequestsPerSecond <= 0 {
			return NewValidationError("sources", string(kind)+".requests_per_second",
				fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}
	if cfg.Editorial.Role == "" {
		return NewValidationError("editorial", "role", ErrMissingRequiredField)
	}
	if len(cfg.Editorial.Pipeline) == 0 {
		return NewValidationError("editorial", "pipeline", ErrMissingRequiredField)
	}
	if cfg.Editorial.ShortForm.MaxChars <= 0 || cfg.Editorial.ShortForm.MaxChars > models.MaxShortFormChars {
		return NewValidationError("editorial", "short_form.max_chars",
			fmt.Errorf("%w: must be in (0, %d]", ErrInvalidValue, models.MaxShortFormChars))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("Invalid float in environment, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration in environment, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}
