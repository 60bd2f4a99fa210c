// Package config provides unified configuration loading for trendscope.
// Supports YAML files, .env files, environment variables and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for trendscope.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Store         StoreConfig         `yaml:"store"`
	Vector        VectorConfig        `yaml:"vector"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Cache         CacheConfig         `yaml:"cache"`
	Router        RouterConfig        `yaml:"router"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai, anthropic or none
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StoreConfig holds relational store settings. A path starting with
// postgres:// or postgresql:// selects Postgres, anything else is a SQLite file.
type StoreConfig struct {
	Path         string `yaml:"path"`
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	Adapter    string `yaml:"adapter"` // memory, milvus or pgvector
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
	DSN        string `yaml:"dsn"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Model     string        `yaml:"model"`
	Endpoint  string        `yaml:"endpoint"`
	APIKey    string        `yaml:"api_key"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver       string        `yaml:"driver"` // memory or redis
	RouteTTL     time.Duration `yaml:"route_ttl"`
	EmbeddingTTL time.Duration `yaml:"embedding_ttl"`
	MaxEntries   int           `yaml:"max_entries"`
	Redis        RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// RouterConfig tunes the keyword fallback classifier.
type RouterConfig struct {
	FallbackConfidence   float64 `yaml:"fallback_confidence"`
	ShortQueryConfidence float64 `yaml:"short_query_confidence"`
	ShortQueryTokens     int     `yaml:"short_query_tokens"`
}

// OrchestratorConfig holds request handling limits.
type OrchestratorConfig struct {
	DeadlineMs            int     `yaml:"deadline_ms"`
	MaxConcurrentRequests int     `yaml:"max_concurrent_requests"`
	Admission             string  `yaml:"admission"` // reject or block
	QueryCeiling          int     `yaml:"query_ceiling"`
	DefaultMaxResults     int     `yaml:"default_max_results"`
	DefaultMinScore       float64 `yaml:"default_min_score"`
	EnableAnalytical      bool    `yaml:"enable_analytical"`
	EnableSemantic        bool    `yaml:"enable_semantic"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file, then .env, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Existing environment variables win over .env entries.
	_ = godotenv.Load()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     130 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Endpoint:    "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0,
			MaxTokens:   1024,
			Timeout:     30 * time.Second,
		},
		Store: StoreConfig{
			Path:         "data/trending.db",
			Table:        "videos",
			MaxOpenConns: 4,
		},
		Vector: VectorConfig{
			Adapter:    "memory",
			Host:       "localhost",
			Port:       19530,
			Collection: "trending_videos",
			Dimension:  1536,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			BatchSize: 100,
			Timeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			Driver:       "memory",
			RouteTTL:     0,
			EmbeddingTTL: time.Hour,
			MaxEntries:   10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "ts:",
			},
		},
		Router: RouterConfig{
			FallbackConfidence:   0.55,
			ShortQueryConfidence: 0.3,
			ShortQueryTokens:     3,
		},
		Orchestrator: OrchestratorConfig{
			DeadlineMs:            60000,
			MaxConcurrentRequests: 16,
			Admission:             "reject",
			QueryCeiling:          2000,
			DefaultMaxResults:     10,
			DefaultMinScore:       0.3,
			EnableAnalytical:      true,
			EnableSemantic:        true,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "trendscope",
		},
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}

	switch c.LLM.Provider {
	case "openai", "anthropic", "none":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid llm provider: %s", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		result = multierror.Append(result, fmt.Errorf("llm temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}

	if c.Store.Path == "" {
		result = multierror.Append(result, fmt.Errorf("relational store path is required"))
	}
	if c.Store.Table == "" {
		result = multierror.Append(result, fmt.Errorf("relational table is required"))
	}

	switch c.Vector.Adapter {
	case "memory", "milvus":
	case "pgvector":
		if c.Vector.DSN == "" {
			result = multierror.Append(result, fmt.Errorf("pgvector adapter requires a vector dsn"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("invalid vector adapter: %s", c.Vector.Adapter))
	}
	if c.Vector.Dimension < 1 {
		result = multierror.Append(result, fmt.Errorf("vector dimension must be positive"))
	}

	if c.Embedding.BatchSize < 1 {
		result = multierror.Append(result, fmt.Errorf("embedding batch size must be positive"))
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		result = multierror.Append(result, fmt.Errorf("invalid cache driver: %s", c.Cache.Driver))
	}

	if c.Router.FallbackConfidence < 0 || c.Router.FallbackConfidence > 1 {
		result = multierror.Append(result, fmt.Errorf("router fallback confidence must be in [0,1]"))
	}

	o := c.Orchestrator
	if o.DeadlineMs < 1 || o.DeadlineMs > 120000 {
		result = multierror.Append(result, fmt.Errorf("deadline_ms must be between 1 and 120000, got %d", o.DeadlineMs))
	}
	if o.MaxConcurrentRequests < 1 {
		result = multierror.Append(result, fmt.Errorf("max_concurrent_requests must be positive"))
	}
	if o.Admission != "reject" && o.Admission != "block" {
		result = multierror.Append(result, fmt.Errorf("invalid admission mode: %s", o.Admission))
	}
	if o.QueryCeiling < 1 {
		result = multierror.Append(result, fmt.Errorf("query_ceiling must be positive"))
	}
	if o.DefaultMaxResults < 1 || o.DefaultMaxResults > 100 {
		result = multierror.Append(result, fmt.Errorf("default_max_results must be between 1 and 100"))
	}
	if o.DefaultMinScore < 0 || o.DefaultMinScore > 1 {
		result = multierror.Append(result, fmt.Errorf("default_min_score must be in [0,1]"))
	}
	if !o.EnableAnalytical && !o.EnableSemantic {
		result = multierror.Append(result, fmt.Errorf("at least one agent must be enabled"))
	}

	return result.ErrorOrNil()
}

// StoreDriver returns the database/sql driver implied by the store path.
func (c *Config) StoreDriver() string {
	p := strings.ToLower(c.Store.Path)
	if strings.HasPrefix(p, "postgres://") || strings.HasPrefix(p, "postgresql://") {
		return "postgres"
	}
	return "sqlite3"
}

// VectorAddress returns host:port of the vector index service.
func (c *Config) VectorAddress() string {
	return fmt.Sprintf("%s:%d", c.Vector.Host, c.Vector.Port)
}

// EmbeddingEndpoint returns the embedding base URL, defaulting to the LLM endpoint.
func (c *Config) EmbeddingEndpoint() string {
	if c.Embedding.Endpoint != "" {
		return c.Embedding.Endpoint
	}
	return c.LLM.Endpoint
}

// EmbeddingAPIKey returns the embedding key, defaulting to the LLM key.
func (c *Config) EmbeddingAPIKey() string {
	if c.Embedding.APIKey != "" {
		return c.Embedding.APIKey
	}
	return c.LLM.APIKey
}

// Deadline returns the default per-request deadline.
func (c *Config) Deadline() time.Duration {
	return time.Duration(c.Orchestrator.DeadlineMs) * time.Millisecond
}

// Summary returns configuration values that are safe to expose; secrets are omitted.
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"llm_provider":            c.LLM.Provider,
		"llm_model":               c.LLM.Model,
		"llm_temperature":         c.LLM.Temperature,
		"relational_driver":       c.StoreDriver(),
		"relational_table":        c.Store.Table,
		"vector_adapter":          c.Vector.Adapter,
		"vector_collection":       c.Vector.Collection,
		"vector_dim":              c.Vector.Dimension,
		"embedding_model":         c.Embedding.Model,
		"deadline_ms":             c.Orchestrator.DeadlineMs,
		"max_concurrent_requests": c.Orchestrator.MaxConcurrentRequests,
		"admission":               c.Orchestrator.Admission,
		"enable_analytical":       c.Orchestrator.EnableAnalytical,
		"enable_semantic":         c.Orchestrator.EnableSemantic,
		"cache_driver":            c.Cache.Driver,
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	var result *multierror.Error
	collect := func(err error) {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	setString("SERVER_HOST", &cfg.Server.Host)
	collect(setInt("SERVER_PORT", &cfg.Server.Port))

	setString("LLM_PROVIDER", &cfg.LLM.Provider)
	setString("LLM_ENDPOINT", &cfg.LLM.Endpoint)
	setString("LLM_MODEL", &cfg.LLM.Model)
	setString("LLM_API_KEY", &cfg.LLM.APIKey)
	collect(setFloat("LLM_TEMPERATURE", &cfg.LLM.Temperature))

	setString("RELATIONAL_STORE_PATH", &cfg.Store.Path)
	setString("RELATIONAL_TABLE", &cfg.Store.Table)

	setString("VECTOR_ADAPTER", &cfg.Vector.Adapter)
	setString("VECTOR_INDEX_HOST", &cfg.Vector.Host)
	collect(setInt("VECTOR_INDEX_PORT", &cfg.Vector.Port))
	setString("VECTOR_COLLECTION", &cfg.Vector.Collection)
	collect(setInt("VECTOR_DIM", &cfg.Vector.Dimension))
	setString("VECTOR_DSN", &cfg.Vector.DSN)

	setString("EMBEDDING_MODEL", &cfg.Embedding.Model)
	setString("EMBEDDING_ENDPOINT", &cfg.Embedding.Endpoint)
	setString("EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	collect(setInt("EMBEDDING_BATCH_SIZE", &cfg.Embedding.BatchSize))

	collect(setInt("DEADLINE_MS", &cfg.Orchestrator.DeadlineMs))
	collect(setInt("MAX_CONCURRENT_REQUESTS", &cfg.Orchestrator.MaxConcurrentRequests))
	setString("ADMISSION_MODE", &cfg.Orchestrator.Admission)
	collect(setBool("ENABLE_ANALYTICAL", &cfg.Orchestrator.EnableAnalytical))
	collect(setBool("ENABLE_SEMANTIC", &cfg.Orchestrator.EnableSemantic))

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.URL = v
	}

	setString("LOG_LEVEL", &cfg.Observability.LogLevel)
	setString("LOG_FORMAT", &cfg.Observability.LogFormat)

	return result.ErrorOrNil()
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func setFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %q is not a number", key, v)
	}
	*dst = f
	return nil
}

func setBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	*dst = b
	return nil
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) || strings.Contains(targetPath, "://") {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
