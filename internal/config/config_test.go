package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60000, cfg.Orchestrator.DeadlineMs)
	assert.Equal(t, 0.0, cfg.LLM.Temperature)
	assert.Equal(t, "videos", cfg.Store.Table)
	assert.True(t, cfg.Orchestrator.EnableAnalytical)
	assert.True(t, cfg.Orchestrator.EnableSemantic)
	assert.Equal(t, 60*time.Second, cfg.Deadline())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trendscope.yaml")
	yamlDoc := `
server:
  port: 9001
llm:
  provider: anthropic
  model: claude-test
store:
  path: /data/videos.db
vector:
  adapter: milvus
  collection: clips
orchestrator:
  deadline_ms: 5000
  max_concurrent_requests: 2
  admission: block
  query_ceiling: 2000
  default_max_results: 10
  default_min_score: 0.3
  enable_analytical: true
  enable_semantic: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("LLM_MODEL", "claude-env")
	t.Setenv("VECTOR_DIM", "384")
	t.Setenv("ENABLE_SEMANTIC", "false")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-env", cfg.LLM.Model, "environment overrides yaml")
	assert.Equal(t, "clips", cfg.Vector.Collection)
	assert.Equal(t, 384, cfg.Vector.Dimension)
	assert.False(t, cfg.Orchestrator.EnableSemantic)
	assert.Equal(t, "block", cfg.Orchestrator.Admission)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Cache.Redis.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_BadEnvValues(t *testing.T) {
	t.Setenv("DEADLINE_MS", "soon")
	t.Setenv("ENABLE_ANALYTICAL", "maybe")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEADLINE_MS")
	assert.Contains(t, err.Error(), "ENABLE_ANALYTICAL")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.LLM.Provider = "bard"
	cfg.Vector.Adapter = "pgvector"
	cfg.Orchestrator.DeadlineMs = 500000
	cfg.Orchestrator.Admission = "queue"
	cfg.Orchestrator.EnableAnalytical = false
	cfg.Orchestrator.EnableSemantic = false

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"invalid server port",
		"invalid llm provider",
		"pgvector adapter requires a vector dsn",
		"deadline_ms must be between",
		"invalid admission mode",
		"at least one agent must be enabled",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestStoreDriver(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"data/trending.db", "sqlite3"},
		{"file:videos.db?cache=shared", "sqlite3"},
		{"postgres://u:p@localhost:5432/videos", "postgres"},
		{"postgresql://localhost/videos", "postgres"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Store.Path = tc.path
			assert.Equal(t, tc.want, cfg.StoreDriver())
		})
	}
}

func TestEmbeddingDefaultsToLLM(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Endpoint = "http://llm.local/v1"
	cfg.LLM.APIKey = "llm-key"
	assert.Equal(t, "http://llm.local/v1", cfg.EmbeddingEndpoint())
	assert.Equal(t, "llm-key", cfg.EmbeddingAPIKey())

	cfg.Embedding.Endpoint = "http://embed.local/v1"
	cfg.Embedding.APIKey = "embed-key"
	assert.Equal(t, "http://embed.local/v1", cfg.EmbeddingEndpoint())
	assert.Equal(t, "embed-key", cfg.EmbeddingAPIKey())
}

func TestSummary_OmitsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"
	for _, v := range cfg.Summary() {
		assert.NotEqual(t, "sk-secret", v)
	}
	assert.Equal(t, "memory", cfg.Summary()["vector_adapter"])
}

func TestResolveRelativePath(t *testing.T) {
	assert.Equal(t, "/etc/ts/data.db", ResolveRelativePath("/etc/ts/config.yaml", "data.db"))
	assert.Equal(t, "/abs/data.db", ResolveRelativePath("/etc/ts/config.yaml", "/abs/data.db"))
	assert.Equal(t, "postgres://h/db", ResolveRelativePath("/etc/ts/config.yaml", "postgres://h/db"))
}
