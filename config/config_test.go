package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "cosine", cfg.Store.Metric)
	assert.Equal(t, 1000, cfg.Index.ChunkSize)
	assert.Equal(t, 200, cfg.Index.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, cfg.Ollama.Model, cfg.Ollama.EmbeddingModel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
store:
  type: chromem
  dimension: 384
index:
  chunk_size: 500
  chunk_overlap: 50
web_search:
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("OLLAMA_MODEL", "mistral")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "chromem", cfg.Store.Type)
	assert.Equal(t, 384, cfg.Store.Dimension)
	assert.Equal(t, 500, cfg.Index.ChunkSize)
	assert.Equal(t, 100, cfg.Index.ChunkOverlap)
	assert.Equal(t, 3*time.Second, cfg.WebSearch.Timeout)
	assert.Equal(t, "mistral", cfg.Ollama.EmbeddingModel)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CHUNK_SIZE", "large")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"unknown store", func(c *AppConfig) { c.Store.Type = "redis" }},
		{"unknown metric", func(c *AppConfig) { c.Store.Metric = "manhattan" }},
		{"chromem euclidean", func(c *AppConfig) { c.Store.Type = "chromem"; c.Store.Metric = "euclidean" }},
		{"postgres without dimension", func(c *AppConfig) { c.Store.Type = "postgres"; c.Store.Dimension = 0 }},
		{"chromem without dimension", func(c *AppConfig) { c.Store.Type = "chromem"; c.Store.Dimension = 0 }},
		{"zero chunk size", func(c *AppConfig) { c.Index.ChunkSize = 0 }},
		{"overlap equals size", func(c *AppConfig) { c.Index.ChunkOverlap = c.Index.ChunkSize }},
		{"negative overlap", func(c *AppConfig) { c.Index.ChunkOverlap = -1 }},
		{"zero top k", func(c *AppConfig) { c.Retrieval.TopK = 0 }},
		{"missing model", func(c *AppConfig) { c.Ollama.Model = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, Default().Validate())
}
