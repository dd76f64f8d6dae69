package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPopulatesEverySection(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.Store.LocalPath)
	assert.NotEmpty(t, cfg.Store.VectorCachePath)
	assert.NotEmpty(t, cfg.LLM.SidecarURL)
	assert.Greater(t, cfg.LLM.RPMLimit, int64(0))
	assert.Greater(t, cfg.Fetch.MaxAttempts, 0)
	assert.Greater(t, cfg.Scheduler.WorkerPoolSize, 0)
	assert.Greater(t, cfg.Task.DefaultBudget, 0)
}

func TestApplyEnvOverridesTakesPrecedenceOverDefaults(t *testing.T) {
	for _, key := range []string{
		"LYRA_LLM_API_KEY", "LYRA_LLM_MODEL", "LYRA_EMBEDDING_API_KEY",
		"LYRA_FETCH_GITHUB_TOKEN", "LYRA_METADATA_CACHE_ADDR", "LYRA_FETCH_MAX_ATTEMPTS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	t.Setenv("LYRA_LLM_API_KEY", "test-key")
	t.Setenv("LYRA_EMBEDDING_API_KEY", "test-embed-key")
	t.Setenv("LYRA_FETCH_GITHUB_TOKEN", "ghp_test")
	t.Setenv("LYRA_METADATA_CACHE_ADDR", "localhost:6379")
	t.Setenv("LYRA_FETCH_MAX_ATTEMPTS", "7")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "test-embed-key", cfg.LLM.EmbeddingAPIKey)
	assert.Equal(t, "ghp_test", cfg.Fetch.GithubToken)
	assert.Equal(t, "localhost:6379", cfg.Fetch.MetadataCacheAddr)
	assert.Equal(t, 7, cfg.Fetch.MaxAttempts)
}

func TestExpandPathHandlesTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, home+"/lyra-data", expandPath("~/lyra-data"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
	assert.Equal(t, "", expandPath(""))
}
