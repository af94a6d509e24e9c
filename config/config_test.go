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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "citysense.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 0.7, cfg.Model.Temperature)
	assert.Equal(t, "basic", cfg.Search.Depth)
	assert.Equal(t, 2*time.Minute, cfg.ResearchTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CITYSENSE_ADDR", ":9999")
	t.Setenv("CITYSENSE_MODEL_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("IPINFO_TOKEN", "ipinfo-test")
	t.Setenv("TAVILY_API_KEY", "tvly-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "sk-ant-test", cfg.Model.AnthropicAPIKey)
	assert.Equal(t, "ipinfo-test", cfg.Location.Token)
	assert.Equal(t, "tvly-test", cfg.Search.TavilyAPIKey)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"addr: \":7000\"\nmodel:\n  provider: openai\n  name: gpt-4o\nresearch_timeout: 30s\n",
	), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, 30*time.Second, cfg.ResearchTimeout)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
}

func TestValidate_RequiresProviderKey(t *testing.T) {
	cfg := &Config{Model: ModelConfig{Provider: "openai"}}
	require.Error(t, cfg.Validate())

	cfg.Model.OpenAIAPIKey = "sk-test"
	require.NoError(t, cfg.Validate())

	cfg.Model.Provider = "something-else"
	require.Error(t, cfg.Validate())
}
