package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leapdash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultStatePath, cfg.StatePath)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.False(t, cfg.Verbose)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
state_path: /var/lib/leapdash/state.db
port: 9000
generator:
  api_key: sk-test
  model: gpt-4o
sandbox:
  timeout_ms: 2000
  max_memory_bytes: 16777216
connections:
  plausible:
    base_url: https://plausible.io
    headers:
      Authorization: Bearer abc
templates:
  - id: plausible-visitors
    provider: plausible
    endpoint: /api/v1/stats/timeseries
    params:
      period: 30d
    value_label: Visitors
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/leapdash/state.db", cfg.StatePath)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "sk-test", cfg.Generator.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Generator.Model)
	assert.Equal(t, path, GetConfigFileUsed())

	limits := cfg.Sandbox.Limits()
	assert.Equal(t, 2*time.Second, limits.Timeout)
	assert.Equal(t, int64(16777216), limits.MaxMemory)

	conns := cfg.FetcherConnections()
	require.Contains(t, conns, "plausible")
	assert.Equal(t, "https://plausible.io", conns["plausible"].BaseURL)
	assert.Equal(t, "Bearer abc", conns["plausible"].Headers["Authorization"])

	templates := cfg.CoreTemplates()
	require.Contains(t, templates, "plausible-visitors")
	tpl := templates["plausible-visitors"]
	assert.Equal(t, "plausible", tpl.ProviderID)
	assert.Equal(t, "plausible", tpl.ConnectionID, "connection defaults to provider")
	assert.Equal(t, "30d", tpl.Params["period"])
	assert.Equal(t, "Visitors", tpl.ValueLabel)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port: 9000\n")
	t.Setenv("LEAPDASH_PORT", "9100")
	t.Setenv("LEAPDASH_GENERATOR__API_KEY", "sk-env")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "sk-env", cfg.Generator.APIKey)
}

func TestLoad_FlagsWin(t *testing.T) {
	path := writeConfig(t, "port: 9000\n")
	t.Setenv("LEAPDASH_PORT", "9100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("state-path", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "9200", "--state-path", "custom.db"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Port, "flags override env and file")
	assert.Equal(t, "custom.db", cfg.StatePath)
}

func TestLoad_UnchangedFlagsIgnored(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port, "unset flags must not clobber defaults")
}
