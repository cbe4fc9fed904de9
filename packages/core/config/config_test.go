package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.TimeoutDuration())
	assert.Zero(t, cfg.ScriptTimeoutDuration())
	assert.True(t, cfg.GetFollowRedirects())
	assert.True(t, cfg.GetValidateSSL())
	assert.False(t, cfg.GetStrictVariables())
	assert.Equal(t, filepath.Join(".reqly", "history.db"), cfg.HistoryPath)
}

func TestGetters_NilDefaults(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.GetFollowRedirects())
	assert.True(t, cfg.GetValidateSSL())
	assert.False(t, cfg.GetStrictVariables())
	assert.False(t, cfg.GetVerbose())
	assert.False(t, cfg.GetNoColor())
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".reqlyrc")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "timeout": 5000,
  "scriptTimeout": 250,
  "validateSSL": false,
  "relayUrl": "http://127.0.0.1:8765/proxy",
  "headers": {"X-Client": "reqly"}
}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.TimeoutDuration())
	assert.Equal(t, 250*time.Millisecond, cfg.ScriptTimeoutDuration())
	assert.False(t, cfg.GetValidateSSL())
	assert.True(t, cfg.GetFollowRedirects())
	assert.Equal(t, "http://127.0.0.1:8765/proxy", cfg.RelayURL)
	assert.Equal(t, 10, cfg.MaxRedirects)
	// viper folds map keys to lower case; header names are case-insensitive.
	assert.Equal(t, map[string]string{"x-client": "reqly"}, cfg.Headers)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("REQLY_TIMEOUT", "1500")
	t.Setenv("REQLY_STRICT_VARIABLES", "true")
	t.Setenv("REQLY_RELAY_API_KEY", "secret")

	cfg, err := load("")
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.Timeout)
	assert.True(t, cfg.GetStrictVariables())
	assert.Equal(t, "secret", cfg.RelayAPIKey)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "reqly.config.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, FindConfigFile(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".reqlyrc.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reqly.config.json"), []byte(`{}`), 0644))
	assert.Equal(t, filepath.Join(dir, "reqly.config.json"), FindConfigFile(dir))
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Headers = map[string]string{"A": "1", "B": "2"}

	merged := base.Merge(&Config{
		Timeout:     100,
		ValidateSSL: BoolPtr(false),
		Headers:     map[string]string{"B": "3"},
	})

	assert.Equal(t, 100, merged.Timeout)
	assert.False(t, merged.GetValidateSSL())
	assert.True(t, merged.GetFollowRedirects())
	assert.Equal(t, map[string]string{"A": "1", "B": "3"}, merged.Headers)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, base.Headers)
	assert.Same(t, base, base.Merge(nil))
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reqly.config.json")
	cfg := DefaultConfig()
	cfg.RelayURL = "http://relay"
	require.NoError(t, cfg.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://relay", loaded.RelayURL)
}
