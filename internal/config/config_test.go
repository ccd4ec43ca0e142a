package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConsoleConfigLayering(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeProfile(t, "base_url: http://gpu-box:8000/api\ntimeout: 30s\n")

	cfg, err := LoadConsoleConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:8000/api", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "info", cfg.LogLevel)

	t.Setenv("FINETUNE_API_URL", "http://override/api")
	cfg, err = LoadConsoleConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override/api", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestConsoleConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConsoleConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Zero(t, cfg.Timeout)

	t.Setenv("FINETUNE_TIMEOUT", "90s")
	cfg, err = LoadConsoleConfig("")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
}

func TestConsoleConfigErrors(t *testing.T) {
	_, err := LoadConsoleConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConsoleConfig(writeProfile(t, "base_url: [\n"))
	assert.Error(t, err)

	_, err = LoadConsoleConfig(writeProfile(t, "unknown_key: 1\n"))
	assert.Error(t, err)
}

func TestServerConfig(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "local", cfg.StorageType)

	t.Setenv("QUEUE_TYPE", "kafka")
	_, err = LoadServerConfig()
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(""))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FINETUNE_TEST_VALUE=42\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FINETUNE_TEST_VALUE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "42", os.Getenv("FINETUNE_TEST_VALUE"))

	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}
