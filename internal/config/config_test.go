package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.Remote.Timeout)
	assert.Equal(t, 4, cfg.Remote.Concurrency)
	assert.Equal(t, 3, cfg.Remote.Retries)
	assert.True(t, cfg.Content.Compression.Enabled)
	assert.Empty(t, cfg.Remote.URL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	data := []byte("log_level: debug\nremote:\n  url: s3://bucket/repo\n  timeout: 30s\n  concurrency: 8\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "s3://bucket/repo", cfg.Remote.URL)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 8, cfg.Remote.Concurrency)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DRIFT_REMOTE_URL", "mem://env")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "mem://env", cfg.Remote.URL)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  concurrency: 0\n"), 0644))

	_, err := Load(NewViper(), path)
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0644))

	require.NoError(t, Set(path, "remote.url", "file:///tmp/remote"))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/remote", cfg.Remote.URL)
	assert.Equal(t, "info", cfg.LogLevel)
}
