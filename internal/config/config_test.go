package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 6, cfg.Scraper.Concurrency)
	require.Equal(t, 100, cfg.Scraper.MaxBatchSize)
	require.Equal(t, 30, cfg.Extract.EmailLimit)
	require.Equal(t, "local", cfg.Export.Backend)
	require.False(t, cfg.Headless.Enabled)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
scraper:
  concurrency: 12
headless:
  enabled: true
  max_parallel: 4
extract:
  email_limit: 10
  disposable_domains:
    - mailinator.com
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 12, cfg.Scraper.Concurrency)
	require.True(t, cfg.Headless.Enabled)
	require.Equal(t, 4, cfg.Headless.MaxParallel)
	require.Equal(t, 10, cfg.Extract.EmailLimit)
	require.Equal(t, []string{"mailinator.com"}, cfg.Extract.DisposableDomains)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MAILSIFT_SERVER_PORT", "7070")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	cfg := base
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.Auth.Enabled = true
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.Export.Backend = "s3"
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.Export.Backend = "gcs"
	require.Error(t, cfg.Validate(), "gcs backend needs a bucket")

	cfg = base
	cfg.PubSub.TopicName = "job-outcomes"
	require.Error(t, cfg.Validate(), "topic needs a project")

	cfg = base
	cfg.Headless.Enabled = true
	cfg.Headless.MaxParallel = 0
	require.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
