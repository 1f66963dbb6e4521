package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"modelmap/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	require.NoError(t, Load(missing))

	assert.Equal(t, "3000", AppConfig.Server.Port)
	assert.Equal(t, 100, AppConfig.Upstream.PageSize)
	assert.Equal(t, 30*time.Second, AppConfig.Upstream.Timeout)
	assert.Equal(t, 8, AppConfig.Upstream.FetchConcurrency)
	assert.Equal(t, 500*time.Millisecond, AppConfig.Sync.SaveDebounce)
	assert.Equal(t, "modelmap", AppConfig.Broker.TopicPrefix)
	assert.Equal(t, "INFO", AppConfig.Logging.Level)
	assert.Equal(t, GetDefaultConfigPaths().DBPath, AppConfig.Database.Path)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/modelmap/rules.db
server:
  port: "8080"
upstream:
  base_url: https://gw.example.com
  token: from-file
  user_id: "1"
  timeout: 5s
sync:
  save_debounce: 2s
logging:
  level: DEBUG
`), 0600))
	t.Setenv("MODELMAP_UPSTREAM_TOKEN", "from-env")

	require.NoError(t, Load(path))

	assert.Equal(t, "/var/lib/modelmap/rules.db", AppConfig.Database.Path)
	assert.Equal(t, "8080", AppConfig.Server.Port)
	assert.Equal(t, 5*time.Second, AppConfig.Upstream.Timeout)
	assert.Equal(t, 2*time.Second, AppConfig.Sync.SaveDebounce)
	assert.Equal(t, "DEBUG", AppConfig.Logging.Level)
	assert.Equal(t, models.UpstreamConfig{
		BaseURL: "https://gw.example.com",
		Token:   "from-env",
		UserID:  "1",
	}, AppConfig.UpstreamSettings())
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandTilde("~/modelmap.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "modelmap.db"), got)

	got, err = ExpandTilde("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}
