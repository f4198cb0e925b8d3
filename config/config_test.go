package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productinfo/stitch-js-sdk/config"
	"github.com/productinfo/stitch-js-sdk/storage"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stitch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 300*time.Second, cfg.ExpirationWindow)
	assert.Equal(t, config.BackendBolt, cfg.Storage.Backend)
	assert.Error(t, cfg.Validate(), "app id has no default")
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
app_id: from-file
base_url: https://stitch.example.com
refresh_interval: 30s
log_level: debug
storage:
  backend: sqlite
  path: /tmp/sessions.sqlite
`)
	t.Setenv("STITCH_APP_ID", "from-env")
	t.Setenv("STITCH_STORAGE_BACKEND", "memory")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AppID)
	assert.Equal(t, "https://stitch.example.com", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 300*time.Second, cfg.ExpirationWindow, "unset values keep their defaults")
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/sessions.sqlite", cfg.Storage.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "app_id: [unterminated"))
	assert.Error(t, err)

	t.Setenv("STITCH_REFRESH_INTERVAL", "soon")
	_, err = config.Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := config.Default()
	valid.AppID = "app-1"
	require.NoError(t, valid.Validate())

	cases := map[string]func(c *config.Config){
		"unknown backend":    func(c *config.Config) { c.Storage.Backend = "redis" },
		"missing path":       func(c *config.Config) { c.Storage.Path = "" },
		"postgres needs dsn": func(c *config.Config) { c.Storage.Backend = config.BackendPostgres },
		"zero interval":      func(c *config.Config) { c.RefreshInterval = 0 },
		"negative window":    func(c *config.Config) { c.ExpirationWindow = -time.Second },
		"bad level":          func(c *config.Config) { c.LogLevel = "chatty" },
		"short key":          func(c *config.Config) { c.EncryptionKey = "abcd" },
		"non-hex key":        func(c *config.Config) { c.EncryptionKey = strings.Repeat("zz", 32) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestEncryptionKeyBytes(t *testing.T) {
	var c config.Config
	key, err := c.EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Nil(t, key)

	c.EncryptionKey = strings.Repeat("ab", 32)
	key, err = c.EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestNewLogger(t *testing.T) {
	assert.NotNil(t, config.NewLogger("debug"))
	assert.NotNil(t, config.NewLogger("nonsense"))
}

func TestOpenRepository(t *testing.T) {
	dir := t.TempDir()
	for _, sc := range []config.StorageConfig{
		{Backend: config.BackendMemory},
		{Backend: config.BackendBolt, Path: filepath.Join(dir, "nested", "sessions.db")},
		{Backend: config.BackendSQLite, Path: filepath.Join(dir, "sessions.sqlite")},
	} {
		t.Run(sc.Backend, func(t *testing.T) {
			repo, closeRepo, err := config.OpenRepository(t.Context(), sc)
			require.NoError(t, err)
			defer func() { require.NoError(t, closeRepo()) }()

			env := storage.RawRecord([]byte("x"), 1)
			require.NoError(t, repo.Put(t.Context(), "ns", "USER", "u1", env))
			got, err := repo.Get(t.Context(), "ns", "USER", "u1")
			require.NoError(t, err)
			assert.Equal(t, env.Ciphertext, got.Ciphertext)
		})
	}

	_, _, err := config.OpenRepository(t.Context(), config.StorageConfig{Backend: "redis"})
	assert.Error(t, err)
}
