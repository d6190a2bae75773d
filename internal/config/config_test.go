package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWith("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, "moodmatch", cfg.JWTIssuer)
	assert.Equal(t, "/moodmatch/prod/gemini-api-key", cfg.SSM.GeminiAPIKey)
	assert.NotContains(t, cfg.Local.DataDir, "~")
	assert.Equal(t, filepath.Join(cfg.Local.DataDir, "moodmatch.db"), cfg.SQLitePath())
}

func TestYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moodmatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
media_bucket: from-file
posts_table: posts-file
recommend_url: https://recs.example.com/v1/recommend
session_idle_timeout: 10m
allowed_origins: [https://a.example.com]
local:
  data_dir: `+dir+`
  camera_dir: `+filepath.Join(dir, "dcim")+`
`), 0o644))

	cfg, err := LoadWith(path, env(map[string]string{
		"MEDIA_BUCKET_NAME": "from-env",
		"JWT_SECRET":        " shh ",
		"ALLOWED_ORIGINS":   "https://b.example.com, https://c.example.com,",
		"GEMINI_MODEL":      "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.MediaBucket)
	assert.Equal(t, "posts-file", cfg.PostsTable)
	assert.Equal(t, "https://recs.example.com/v1/recommend", cfg.RecommendURL)
	assert.Equal(t, 10*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, "shh", cfg.JWTSecret)
	assert.Equal(t, []string{"https://b.example.com", "https://c.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, filepath.Join(dir, "media"), cfg.MediaDir())
	assert.Empty(t, cfg.GeminiModel)
}

func TestConfigFileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("event_bus: bus-1\n"), 0o644))

	cfg, err := LoadWith("", env(map[string]string{FileEnvVar: path}))
	require.NoError(t, err)
	assert.Equal(t, "bus-1", cfg.EventBus)
}

func TestSecretsIgnoredInYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt_secret: leaked\n"), 0o644))

	cfg, err := LoadWith(path, env(nil))
	require.NoError(t, err)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadWith(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("session_idle_timeout: [nope"), 0o644))
	_, err = LoadWith(bad, env(nil))
	assert.Error(t, err)

	_, err = LoadWith("", env(map[string]string{"SESSION_IDLE_TIMEOUT": "soon"}))
	assert.Error(t, err)

	_, err = LoadWith("", env(map[string]string{"SESSION_IDLE_TIMEOUT": "-1m"}))
	assert.ErrorContains(t, err, "session_idle_timeout")
}
