// Package config loads MoodMatch settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Secrets may be left empty here and filled from SSM
// Parameter Store at cold start.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnvVar names the YAML file when no --config flag is given.
const FileEnvVar = "MOODMATCH_CONFIG"

// Config holds application configuration.
type Config struct {
	Region string `yaml:"region"`

	MediaBucket        string `yaml:"media_bucket"`
	MediaPublicBaseURL string `yaml:"media_public_base_url"`
	PostsTable         string `yaml:"posts_table"`
	EventBus           string `yaml:"event_bus"`

	RecommendURL    string `yaml:"recommend_url"`
	RecommendAPIKey string `yaml:"recommend_api_key"`
	GeminiAPIKey    string `yaml:"-"`
	GeminiModel     string `yaml:"gemini_model"`

	JWTSecret          string   `yaml:"-"`
	JWTIssuer          string   `yaml:"jwt_issuer"`
	OriginVerifySecret string   `yaml:"-"`
	AllowedOrigins     []string `yaml:"allowed_origins"`

	// SessionIdleTimeout evicts API sessions nobody touched for this long.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`

	SSM   SSMParams   `yaml:"ssm"`
	Local LocalConfig `yaml:"local"`
}

// SSMParams names the Parameter Store entries holding secrets.
type SSMParams struct {
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	JWTSecret       string `yaml:"jwt_secret"`
	RecommendAPIKey string `yaml:"recommend_api_key"`
	OriginVerify    string `yaml:"origin_verify"`
}

// LocalConfig applies when running outside Lambda.
type LocalConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// DataDir holds the SQLite database and uploaded photos.
	DataDir string `yaml:"data_dir"`
	// CameraDir is the folder the CLI camera source reads from.
	CameraDir string `yaml:"camera_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Region:             "us-east-1",
		JWTIssuer:          "moodmatch",
		SessionIdleTimeout: 30 * time.Minute,
		SSM: SSMParams{
			GeminiAPIKey:    "/moodmatch/prod/gemini-api-key",
			JWTSecret:       "/moodmatch/prod/jwt-secret",
			RecommendAPIKey: "/moodmatch/prod/recommend-api-key",
			OriginVerify:    "/moodmatch/prod/origin-verify-secret",
		},
		Local: LocalConfig{
			ListenAddr: "127.0.0.1:8080",
			DataDir:    "~/.moodmatch",
		},
	}
}

// Load builds the configuration from path (or $MOODMATCH_CONFIG when path
// is empty) and the process environment. A missing file is an error only
// when one was named explicitly.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an injectable environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path == "" {
		path, _ = lookup(FileEnvVar)
	}
	if path != "" {
		data, err := os.ReadFile(expandHome(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.Local.DataDir = expandHome(cfg.Local.DataDir)
	cfg.Local.CameraDir = expandHome(cfg.Local.CameraDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"AWS_REGION":              &c.Region,
		"MEDIA_BUCKET_NAME":       &c.MediaBucket,
		"MEDIA_PUBLIC_BASE_URL":   &c.MediaPublicBaseURL,
		"POSTS_TABLE_NAME":        &c.PostsTable,
		"EVENT_BUS_NAME":          &c.EventBus,
		"RECOMMEND_URL":           &c.RecommendURL,
		"RECOMMEND_API_KEY":       &c.RecommendAPIKey,
		"GEMINI_API_KEY":          &c.GeminiAPIKey,
		"GEMINI_MODEL":            &c.GeminiModel,
		"JWT_SECRET":              &c.JWTSecret,
		"JWT_ISSUER":              &c.JWTIssuer,
		"ORIGIN_VERIFY_SECRET":    &c.OriginVerifySecret,
		"SSM_API_KEY_PARAM":       &c.SSM.GeminiAPIKey,
		"SSM_JWT_SECRET_PARAM":    &c.SSM.JWTSecret,
		"SSM_RECOMMEND_KEY_PARAM": &c.SSM.RecommendAPIKey,
		"SSM_ORIGIN_VERIFY_PARAM": &c.SSM.OriginVerify,
		"MOODMATCH_LISTEN_ADDR":   &c.Local.ListenAddr,
		"MOODMATCH_DATA_DIR":      &c.Local.DataDir,
		"MOODMATCH_CAMERA_DIR":    &c.Local.CameraDir,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	if v, ok := lookup("SESSION_IDLE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_IDLE_TIMEOUT: %w", err)
		}
		c.SessionIdleTimeout = d
	}
	return nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	if c.SessionIdleTimeout <= 0 {
		return errors.New("session_idle_timeout must be positive")
	}
	if c.Local.DataDir == "" {
		return errors.New("local.data_dir is required")
	}
	return nil
}

// SQLitePath is the local database file.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Local.DataDir, "moodmatch.db")
}

// MediaDir is where the local object store keeps photos.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Local.DataDir, "media")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
