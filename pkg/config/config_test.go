package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Paths.Shapefile = "feeders.shp"
	return cfg
}

func TestDefaultConfigNeedsShapefile(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shapefile")

	cfg.Paths.Shapefile = "feeders.shp"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing login url", func(c *Config) { c.Portal.LoginURL = "" }},
		{"missing data url", func(c *Config) { c.Portal.DataURL = "" }},
		{"missing selectors", func(c *Config) { c.Portal.UsernameSelector = "" }},
		{"missing output dir", func(c *Config) { c.Paths.OutputDir = "" }},
		{"missing download dir", func(c *Config) { c.Paths.DownloadDir = "" }},
		{"missing feeder id field", func(c *Config) { c.Paths.FeederIDField = "" }},
		{"zero max attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"zero poll interval", func(c *Config) { c.Retry.PollInterval = 0 }},
		{"zero download timeout", func(c *Config) { c.Retry.DownloadTimeout = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateCredentialsSeparateFromValidate(t *testing.T) {
	cfg := validConfig()

	// A config without credentials is valid for status but not for fetch
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateCredentials())

	cfg.Portal.Username = "user@example.com"
	assert.Error(t, cfg.ValidateCredentials())

	cfg.Portal.Password = "secret"
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ICAFETCH_USERNAME", "env-user")
	t.Setenv("ICAFETCH_PASSWORD", "env-pass")
	t.Setenv("ICAFETCH_SHAPEFILE", "/data/feeders.shp")
	t.Setenv("ICAFETCH_MAX_ATTEMPTS", "7")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "env-user", cfg.Portal.Username)
	assert.Equal(t, "env-pass", cfg.Portal.Password)
	assert.Equal(t, "/data/feeders.shp", cfg.Paths.Shapefile)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
}

func TestLoadFromFile(t *testing.T) {
	content := `
portal:
  username: file-user
paths:
  shapefile: /data/feeders.shp
  output_dir: /data/out
retry:
  max_attempts: 5
  poll_interval: 500ms
  download_timeout: 10s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "file-user", cfg.Portal.Username)
	assert.Equal(t, "/data/feeders.shp", cfg.Paths.Shapefile)
	assert.Equal(t, "/data/out", cfg.Paths.OutputDir)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Retry.DownloadTimeout)

	// Untouched keys keep their defaults
	assert.Equal(t, "#username", cfg.Portal.UsernameSelector)
}

func TestLoadFromFileMissingIsError(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := validConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"shapefile":    "/flag/feeders.shp",
		"output":       "/flag/out",
		"max-attempts": 9,
		"headless":     false,
		"log-level":    "debug",
	})

	assert.Equal(t, "/flag/feeders.shp", cfg.Paths.Shapefile)
	assert.Equal(t, "/flag/out", cfg.Paths.OutputDir)
	assert.Equal(t, 9, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.Portal.Headless)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestMergeCommandLineFlagsIgnoresEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"shapefile":    "",
		"max-attempts": 0,
	})

	assert.Equal(t, "feeders.shp", cfg.Paths.Shapefile)
	assert.Equal(t, 20, cfg.Retry.MaxAttempts)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("ICAFETCH_SHAPEFILE", "/env/feeders.shp")
	t.Setenv("ICAFETCH_USERNAME", "user")
	t.Setenv("ICAFETCH_PASSWORD", "pass")

	cfg, err := Load("", map[string]interface{}{
		"shapefile": "/flag/feeders.shp",
	})
	require.NoError(t, err)
	assert.Equal(t, "/flag/feeders.shp", cfg.Paths.Shapefile)
}
