package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the ICA feeder downloader
type Config struct {
	// Portal access: URLs, credentials, and login form selectors
	Portal PortalConfig `yaml:"portal" json:"portal"`

	// Filesystem paths used by the run
	Paths PathsConfig `yaml:"paths" json:"paths"`

	// Retry bounds and wait tuning
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PortalConfig holds ICA map portal settings
type PortalConfig struct {
	LoginURL string `yaml:"login_url" json:"login_url"`
	DataURL  string `yaml:"data_url" json:"data_url"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// CSS/XPath selectors for the login form controls
	UsernameSelector string `yaml:"username_selector" json:"username_selector"`
	PasswordSelector string `yaml:"password_selector" json:"password_selector"`
	SubmitSelector   string `yaml:"submit_selector" json:"submit_selector"`

	// Pause after submitting credentials so the destination page can load
	PostLoginSettle time.Duration `yaml:"post_login_settle" json:"post_login_settle"`

	// Run the browser headless; disable to watch the session
	Headless bool `yaml:"headless" json:"headless"`
}

// PathsConfig holds the operator-supplied filesystem locations
type PathsConfig struct {
	// Shapefile is the feeder-level ICA circuit-segment shapefile
	Shapefile string `yaml:"shapefile" json:"shapefile"`
	// FeederIDField is the attribute holding the feeder identifier
	FeederIDField string `yaml:"feeder_id_field" json:"feeder_id_field"`
	// DownloadDir is where the browser places zip archives
	DownloadDir string `yaml:"download_dir" json:"download_dir"`
	// OutputDir receives the per-feeder csv files and is the resume checkpoint
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// RetryConfig holds retry bounds and wait tuning
type RetryConfig struct {
	// MaxAttempts bounds each retry phase (login fields, navigation, cleanup)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// PollInterval is the sleep between attempts and file-existence polls
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// DownloadTimeout bounds the wait for the browser to finish writing an archive
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			LoginURL:         "https://www.pge.com/b2b/distribution-resource-planning/integration-capacity-map.shtml",
			DataURL:          "https://www.pge.com/b2b/distribution-resource-planning/downloads/integration-capacity/",
			UsernameSelector: "#username",
			PasswordSelector: `//input[@placeholder='Password']`,
			SubmitSelector:   "#submit",
			PostLoginSettle:  3 * time.Second,
			Headless:         true,
		},
		Paths: PathsConfig{
			FeederIDField: "FeederID",
			DownloadDir:   "./downloads",
			OutputDir:     "./ica_timeseries",
		},
		Retry: RetryConfig{
			MaxAttempts:     20,
			PollInterval:    2 * time.Second,
			DownloadTimeout: 40 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("ICAFETCH_USERNAME"); v != "" {
		c.Portal.Username = v
	}
	if v := os.Getenv("ICAFETCH_PASSWORD"); v != "" {
		c.Portal.Password = v
	}
	if v := os.Getenv("ICAFETCH_LOGIN_URL"); v != "" {
		c.Portal.LoginURL = v
	}
	if v := os.Getenv("ICAFETCH_DATA_URL"); v != "" {
		c.Portal.DataURL = v
	}
	if v := os.Getenv("ICAFETCH_SHAPEFILE"); v != "" {
		c.Paths.Shapefile = v
	}
	if v := os.Getenv("ICAFETCH_DOWNLOAD_DIR"); v != "" {
		c.Paths.DownloadDir = v
	}
	if v := os.Getenv("ICAFETCH_OUTPUT_DIR"); v != "" {
		c.Paths.OutputDir = v
	}
	if v := os.Getenv("ICAFETCH_MAX_ATTEMPTS"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Retry.MaxAttempts = val
		}
	}
	if v := os.Getenv("ICAFETCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".icafetch.yaml",
		".icafetch.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "icafetch", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "icafetch", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".icafetch.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks that everything a download pass needs is present before
// any network activity begins
func (c *Config) Validate() error {
	var errs []error

	if c.Portal.LoginURL == "" {
		errs = append(errs, errors.New("portal login URL is required"))
	}
	if c.Portal.DataURL == "" {
		errs = append(errs, errors.New("portal data URL is required"))
	}
	if c.Portal.UsernameSelector == "" || c.Portal.PasswordSelector == "" || c.Portal.SubmitSelector == "" {
		errs = append(errs, errors.New("login form selectors are required"))
	}

	if err := c.ValidatePaths(); err != nil {
		errs = append(errs, err)
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Retry.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Retry.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidatePaths checks the filesystem inputs shared by fetch and status
func (c *Config) ValidatePaths() error {
	var errs []error

	if c.Paths.Shapefile == "" {
		errs = append(errs, errors.New("feeder shapefile path is required"))
	}
	if c.Paths.FeederIDField == "" {
		errs = append(errs, errors.New("feeder ID field name is required"))
	}
	if c.Paths.DownloadDir == "" {
		errs = append(errs, errors.New("download directory is required"))
	}
	if c.Paths.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateCredentials checks that portal credentials are set. Kept separate
// from Validate so the status command can run without them.
func (c *Config) ValidateCredentials() error {
	var errs []error

	if c.Portal.Username == "" {
		errs = append(errs, errors.New("portal username is required"))
	}
	if c.Portal.Password == "" {
		errs = append(errs, errors.New("portal password is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if shapefile, ok := flags["shapefile"].(string); ok && shapefile != "" {
		c.Paths.Shapefile = shapefile
	}
	if downloadDir, ok := flags["download-dir"].(string); ok && downloadDir != "" {
		c.Paths.DownloadDir = downloadDir
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Paths.OutputDir = outputDir
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.Retry.MaxAttempts = attempts
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Portal.Headless = headless
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".icafetch.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
