package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all SocialChef Insights configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig configures the SocialChef backend client.
type APIConfig struct {
	BaseURL       string `yaml:"base_url"`
	Token         string `yaml:"token"`
	Timeout       string `yaml:"timeout"`
	Retries       int    `yaml:"retries"`
	BulkChunkSize int    `yaml:"bulk_chunk_size"`
	Concurrency   int    `yaml:"concurrency"`
}

// AnalysisConfig configures what a sync selects and how it is analysed.
type AnalysisConfig struct {
	WindowDays int    `yaml:"window_days"`
	Timezone   string `yaml:"timezone"` // IANA name
	BrandID    string `yaml:"brand_id"`
}

type StorageConfig struct {
	DBPath            string `yaml:"db_path"`
	CacheDir          string `yaml:"cache_dir"`
	CacheMaxSnapshots int    `yaml:"cache_max_snapshots"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

func DefaultConfig() *Config {
	dataDir := "data"
	cacheDir := filepath.Join(dataDir, "cache")
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "socialchef-insights")
		cacheDir = filepath.Join(home, ".cache", "socialchef-insights")
	}

	return &Config{
		API: APIConfig{
			BaseURL:       "http://localhost:3000",
			Timeout:       "30s",
			Retries:       3,
			BulkChunkSize: 100,
			Concurrency:   4,
		},
		Analysis: AnalysisConfig{
			WindowDays: 90,
			Timezone:   "UTC",
		},
		Storage: StorageConfig{
			DBPath:            filepath.Join(dataDir, "insights.db"),
			CacheDir:          cacheDir,
			CacheMaxSnapshots: 10,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file over the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("SOCIALCHEF_API_URL"); url != "" {
		c.API.BaseURL = url
	}
	if token := os.Getenv("SOCIALCHEF_TOKEN"); token != "" {
		c.API.Token = token
	}
	if path := os.Getenv("SOCIALCHEF_DB"); path != "" {
		c.Storage.DBPath = path
	}
}

// APITimeout returns the client timeout, falling back to 30s when unset.
func (c *Config) APITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (c *Config) Validate() error {
	if c.Analysis.WindowDays <= 0 {
		return fmt.Errorf("%w: analysis.window_days must be positive, got %d", ErrInvalidConfig, c.Analysis.WindowDays)
	}
	if _, err := time.LoadLocation(c.Analysis.Timezone); err != nil {
		return fmt.Errorf("%w: analysis.timezone %q: %v", ErrInvalidConfig, c.Analysis.Timezone, err)
	}
	if c.API.Timeout != "" {
		if _, err := time.ParseDuration(c.API.Timeout); err != nil {
			return fmt.Errorf("%w: api.timeout %q: %v", ErrInvalidConfig, c.API.Timeout, err)
		}
	}
	if c.API.Retries < 0 {
		return fmt.Errorf("%w: api.retries must not be negative", ErrInvalidConfig)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
