// Package config loads the stockwatch YAML configuration and applies
// environment variable overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for stockwatch.
type Config struct {
	Storage  Storage      `yaml:"storage"`
	Alpaca   Alpaca       `yaml:"alpaca"`
	Source   SourceConfig `yaml:"source"`
	Loader   LoaderConfig `yaml:"loader"`
	Universe Universe     `yaml:"universe"`
	Logging  Logging      `yaml:"logging"`
}

// Storage selects and configures the progress store backend.
type Storage struct {
	Backend    string `yaml:"backend"` // file, sqlite, redis, memory
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	Redis      Redis  `yaml:"redis"`
}

// Redis holds connection settings for the redis backend.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// SourceConfig selects the quote source and how hard it may be called.
type SourceConfig struct {
	Name            string        `yaml:"name"` // alpaca, yahoo, chain
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	Burst           int           `yaml:"burst"`
	Timeout         time.Duration `yaml:"timeout"`
}

// LoaderConfig picks a named profile and optionally overrides its fields.
// Zero values mean "use the profile's value". Jitter and the sufficiency
// threshold are pointers so an explicit 0 can be told apart from unset.
type LoaderConfig struct {
	Profile                   string        `yaml:"profile"`
	StoreKey                  string        `yaml:"store_key"`
	BatchSize                 int           `yaml:"batch_size"`
	Concurrency               int           `yaml:"concurrency"`
	DelayBetweenBatches       time.Duration `yaml:"delay_between_batches"`
	Jitter                    *float64      `yaml:"jitter"`
	MaxRetries                int           `yaml:"max_retries"`
	RetryDelay                time.Duration `yaml:"retry_delay"`
	Backoff                   string        `yaml:"backoff"`
	ConsecutiveFailureCeiling int           `yaml:"consecutive_failure_ceiling"`
	MaxAge                    time.Duration `yaml:"max_age"`
	SufficiencyThreshold      *float64      `yaml:"sufficiency_threshold"`
}

// Universe lists the symbols to load, either inline or from a CSV file
// whose first column holds the symbol.
type Universe struct {
	CSVPath string   `yaml:"csv_path"`
	Symbols []string `yaml:"symbols"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Backend:    "file",
			DataDir:    "data",
			SQLitePath: "data/stockwatch.db",
			Redis:      Redis{Addr: "localhost:6379", Prefix: "stockwatch:"},
		},
		Alpaca: Alpaca{Feed: "iex"},
		Source: SourceConfig{
			Name:            "yahoo",
			RateLimitPerMin: 120,
			Burst:           1,
			Timeout:         15 * time.Second,
		},
		Loader:  LoaderConfig{Profile: "balanced"},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of
// Default(), and then applies environment variable overrides. A missing file
// is not an error; defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Storage.Redis.DB = n
		}
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("QUOTE_SOURCE"); v != "" {
		cfg.Source.Name = strings.ToLower(v)
	}
	if v := os.Getenv("LOADER_PROFILE"); v != "" {
		cfg.Loader.Profile = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take precedence over the ALPACA_* names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
