package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the retriever API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Index     IndexConfig     `yaml:"index"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Disabled bool `yaml:"disabled"` // zero value keeps metrics on
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig names the two similarity indexes this service queries.
type IndexConfig struct {
	Text  string `yaml:"text"`
	Image string `yaml:"image"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// SearchConfig holds the retrieval tunables. All of them are runtime
// configuration; no rebuild is needed to change retrieval behavior.
type SearchConfig struct {
	MinScore          float64 `yaml:"min_score"`
	DefaultMaxResults int     `yaml:"default_max_results"`
	MaxResults        int     `yaml:"max_results"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	WorkerPoolSize    int     `yaml:"worker_pool_size"` // 0 = GOMAXPROCS
	MaxRetries        int     `yaml:"max_retries"`
	BaseRetryDelayMs  int     `yaml:"base_retry_delay_ms"`
	MaxQueryLength    int     `yaml:"max_query_length"`
	CacheTTLSec       int     `yaml:"cache_ttl_sec"`
}

// Timeout returns the per-branch search timeout.
func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// BaseRetryDelay returns the first retry delay.
func (s SearchConfig) BaseRetryDelay() time.Duration {
	return time.Duration(s.BaseRetryDelayMs) * time.Millisecond
}

// CacheTTL returns the result cache TTL.
func (s SearchConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSec) * time.Second
}

// Version derives a short fingerprint of the result-affecting tunables.
// It is embedded into cache keys so that a config change implicitly
// invalidates every previously cached result without an explicit flush.
func (s SearchConfig) Version() string {
	payload := fmt.Sprintf("ms=%.4f|dmr=%d|mr=%d|to=%d|mql=%d",
		s.MinScore, s.DefaultMaxResults, s.MaxResults, s.TimeoutSec, s.MaxQueryLength,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:12]
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Text == "" {
		c.Index.Text = "text"
	}
	if c.Index.Image == "" {
		c.Index.Image = "image"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "retriever:"
	}
	if c.Search.MinScore <= 0 {
		c.Search.MinScore = 0.7
	}
	if c.Search.DefaultMaxResults <= 0 {
		c.Search.DefaultMaxResults = 5
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 20
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 10
	}
	if c.Search.WorkerPoolSize <= 0 {
		c.Search.WorkerPoolSize = runtime.GOMAXPROCS(0)
	}
	if c.Search.MaxRetries <= 0 {
		c.Search.MaxRetries = 3
	}
	if c.Search.BaseRetryDelayMs <= 0 {
		c.Search.BaseRetryDelayMs = 100
	}
	if c.Search.MaxQueryLength <= 0 {
		c.Search.MaxQueryLength = 512
	}
	if c.Search.CacheTTLSec <= 0 {
		c.Search.CacheTTLSec = 1800
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be within [0, 1], got %f", c.Search.MinScore)
	}
	if c.Search.DefaultMaxResults > c.Search.MaxResults {
		return fmt.Errorf("search.default_max_results %d exceeds search.max_results %d",
			c.Search.DefaultMaxResults, c.Search.MaxResults)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
