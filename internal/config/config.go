// Package config loads the crmdex YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the crmdex indexer and search configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Typesense EngineConfig    `yaml:"typesense"`
	Qdrant    EngineConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds ops-API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds the ops HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// MongoConfig holds the primary document store connection settings.
type MongoConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	ConfigDatabase string `yaml:"config_database"` // tenants + entity definitions
	ConnectTimeout int    `yaml:"connect_timeout_sec"`
}

// EngineConfig holds a search engine endpoint (Typesense or Qdrant).
type EngineConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// EmbeddingConfig holds the global default embeddings provider. Tenants may
// override it entirely via their registry record.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// CacheConfig holds the optional embedding cache (Redis/Valkey) settings.
// Empty addrs disables caching.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
}

// SearchConfig holds hybrid search defaults.
type SearchConfig struct {
	SemanticWeight float64 `yaml:"semantic_weight"`
	TextWeight     float64 `yaml:"text_weight"`
	DefaultLimit   int     `yaml:"default_limit"`
}

// IndexerConfig holds change-capture settings.
type IndexerConfig struct {
	// SettleDelayMs is the delay before re-fetching a document after an
	// update/replace event, covering the gap between event delivery and
	// durable visibility of the write.
	SettleDelayMs    int `yaml:"settle_delay_ms"`
	BackfillPageSize int `yaml:"backfill_page_size"`
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
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "crm"
	}
	if c.Mongo.ConfigDatabase == "" {
		c.Mongo.ConfigDatabase = c.Mongo.Database
	}
	if c.Mongo.ConnectTimeout <= 0 {
		c.Mongo.ConnectTimeout = 10
	}
	if c.Typesense.TimeoutSec <= 0 {
		c.Typesense.TimeoutSec = 5
	}
	if c.Qdrant.TimeoutSec <= 0 {
		c.Qdrant.TimeoutSec = 5
	}
	if c.Search.SemanticWeight <= 0 {
		c.Search.SemanticWeight = 0.7
	}
	if c.Search.TextWeight <= 0 {
		c.Search.TextWeight = 0.3
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Indexer.SettleDelayMs <= 0 {
		c.Indexer.SettleDelayMs = 100
	}
	if c.Indexer.BackfillPageSize <= 0 {
		c.Indexer.BackfillPageSize = 500
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if c.Typesense.URL == "" {
		return fmt.Errorf("typesense.url is required")
	}
	if c.Qdrant.URL == "" {
		return fmt.Errorf("qdrant.url is required")
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
