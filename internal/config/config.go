// Package config loads quarry configuration from quarry.yaml with
// QUARRY_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// ConfigFileName is the config file looked up in the working directory
// and the data directory.
const ConfigFileName = "quarry.yaml"

// Config is the complete quarry configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Roots      []string         `yaml:"roots"`
	DataDir    string           `yaml:"data_dir"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static", "ollama", or "openai". Empty auto-selects.
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	OllamaHost string `yaml:"ollama_host"`
	// Timeout is a duration string, e.g. "60s".
	Timeout   string `yaml:"timeout"`
	CacheSize int    `yaml:"cache_size"`
}

// TimeoutDuration parses Timeout, defaulting to 60s.
func (e EmbeddingsConfig) TimeoutDuration() time.Duration {
	return parseDuration(e.Timeout, 60*time.Second)
}

// SearchConfig configures query defaults.
type SearchConfig struct {
	DefaultLimit        int     `yaml:"default_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// IndexerConfig configures the indexing pipeline.
type IndexerConfig struct {
	Workers int `yaml:"workers"`
	// RescanInterval and DebounceWindow are duration strings,
	// e.g. "5m" and "200ms".
	RescanInterval string `yaml:"rescan_interval"`
	DebounceWindow string `yaml:"debounce_window"`
}

// RescanIntervalDuration parses RescanInterval, defaulting to 5m.
func (i IndexerConfig) RescanIntervalDuration() time.Duration {
	return parseDuration(i.RescanInterval, 5*time.Minute)
}

// DebounceWindowDuration parses DebounceWindow, defaulting to 200ms.
func (i IndexerConfig) DebounceWindowDuration() time.Duration {
	return parseDuration(i.DebounceWindow, 200*time.Millisecond)
}

// parseDuration parses a duration string, falling back to def when the
// string is empty or malformed.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
	Stderr    bool   `yaml:"stderr"`
}

// DefaultDataDir returns ~/.quarry, falling back to the temp directory
// when the home directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".quarry")
	}
	return filepath.Join(home, ".quarry")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Version: 1,
		Roots:   []string{"."},
		DataDir: dataDir,
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 150,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "",
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			Timeout:    "60s",
			CacheSize:  4096,
		},
		Search: SearchConfig{
			DefaultLimit:        10,
			SimilarityThreshold: 0.3,
		},
		Indexer: IndexerConfig{
			Workers:        4,
			RescanInterval: "5m",
			DebounceWindow: "200ms",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7870",
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(dataDir, "logs", "quarry.log"),
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    true,
		},
	}
}

// Load builds the effective configuration: defaults, then quarry.yaml
// from dir (or the data dir), then QUARRY_* environment overrides.
// A .env file in dir is loaded first so provider API keys are visible.
func Load(dir string) (*Config, error) {
	// Missing .env is fine; it only carries optional provider keys.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := Default()

	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Join(cfg.DataDir, ConfigFileName)
	}
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return qerrors.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return qerrors.ConfigError(fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies QUARRY_* environment variable overrides.
// Env vars beat file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QUARRY_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("QUARRY_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("QUARRY_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("QUARRY_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("QUARRY_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.Size = n
		}
	}
	if v := os.Getenv("QUARRY_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.Overlap = n
		}
	}
	if v := os.Getenv("QUARRY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexer.Workers = n
		}
	}
	if v := os.Getenv("QUARRY_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("QUARRY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("QUARRY_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.SimilarityThreshold = f
		}
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return qerrors.ConfigError(fmt.Sprintf("chunk size must be positive, got %d", c.Chunking.Size), nil)
	}
	if c.Chunking.Overlap < 0 {
		return qerrors.ConfigError(fmt.Sprintf("chunk overlap must not be negative, got %d", c.Chunking.Overlap), nil)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return qerrors.New(qerrors.ErrCodeChunkOverlap,
			fmt.Sprintf("chunk overlap (%d) must be smaller than chunk size (%d)", c.Chunking.Overlap, c.Chunking.Size), nil)
	}
	if c.Indexer.Workers <= 0 {
		return qerrors.ConfigError(fmt.Sprintf("indexer workers must be positive, got %d", c.Indexer.Workers), nil)
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return qerrors.ConfigError(
			fmt.Sprintf("similarity threshold must be in [0, 1], got %g", c.Search.SimilarityThreshold), nil)
	}
	if c.Search.DefaultLimit <= 0 {
		return qerrors.ConfigError(fmt.Sprintf("default limit must be positive, got %d", c.Search.DefaultLimit), nil)
	}
	if len(c.Roots) == 0 {
		return qerrors.ConfigError("at least one root directory is required", nil)
	}
	return nil
}

// WriteYAML writes the configuration to path, creating parent
// directories as needed.
func (c *Config) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return qerrors.ConfigError(fmt.Sprintf("create config directory for %s", path), err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return qerrors.ConfigError("marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return qerrors.ConfigError(fmt.Sprintf("write config file %s", path), err)
	}
	return nil
}

// IndexPath returns the vector index location under the data dir.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index", "vectors.hnsw")
}

// ManifestPath returns the manifest database location.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, "manifest.db")
}

// HighlightsPath returns the highlight database location.
func (c *Config) HighlightsPath() string {
	return filepath.Join(c.DataDir, "highlights.db")
}

// LockPath returns the process lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "quarry.lock")
}
