// Package config handles nornicogm configuration via environment variables
// and an optional YAML file.
//
// Values are resolved in three layers: built-in defaults, then the YAML file
// given to LoadFile, then NORNICOGM_ environment variables. LoadFromEnv skips
// the file layer.
//
// Example Usage:
//
//	cfg, err := config.LoadFile("nornicogm.yaml")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	cfg.Runtime.ApplyRuntime()
//
// Environment Variables:
//
// Executor:
//   - NORNICOGM_EXECUTOR="http", "websocket" or "local"
//   - NORNICOGM_URL="http://localhost:8182/gremlin"
//   - NORNICOGM_USERNAME / NORNICOGM_PASSWORD
//   - NORNICOGM_TIMEOUT=30s
//   - NORNICOGM_DATA_DIR="./data", NORNICOGM_IN_MEMORY=true
//
// Mapper:
//   - NORNICOGM_GRAPH_VARIABLE=g
//   - NORNICOGM_VARIABLE_PREFIX=ogm_var
//   - NORNICOGM_AUTO_COMMIT=true
//
// Logging:
//   - NORNICOGM_LOG_LEVEL=info
//   - NORNICOGM_LOG_FILE="./logs/nornicogm.log"
//
// Runtime:
//   - NORNICOGM_MEMORY_LIMIT=2GB
//   - NORNICOGM_GC_PERCENT=100
//   - NORNICOGM_POOL_ENABLED=true
//
// For a complete list, see LoadFromEnv.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/nornicogm/pkg/logging"
	"github.com/orneryd/nornicogm/pkg/pool"
)

// Executor kinds.
const (
	ExecutorHTTP      = "http"
	ExecutorWebSocket = "websocket"
	ExecutorLocal     = "local"
)

// Config holds all nornicogm configuration.
//
// Configuration is organized into sections:
//   - Executor: where batches are sent
//   - Mapper: how scripts are rendered
//   - Logging: zap logger and rotating file sink
//   - Runtime: Go runtime memory and object pooling
type Config struct {
	Executor ExecutorConfig `yaml:"executor"`
	Mapper   MapperConfig   `yaml:"mapper"`
	Logging  LoggingConfig  `yaml:"logging"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

// ExecutorConfig selects and configures the request executor.
type ExecutorConfig struct {
	// Kind is one of http, websocket or local.
	Kind string `yaml:"kind"`

	// URL of the Gremlin Server for the http and websocket executors.
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`

	// DataDir holds the embedded store of the local executor.
	DataDir    string `yaml:"data_dir"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// MapperConfig shapes the scripts a session renders.
type MapperConfig struct {
	GraphVariable  string `yaml:"graph_variable"`
	VariablePrefix string `yaml:"variable_prefix"`
	AutoCommit     bool   `yaml:"auto_commit"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compress    bool   `yaml:"compress"`
	Development bool   `yaml:"development"`
}

// RuntimeConfig holds Go runtime and pooling settings.
type RuntimeConfig struct {
	// MemoryLimit is a human readable size ("2GB", "512MB", "0" for none).
	MemoryLimit string `yaml:"memory_limit"`
	// MemoryLimitBytes is MemoryLimit parsed.
	MemoryLimitBytes int64 `yaml:"-"`
	GCPercent        int   `yaml:"gc_percent"`
	PoolEnabled      bool  `yaml:"pool_enabled"`
	PoolMaxSize      int   `yaml:"pool_max_size"`
}

// Defaults returns the built-in configuration: a local in-memory executor.
func Defaults() *Config {
	return &Config{
		Executor: ExecutorConfig{
			Kind:    ExecutorLocal,
			URL:     "http://localhost:8182/gremlin",
			Timeout: 30 * time.Second,
			DataDir: "./data",
		},
		Mapper: MapperConfig{
			GraphVariable:  "g",
			VariablePrefix: "ogm_var",
			AutoCommit:     true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Runtime: RuntimeConfig{
			MemoryLimit: "0",
			GCPercent:   100,
			PoolEnabled: true,
			PoolMaxSize: 1000,
		},
	}
}

// LoadFromEnv loads configuration from defaults and NORNICOGM_ variables.
//
// Unset variables keep the default. Values that fail to parse are ignored
// the same way; Validate catches the settings that matter.
func LoadFromEnv() *Config {
	config := Defaults()
	config.applyEnv()
	return config
}

// LoadFile loads defaults, overlays the YAML file at path, then overlays
// the environment. Keys missing from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	config := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	// Executor
	c.Executor.Kind = strings.ToLower(getEnv("NORNICOGM_EXECUTOR", c.Executor.Kind))
	c.Executor.URL = getEnv("NORNICOGM_URL", c.Executor.URL)
	c.Executor.Username = getEnv("NORNICOGM_USERNAME", c.Executor.Username)
	c.Executor.Password = getEnv("NORNICOGM_PASSWORD", c.Executor.Password)
	c.Executor.Timeout = getEnvDuration("NORNICOGM_TIMEOUT", c.Executor.Timeout)
	c.Executor.DataDir = getEnv("NORNICOGM_DATA_DIR", c.Executor.DataDir)
	c.Executor.InMemory = getEnvBool("NORNICOGM_IN_MEMORY", c.Executor.InMemory)
	c.Executor.SyncWrites = getEnvBool("NORNICOGM_SYNC_WRITES", c.Executor.SyncWrites)

	// Mapper
	c.Mapper.GraphVariable = getEnv("NORNICOGM_GRAPH_VARIABLE", c.Mapper.GraphVariable)
	c.Mapper.VariablePrefix = getEnv("NORNICOGM_VARIABLE_PREFIX", c.Mapper.VariablePrefix)
	c.Mapper.AutoCommit = getEnvBool("NORNICOGM_AUTO_COMMIT", c.Mapper.AutoCommit)

	// Logging
	c.Logging.Level = getEnv("NORNICOGM_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("NORNICOGM_LOG_FORMAT", c.Logging.Format)
	c.Logging.File = getEnv("NORNICOGM_LOG_FILE", c.Logging.File)
	c.Logging.MaxSizeMB = getEnvInt("NORNICOGM_LOG_MAX_SIZE_MB", c.Logging.MaxSizeMB)
	c.Logging.MaxBackups = getEnvInt("NORNICOGM_LOG_MAX_BACKUPS", c.Logging.MaxBackups)
	c.Logging.MaxAgeDays = getEnvInt("NORNICOGM_LOG_MAX_AGE_DAYS", c.Logging.MaxAgeDays)
	c.Logging.Compress = getEnvBool("NORNICOGM_LOG_COMPRESS", c.Logging.Compress)
	c.Logging.Development = getEnvBool("NORNICOGM_LOG_DEVELOPMENT", c.Logging.Development)

	// Runtime memory management
	c.Runtime.MemoryLimit = getEnv("NORNICOGM_MEMORY_LIMIT", c.Runtime.MemoryLimit)
	c.Runtime.MemoryLimitBytes = parseMemorySize(c.Runtime.MemoryLimit)
	c.Runtime.GCPercent = getEnvInt("NORNICOGM_GC_PERCENT", c.Runtime.GCPercent)
	c.Runtime.PoolEnabled = getEnvBool("NORNICOGM_POOL_ENABLED", c.Runtime.PoolEnabled)
	c.Runtime.PoolMaxSize = getEnvInt("NORNICOGM_POOL_MAX_SIZE", c.Runtime.PoolMaxSize)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Executor.Kind {
	case ExecutorHTTP, ExecutorWebSocket:
		if c.Executor.URL == "" {
			return fmt.Errorf("%s executor requires a url", c.Executor.Kind)
		}
	case ExecutorLocal:
		if !c.Executor.InMemory && c.Executor.DataDir == "" {
			return errors.New("local executor requires a data dir unless in memory")
		}
	default:
		return fmt.Errorf("invalid executor kind: %q", c.Executor.Kind)
	}
	if c.Executor.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %v", c.Executor.Timeout)
	}

	if !isIdentifier(c.Mapper.GraphVariable) {
		return fmt.Errorf("invalid graph variable: %q", c.Mapper.GraphVariable)
	}
	if !isIdentifier(c.Mapper.VariablePrefix) {
		return fmt.Errorf("invalid variable prefix: %q", c.Mapper.VariablePrefix)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	if c.Runtime.MemoryLimitBytes < 0 {
		return fmt.Errorf("invalid memory limit: %s", c.Runtime.MemoryLimit)
	}
	if c.Runtime.PoolEnabled && c.Runtime.PoolMaxSize <= 0 {
		return fmt.Errorf("invalid pool max size: %d", c.Runtime.PoolMaxSize)
	}

	return nil
}

// String returns a safe string representation of the Config. The password
// is never included.
func (c *Config) String() string {
	target := c.Executor.URL
	if c.Executor.Kind == ExecutorLocal {
		target = c.Executor.DataDir
		if c.Executor.InMemory {
			target = "memory"
		}
	}
	return fmt.Sprintf(
		"Config{Executor: %s, Target: %s, Auth: %v, Graph: %s, AutoCommit: %v, LogLevel: %s, MemoryLimit: %s}",
		c.Executor.Kind, target, c.Executor.Username != "",
		c.Mapper.GraphVariable, c.Mapper.AutoCommit, c.Logging.Level,
		c.Runtime.MemoryLimitString(),
	)
}

// MemoryLimitString renders the soft memory limit, "unlimited" when unset.
func (c RuntimeConfig) MemoryLimitString() string {
	if c.MemoryLimitBytes <= 0 {
		return "unlimited"
	}
	return FormatMemorySize(c.MemoryLimitBytes)
}

// Logger builds the zap logger described by the section.
func (c LoggingConfig) Logger(name string) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Name:        name,
		Level:       c.Level,
		Format:      c.Format,
		File:        c.File,
		MaxSizeMB:   c.MaxSizeMB,
		MaxBackups:  c.MaxBackups,
		MaxAgeDays:  c.MaxAgeDays,
		Compress:    c.Compress,
		Development: c.Development,
	})
}

// ApplyRuntime applies the memory settings to the Go runtime and configures
// the object pools. Should be called early in main().
func (c *RuntimeConfig) ApplyRuntime() {
	if c.MemoryLimitBytes > 0 {
		debug.SetMemoryLimit(c.MemoryLimitBytes)
	}
	if c.GCPercent != 100 {
		debug.SetGCPercent(c.GCPercent)
	}
	pool.Configure(pool.PoolConfig{
		Enabled: c.PoolEnabled,
		MaxSize: c.PoolMaxSize,
	})
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "1TB", "0", "unlimited"
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}

// FormatMemorySize formats bytes as human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
