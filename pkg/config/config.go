// Package config handles Nexus configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--http-port, --data-dir, etc.)
//  2. Environment variables (NEXUS_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("HTTP server: %s:%d\n", cfg.Server.Address, cfg.Server.HTTPPort)
//
// Environment Variables (all use NEXUS_ prefix):
//
// Server:
//   - NEXUS_ADDRESS="0.0.0.0"
//   - NEXUS_HTTP_PORT=7474
//   - NEXUS_MAX_REQUEST_SIZE="10MB"
//
// Database:
//   - NEXUS_DATA_DIR="./data"
//   - NEXUS_IN_MEMORY=true
//   - NEXUS_STATEMENT_TIMEOUT="30s"
//   - NEXUS_SESSION_TIMEOUT="30m"
//
// Plan cache:
//   - NEXUS_PLAN_CACHE_ENABLED=true
//   - NEXUS_PLAN_CACHE_MAX_ENTRIES=1000
//   - NEXUS_PLAN_CACHE_MAX_MEMORY="100MB"
//
// Vector search:
//   - NEXUS_VECTOR_DEFAULT_K=10
//   - NEXUS_VECTOR_METRIC="cosine"
//
// Logging:
//   - NEXUS_LOG_LEVEL="info"
//   - NEXUS_LOG_FORMAT="json"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Nexus configuration.
//
// Use LoadDefaults, LoadFromEnv or LoadFromFile to build one, then Validate it.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	PlanCache PlanCacheConfig
	Vector    VectorConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Address to bind to
	Address string
	// HTTPPort for HTTP connections (default 7474)
	HTTPPort int
	// ReadTimeout bounds reading a full request
	ReadTimeout time.Duration
	// WriteTimeout bounds writing a response
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration
	// MaxRequestSize is the largest accepted request body in bytes
	MaxRequestSize int64
}

// DatabaseConfig holds storage and execution settings.
type DatabaseConfig struct {
	// DataDir is the directory for badger data files
	DataDir string
	// InMemory keeps all data in memory (no persistence)
	InMemory bool
	// SyncWrites fsyncs every commit
	SyncWrites bool
	// StatementTimeout cancels statements that run longer (0 disables)
	StatementTimeout time.Duration
	// SessionTimeout expires idle sessions and rolls back their transactions
	SessionTimeout time.Duration
	// SlowQueryThreshold for logging slow statements
	SlowQueryThreshold time.Duration
}

// PlanCacheConfig holds compiled plan cache settings.
type PlanCacheConfig struct {
	Enabled        bool
	MaxEntries     int
	MaxMemoryBytes int64
}

// VectorConfig holds vector search settings.
type VectorConfig struct {
	// DefaultK is used when a vector.knn call passes no k
	DefaultK int
	// Metric is the similarity function: cosine, euclidean or dot.
	Metric string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error)
	Level string
	// Format (json, text)
	Format string
	// Output path (stdout, stderr, or file path)
	Output string
}

// HTTPAddr returns the host:port the HTTP server listens on.
func (s ServerConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.HTTPPort)
}

// LoadDefaults returns a Config with built-in defaults only.
func LoadDefaults() *Config {
	config := &Config{}

	config.Server.Address = "0.0.0.0"
	config.Server.HTTPPort = 7474
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 60 * time.Second
	config.Server.IdleTimeout = 2 * time.Minute
	config.Server.MaxRequestSize = 10 * 1024 * 1024

	config.Database.DataDir = "./data"
	config.Database.InMemory = false
	config.Database.SyncWrites = false
	config.Database.StatementTimeout = 30 * time.Second
	config.Database.SessionTimeout = 30 * time.Minute
	config.Database.SlowQueryThreshold = 100 * time.Millisecond

	config.PlanCache.Enabled = true
	config.PlanCache.MaxEntries = 1000
	config.PlanCache.MaxMemoryBytes = 100 * 1024 * 1024

	config.Vector.DefaultK = 10
	config.Vector.Metric = "cosine"

	config.Logging.Level = "info"
	config.Logging.Format = "text"
	config.Logging.Output = "stderr"

	return config
}

// LoadFromEnv returns defaults overridden by NEXUS_* environment variables.
func LoadFromEnv() *Config {
	config := LoadDefaults()
	applyEnvVars(config)
	return config
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}
	if c.Server.MaxRequestSize <= 0 {
		return fmt.Errorf("invalid max request size: %d", c.Server.MaxRequestSize)
	}
	if !c.Database.InMemory && c.Database.DataDir == "" {
		return fmt.Errorf("data directory is required unless in_memory is set")
	}
	if c.Database.StatementTimeout < 0 {
		return fmt.Errorf("invalid statement timeout: %s", c.Database.StatementTimeout)
	}
	if c.Database.SessionTimeout <= 0 {
		return fmt.Errorf("invalid session timeout: %s", c.Database.SessionTimeout)
	}
	if c.PlanCache.Enabled && c.PlanCache.MaxEntries <= 0 {
		return fmt.Errorf("invalid plan cache max entries: %d", c.PlanCache.MaxEntries)
	}
	if c.Vector.DefaultK <= 0 {
		return fmt.Errorf("invalid vector default k: %d", c.Vector.DefaultK)
	}
	switch strings.ToLower(c.Vector.Metric) {
	case "cosine", "euclidean", "dot":
	default:
		return fmt.Errorf("invalid vector metric: %q", c.Vector.Metric)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// String returns a representation of the Config that is safe to log.
func (c *Config) String() string {
	storage := c.Database.DataDir
	if c.Database.InMemory {
		storage = "memory"
	}
	return fmt.Sprintf(
		"Config{HTTP: %s, Storage: %s, StatementTimeout: %s, PlanCache: %v/%d/%s, Log: %s}",
		c.Server.HTTPAddr(),
		storage,
		c.Database.StatementTimeout,
		c.PlanCache.Enabled, c.PlanCache.MaxEntries, FormatMemorySize(c.PlanCache.MaxMemoryBytes),
		c.Logging.Level,
	)
}

// YAMLConfig represents the YAML configuration file structure.
// Durations and sizes are strings ("30s", "100MB").
type YAMLConfig struct {
	Server struct {
		Host           string `yaml:"host"`
		Address        string `yaml:"address"` // Alias for host
		HTTPPort       int    `yaml:"http_port"`
		Port           int    `yaml:"port"` // Alias for http_port
		ReadTimeout    string `yaml:"read_timeout"`
		WriteTimeout   string `yaml:"write_timeout"`
		IdleTimeout    string `yaml:"idle_timeout"`
		MaxRequestSize string `yaml:"max_request_size"`
	} `yaml:"server"`

	Database struct {
		DataDir            string `yaml:"data_dir"`
		InMemory           *bool  `yaml:"in_memory"`
		SyncWrites         *bool  `yaml:"sync_writes"`
		StatementTimeout   string `yaml:"statement_timeout"`
		SessionTimeout     string `yaml:"session_timeout"`
		SlowQueryThreshold string `yaml:"slow_query_threshold"`
	} `yaml:"database"`

	// Storage alias for database
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	PlanCache struct {
		Enabled    *bool  `yaml:"enabled"`
		MaxEntries int    `yaml:"max_entries"`
		MaxMemory  string `yaml:"max_memory"`
	} `yaml:"plan_cache"`

	Vector struct {
		DefaultK int    `yaml:"default_k"`
		Metric   string `yaml:"metric"`
	} `yaml:"vector"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
}

// LoadFromFile loads configuration with proper precedence:
//  1. Built-in defaults (lowest priority)
//  2. YAML config file
//  3. Environment variables (highest priority before CLI args)
//
// A missing file is not an error; defaults and environment still apply.
//
// Example YAML:
//
//	server:
//	  host: "localhost"
//	  http_port: 7474
//	database:
//	  data_dir: "/var/lib/nexus"
//	  statement_timeout: "10s"
//	plan_cache:
//	  max_memory: "64MB"
func LoadFromFile(configPath string) (*Config, error) {
	config := LoadDefaults()

	if configPath == "" {
		applyEnvVars(config)
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvVars(config)
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := applyYAML(config, &yamlCfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	applyEnvVars(config)
	return config, nil
}

func applyYAML(config *Config, y *YAMLConfig) error {
	// === Server Settings ===
	if y.Server.Host != "" {
		config.Server.Address = y.Server.Host
	}
	if y.Server.Address != "" {
		config.Server.Address = y.Server.Address
	}
	if y.Server.Port > 0 {
		config.Server.HTTPPort = y.Server.Port
	}
	if y.Server.HTTPPort > 0 {
		config.Server.HTTPPort = y.Server.HTTPPort
	}
	if err := setDuration(&config.Server.ReadTimeout, "server.read_timeout", y.Server.ReadTimeout); err != nil {
		return err
	}
	if err := setDuration(&config.Server.WriteTimeout, "server.write_timeout", y.Server.WriteTimeout); err != nil {
		return err
	}
	if err := setDuration(&config.Server.IdleTimeout, "server.idle_timeout", y.Server.IdleTimeout); err != nil {
		return err
	}
	if y.Server.MaxRequestSize != "" {
		config.Server.MaxRequestSize = parseMemorySize(y.Server.MaxRequestSize)
	}

	// === Database Settings ===
	if y.Storage.Path != "" {
		config.Database.DataDir = y.Storage.Path
	}
	if y.Database.DataDir != "" {
		config.Database.DataDir = y.Database.DataDir
	}
	if y.Database.InMemory != nil {
		config.Database.InMemory = *y.Database.InMemory
	}
	if y.Database.SyncWrites != nil {
		config.Database.SyncWrites = *y.Database.SyncWrites
	}
	if err := setDuration(&config.Database.StatementTimeout, "database.statement_timeout", y.Database.StatementTimeout); err != nil {
		return err
	}
	if err := setDuration(&config.Database.SessionTimeout, "database.session_timeout", y.Database.SessionTimeout); err != nil {
		return err
	}
	if err := setDuration(&config.Database.SlowQueryThreshold, "database.slow_query_threshold", y.Database.SlowQueryThreshold); err != nil {
		return err
	}

	// === Plan Cache Settings ===
	if y.PlanCache.Enabled != nil {
		config.PlanCache.Enabled = *y.PlanCache.Enabled
	}
	if y.PlanCache.MaxEntries > 0 {
		config.PlanCache.MaxEntries = y.PlanCache.MaxEntries
	}
	if y.PlanCache.MaxMemory != "" {
		config.PlanCache.MaxMemoryBytes = parseMemorySize(y.PlanCache.MaxMemory)
	}

	if y.Vector.DefaultK > 0 {
		config.Vector.DefaultK = y.Vector.DefaultK
	}
	if y.Vector.Metric != "" {
		config.Vector.Metric = y.Vector.Metric
	}

	// === Logging Settings ===
	if y.Logging.Level != "" {
		config.Logging.Level = y.Logging.Level
	}
	if y.Logging.Format != "" {
		config.Logging.Format = y.Logging.Format
	}
	if y.Logging.Output != "" {
		config.Logging.Output = y.Logging.Output
	}
	return nil
}

func setDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func applyEnvVars(config *Config) {
	if v := getEnv("NEXUS_ADDRESS", ""); v != "" {
		config.Server.Address = v
	}
	if v := getEnvInt("NEXUS_HTTP_PORT", 0); v > 0 {
		config.Server.HTTPPort = v
	}
	config.Server.ReadTimeout = getEnvDuration("NEXUS_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getEnvDuration("NEXUS_WRITE_TIMEOUT", config.Server.WriteTimeout)
	config.Server.IdleTimeout = getEnvDuration("NEXUS_IDLE_TIMEOUT", config.Server.IdleTimeout)
	if v := getEnv("NEXUS_MAX_REQUEST_SIZE", ""); v != "" {
		config.Server.MaxRequestSize = parseMemorySize(v)
	}

	if v := getEnv("NEXUS_DATA_DIR", ""); v != "" {
		config.Database.DataDir = v
	}
	config.Database.InMemory = getEnvBool("NEXUS_IN_MEMORY", config.Database.InMemory)
	config.Database.SyncWrites = getEnvBool("NEXUS_SYNC_WRITES", config.Database.SyncWrites)
	config.Database.StatementTimeout = getEnvDuration("NEXUS_STATEMENT_TIMEOUT", config.Database.StatementTimeout)
	config.Database.SessionTimeout = getEnvDuration("NEXUS_SESSION_TIMEOUT", config.Database.SessionTimeout)
	config.Database.SlowQueryThreshold = getEnvDuration("NEXUS_SLOW_QUERY_THRESHOLD", config.Database.SlowQueryThreshold)

	config.PlanCache.Enabled = getEnvBool("NEXUS_PLAN_CACHE_ENABLED", config.PlanCache.Enabled)
	if v := getEnvInt("NEXUS_PLAN_CACHE_MAX_ENTRIES", 0); v > 0 {
		config.PlanCache.MaxEntries = v
	}
	if v := getEnv("NEXUS_PLAN_CACHE_MAX_MEMORY", ""); v != "" {
		config.PlanCache.MaxMemoryBytes = parseMemorySize(v)
	}

	if v := getEnvInt("NEXUS_VECTOR_DEFAULT_K", 0); v > 0 {
		config.Vector.DefaultK = v
	}
	config.Vector.Metric = getEnv("NEXUS_VECTOR_METRIC", config.Vector.Metric)

	config.Logging.Level = getEnv("NEXUS_LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnv("NEXUS_LOG_FORMAT", config.Logging.Format)
	config.Logging.Output = getEnv("NEXUS_LOG_OUTPUT", config.Logging.Output)
}

// ApplyEnvVars applies environment variable overrides to an existing config.
func ApplyEnvVars(config *Config) {
	applyEnvVars(config)
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first one found, or empty string if none found.
// Search order:
//  1. ~/.nexus/config.yaml
//  2. Same directory as the binary (config.yaml, nexus.yaml)
//  3. Current working directory (config.yaml, nexus.yaml)
//  4. ~/.config/nexus/config.yaml (XDG)
func FindConfigFile() string {
	var candidates []string

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".nexus", "config.yaml"))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "config.yaml"),
			filepath.Join(exeDir, "nexus.yaml"),
		)
	}

	candidates = append(candidates, "config.yaml", "nexus.yaml")

	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "nexus", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
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

	val, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
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
