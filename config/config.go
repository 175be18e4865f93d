package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int
	Host string
	Env  string // "development" or "production"

	// Data directory (registry, per-account homes, logs live under here)
	DataDir string

	// Codex CLI
	CodexBin            string // override path to the codex binary; empty means $PATH lookup
	QuotaTimeoutSeconds int
	QuotaCacheTTL       int // seconds

	// Debug settings
	DebugModules string
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	dataDir := getEnv("CAS_DATA_DIR", defaultDataDir())

	return &Config{
		// Server
		Port: getEnvInt("PORT", 45110),
		Host: getEnv("HOST", "127.0.0.1"),
		Env:  getEnv("ENV", "development"),

		// Data
		DataDir: dataDir,

		// Codex CLI
		CodexBin:            getEnv("CAS_CODEX_BIN", ""),
		QuotaTimeoutSeconds: getEnvInt("CAS_QUOTA_TIMEOUT_SECONDS", 30),
		QuotaCacheTTL:       getEnvInt("CAS_QUOTA_CACHE_TTL_SECONDS", 60),

		// Debug
		DebugModules: getEnv("DEBUG", ""),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "codex-accounts-switch")
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// RegistryDir returns the directory holding the JSON registry files
func (c *Config) RegistryDir() string {
	return filepath.Join(c.DataDir, "registry")
}

// AccountsRoot returns the directory under which per-account codex homes are created
func (c *Config) AccountsRoot() string {
	return filepath.Join(c.DataDir, "accounts")
}

// LogsDir returns the directory for application log files
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
