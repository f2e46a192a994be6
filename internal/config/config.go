// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DataDir            string
	ProfilesPath       string
	APIProfilesPath    string
	DatabasePath       string
	KeyPath            string
	ProfilesDir        string
	DefaultConfigDir   string
	VaultService       string
	LogLevel           string
	LogFormat          string
	SessionThreshold   float64
	WeeklyThreshold    float64
	UsageCheckInterval time.Duration
	WatchStore         bool
	Notifications      bool
}

// FileConfig is the layout of config.toml in the data directory.
type FileConfig struct {
	ProfilesDir        string  `toml:"profiles_dir"`
	DefaultConfigDir   string  `toml:"default_config_dir"`
	DatabasePath       string  `toml:"database_path"`
	VaultService       string  `toml:"vault_service"`
	LogLevel           string  `toml:"log_level"`
	LogFormat          string  `toml:"log_format"`
	UsageCheckInterval string  `toml:"usage_check_interval"`
	SessionThreshold   float64 `toml:"session_threshold"`
	WeeklyThreshold    float64 `toml:"weekly_threshold"`
	WatchStore         *bool   `toml:"watch_store"`
	Notifications      *bool   `toml:"notifications"`
}

// Default values
const (
	defaultSessionThreshold   = 95
	defaultWeeklyThreshold    = 99
	defaultUsageCheckInterval = 30 * time.Second
	defaultVaultService       = "agent-profiles"
	configFileName            = "config.toml"
)

// Load reads configuration with priority: environment (including .env files) > config.toml > defaults.
func Load() (*Config, error) {
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	dataDir := expandHome(getEnvString("AGENT_PROFILES_DATA_DIR", getDefaultDataDir()))

	file, err := loadConfigFile(filepath.Join(dataDir, configFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", configFileName, err)
	}
	if file == nil {
		file = &FileConfig{}
	}

	home, _ := os.UserHomeDir()
	cfg := &Config{
		DataDir:          dataDir,
		ProfilesPath:     filepath.Join(dataDir, "profiles.json"),
		APIProfilesPath:  filepath.Join(dataDir, "api-profiles.yaml"),
		KeyPath:          filepath.Join(dataDir, "token.key"),
		DatabasePath:     getConfigString("AGENT_PROFILES_DATABASE_PATH", file.DatabasePath, filepath.Join(dataDir, "history.db")),
		ProfilesDir:      getConfigString("AGENT_PROFILES_PROFILES_DIR", file.ProfilesDir, filepath.Join(home, ".claude-profiles")),
		DefaultConfigDir: getConfigString("CLAUDE_CONFIG_DIR", file.DefaultConfigDir, filepath.Join(home, ".claude")),
		VaultService:     getConfigString("AGENT_PROFILES_VAULT_SERVICE", file.VaultService, defaultVaultService),
		LogLevel:         getConfigString("LOG_LEVEL", file.LogLevel, "info"),
		LogFormat:        getConfigString("LOG_FORMAT", file.LogFormat, "text"),
		SessionThreshold: getConfigFloat64("AGENT_PROFILES_SESSION_THRESHOLD", file.SessionThreshold, defaultSessionThreshold),
		WeeklyThreshold:  getConfigFloat64("AGENT_PROFILES_WEEKLY_THRESHOLD", file.WeeklyThreshold, defaultWeeklyThreshold),
		WatchStore:       getConfigBool("AGENT_PROFILES_WATCH", file.WatchStore, true),
		Notifications:    getConfigBool("AGENT_PROFILES_NOTIFY", file.Notifications, true),
	}

	interval := defaultUsageCheckInterval
	if d, err := time.ParseDuration(file.UsageCheckInterval); err == nil && d > 0 {
		interval = d
	}
	cfg.UsageCheckInterval = getEnvDuration("AGENT_PROFILES_USAGE_INTERVAL", interval)

	cfg.DatabasePath = expandHome(cfg.DatabasePath)
	cfg.ProfilesDir = expandHome(cfg.ProfilesDir)
	cfg.DefaultConfigDir = expandHome(cfg.DefaultConfigDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := ensureDir(cfg.DataDir); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.SessionThreshold <= 0 || c.SessionThreshold > 100 {
		return fmt.Errorf("session threshold must be within (0, 100], got %v", c.SessionThreshold)
	}
	if c.WeeklyThreshold <= 0 || c.WeeklyThreshold > 100 {
		return fmt.Errorf("weekly threshold must be within (0, 100], got %v", c.WeeklyThreshold)
	}
	return nil
}

// loadConfigFile loads config.toml if it exists.
// Returns nil if the file doesn't exist.
func loadConfigFile(path string) (*FileConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "agent-profiles", ".env"))
	}

	return paths
}

// getDefaultDataDir returns the default directory for the store, key and database.
func getDefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agent-profiles"
	}
	return filepath.Join(home, ".config", "agent-profiles")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getConfigString returns the value with priority: env var > config file > default.
func getConfigString(envKey, configValue, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}

// getConfigFloat64 returns the value with priority: env var > config file > default.
func getConfigFloat64(envKey string, configValue, defaultValue float64) float64 {
	if v := os.Getenv(envKey); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// getConfigBool returns the value with priority: env var > config file > default.
func getConfigBool(envKey string, configValue *bool, defaultValue bool) bool {
	if v := os.Getenv(envKey); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	if configValue != nil {
		return *configValue
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func expandHome(path string) string {
	if path != "~" && (len(path) < 2 || path[:2] != "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o700)
}
