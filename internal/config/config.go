// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/growin/growin/internal/modules/portfolio"
	"github.com/growin/growin/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	BackendURL     string // Base URL of the growin backend service
	AccountType    string // Account filter used by the live poller: all, invest or isa
	PollInterval   time.Duration
	ReconnectDelay time.Duration // Fixed delay between chart socket reconnect attempts
	HTTPTimeout    time.Duration
	DataDir        string   // Directory holding the response cache database (always absolute)
	Port           int      // Local API port
	CacheCleanup   string   // Cron schedule for expired cache cleanup
	WatchSymbols   []string // Chart streams started with the server
	LogLevel       string
	DevMode        bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("GROWIN_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".growin")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		BackendURL:     getEnv("GROWIN_BACKEND_URL", "http://127.0.0.1:8002"),
		AccountType:    getEnv("GROWIN_ACCOUNT_TYPE", string(portfolio.AccountAll)),
		PollInterval:   getEnvAsDuration("GROWIN_POLL_INTERVAL", 30*time.Second),
		ReconnectDelay: getEnvAsDuration("GROWIN_RECONNECT_DELAY", 5*time.Second),
		HTTPTimeout:    getEnvAsDuration("GROWIN_HTTP_TIMEOUT", 30*time.Second),
		DataDir:        absDataDir,
		Port:           getEnvAsInt("GROWIN_PORT", 8090),
		CacheCleanup:   getEnv("GROWIN_CACHE_CLEANUP", "@hourly"),
		WatchSymbols:   utils.ParseCSV(getEnv("GROWIN_WATCH", "")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid GROWIN_BACKEND_URL %q: must be an absolute http(s) URL", c.BackendURL)
	}
	if _, err := portfolio.ParseAccountFilter(c.AccountType); err != nil {
		return fmt.Errorf("invalid GROWIN_ACCOUNT_TYPE: %w", err)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("GROWIN_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("GROWIN_RECONNECT_DELAY must be positive, got %s", c.ReconnectDelay)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("GROWIN_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GROWIN_PORT out of range: %d", c.Port)
	}
	return nil
}

// CachePath returns the location of the response cache database.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "client_data.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("30s") or a bare number of seconds ("30").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
