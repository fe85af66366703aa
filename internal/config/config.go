package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

type Connection struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Settings tunes the shared database runtime. Zero values fall back to the
// built-in defaults.
type Settings struct {
	PoolMaxConns      int   `json:"pool_max_conns"`
	PoolMaxIdle       int   `json:"pool_max_idle"`
	ConnMaxLifetimeMs int64 `json:"conn_max_lifetime_ms"`
	LeaseTimeoutMs    int64 `json:"lease_timeout_ms"`
	CacheTTLMs        int64 `json:"cache_ttl_ms"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	OutputFile string `json:"output_file"`
	MaxSizeMB  int64  `json:"max_size_mb"`
	Console    bool   `json:"console"`
}

type Config struct {
	Connections       map[string]Connection `json:"connections"`
	DefaultConnection string                `json:"default_connection"`
	Settings          Settings              `json:"settings"`
	Logging           LoggingConfig         `json:"logging"`
}

const defaultCacheTTLMs = 30000

func LoadConfig() (*Config, error) {
	configPaths := getConfigPaths()

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			config, err := loadConfigFromFile(path)
			if err != nil {
				continue
			}
			config.applyEnvOverrides()
			return config, nil
		}
	}

	config := &Config{
		Connections: make(map[string]Connection),
	}
	config.applyEnvOverrides()

	return config, nil
}

func (c *Config) GetConnection(name string) (Connection, bool) {
	conn, exists := c.Connections[name]
	return conn, exists
}

func (c *Config) ListConnections() map[string]Connection {
	return c.Connections
}

func (c *Config) ValidateConnection(conn Connection) error {
	if conn.Name == "" {
		return fmt.Errorf("connection name is required")
	}
	if conn.Type == "" {
		return fmt.Errorf("connection type is required")
	}
	if conn.Type != "postgres" && conn.Type != "mysql" {
		return fmt.Errorf("connection type must be 'postgres' or 'mysql'")
	}
	if conn.URL == "" {
		return fmt.Errorf("connection URL is required")
	}
	return nil
}

// CacheTTL returns the metadata cache entry lifetime (default 30s).
func (c *Config) CacheTTL() time.Duration {
	ttl := c.Settings.CacheTTLMs
	if ttl <= 0 {
		ttl = defaultCacheTTLMs
	}
	return time.Duration(ttl) * time.Millisecond
}

// LeaseTimeout returns the bounded wait for a pool lease (0 = pool default).
func (c *Config) LeaseTimeout() time.Duration {
	return time.Duration(c.Settings.LeaseTimeoutMs) * time.Millisecond
}

// ConnMaxLifetime returns the maximum connection age (0 = pool default).
func (c *Config) ConnMaxLifetime() time.Duration {
	return time.Duration(c.Settings.ConnMaxLifetimeMs) * time.Millisecond
}

func (c *Config) applyEnvOverrides() {
	if raw := os.Getenv("DBBRIDGE_CACHE_TTL_MS"); raw != "" {
		if ttl, err := strconv.ParseInt(raw, 10, 64); err == nil && ttl > 0 {
			c.Settings.CacheTTLMs = ttl
		}
	}
}

func getConfigPaths() []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			paths = append(paths, filepath.Join(appData, "dbbridge", "connections.json"))
		}
	default:

		homeDir := os.Getenv("HOME")
		if homeDir != "" {
			paths = append(paths, filepath.Join(homeDir, ".config", "dbbridge", "connections.json"))
		}
	}

	if pwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(pwd, "connections.json"))
	}

	return paths
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	for name, conn := range config.Connections {
		conn.Name = name
		if err := config.ValidateConnection(conn); err != nil {
			return nil, fmt.Errorf("invalid connection %s: %v", name, err)
		}
	}

	return &config, nil
}
