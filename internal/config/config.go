package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the system-wide settings: database, HTTP listener, and
// websocket heartbeat tuning.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// DefaultConfig returns settings suitable for a single-host deployment.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./classboard.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	return nil
}

// LoadFromEnv returns the defaults overridden by CLASSBOARD_* environment
// variables.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("CLASSBOARD_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("CLASSBOARD_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("CLASSBOARD_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if readTimeout := os.Getenv("CLASSBOARD_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("CLASSBOARD_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}
	if dbTimeout := os.Getenv("CLASSBOARD_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}
	if pingInterval := os.Getenv("CLASSBOARD_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if wsReadTimeout := os.Getenv("CLASSBOARD_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if wsWriteTimeout := os.Getenv("CLASSBOARD_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("CLASSBOARD_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	return config
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	HTTP *struct {
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		Host         string `json:"host"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		BufferSize   int    `json:"buffer_size"`
	} `json:"websocket"`
}

// LoadFromFile reads a JSON config file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if cf.Database != nil {
		if cf.Database.Path != "" {
			config.Database.Path = cf.Database.Path
		}
		if cf.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(cf.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}
	if cf.HTTP != nil {
		if cf.HTTP.Port > 0 {
			config.HTTP.Port = cf.HTTP.Port
		}
		if cf.HTTP.Host != "" {
			config.HTTP.Host = cf.HTTP.Host
		}
		if cf.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(cf.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if cf.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(cf.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}
	if cf.WebSocket != nil {
		if cf.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = cf.WebSocket.BufferSize
		}
		if cf.WebSocket.PingInterval != "" {
			if interval, err := time.ParseDuration(cf.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = interval
			}
		}
		if cf.WebSocket.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(cf.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = timeout
			}
		}
		if cf.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(cf.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// LoadConfigWithPrecedence resolves settings as file > environment >
// defaults. File errors are ignored so a missing file falls back cleanly.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}
	return config
}
