package database

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds sqlite settings for the message store.
type Config struct {
	DatabasePath    string        `json:"database_path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// DefaultConfig returns settings sized for a single school's traffic.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/classboard.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	return nil
}

// SQLite pragmas applied to every connection. WAL keeps reads concurrent
// while the store funnels writes through a single goroutine.
const sqliteOptimizations = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -64000;
	PRAGMA temp_store = MEMORY;
	PRAGMA foreign_keys = ON;
	PRAGMA busy_timeout = 5000;
`

// ApplyOptimizations applies the pragmas to an open database.
func ApplyOptimizations(db *sql.DB) error {
	_, err := db.Exec(sqliteOptimizations)
	return err
}
