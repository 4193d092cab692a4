// Package mysql wraps a GORM connection to MySQL with retrying dial and pool
// settings.
package mysql

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client wraps a GORM DB instance.
type Client struct {
	db *gorm.DB
}

// NewClient opens a MySQL connection, retrying while the server comes up.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	gormConfig := &gorm.Config{
		// Writes go through explicit transactions only
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 newLogger(cfg.LogLevel),
	}

	var db *gorm.DB
	var err error

	for i := 0; i < cfg.ConnectRetries; i++ {
		db, err = gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
		if err == nil {
			// Try pinging to ensure connection is actually alive
			rawDB, pingErr := db.DB()
			if pingErr == nil {
				if err = rawDB.Ping(); err == nil {
					break // Connection successful
				}
			} else {
				err = pingErr
			}
		}

		if i < cfg.ConnectRetries-1 {
			slog.Warn("Failed to connect to MySQL, retrying",
				"attempt", i+1, "max_attempts", cfg.ConnectRetries, "error", err, "retry_in", cfg.RetryInterval)
			time.Sleep(cfg.RetryInterval)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", cfg.ConnectRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.db: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Client{db: db}, nil
}

// DB returns the underlying *gorm.DB.
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Close closes the connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// newLogger builds the GORM logger for a level name.
func newLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "info":
		logLevel = logger.Info
	case "warn":
		logLevel = logger.Warn
	case "error":
		logLevel = logger.Error
	case "silent":
		logLevel = logger.Silent
	default:
		logLevel = logger.Error // errors only
	}

	return logger.Default.LogMode(logLevel)
}
