package mysql

import (
	"fmt"
	"time"
)

// Config defines the MySQL connection and pool settings.
type Config struct {
	Host     string `yaml:"host" env:"MYSQL_HOST"` // database host
	Port     int    `yaml:"port" env:"MYSQL_PORT"` // database port (default 3306)
	User     string `yaml:"user" env:"MYSQL_USER"`
	Password string `yaml:"password" env:"MYSQL_PASSWORD"`
	DBName   string `yaml:"dbname" env:"MYSQL_DATABASE"`

	// Connection pool
	// See: https://github.com/go-sql-driver/mysql#important-settings
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MYSQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MYSQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"MYSQL_CONN_MAX_LIFETIME"`

	// ConnectRetries is how many times NewClient dials before giving up.
	ConnectRetries int           `yaml:"connect_retries" env:"MYSQL_CONNECT_RETRIES"`
	RetryInterval  time.Duration `yaml:"retry_interval" env:"MYSQL_RETRY_INTERVAL"`

	// GORM log level: "silent", "error", "warn", "info"
	LogLevel string `yaml:"log_level" env:"MYSQL_LOG_LEVEL"`
}

// DSN builds the data source name.
// Format: user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=UTC
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Port == 0 {
		out.Port = 3306
	}
	if out.MaxOpenConns == 0 {
		out.MaxOpenConns = 20
	}
	if out.MaxIdleConns == 0 {
		out.MaxIdleConns = 10
	}
	if out.ConnMaxLifetime == 0 {
		out.ConnMaxLifetime = time.Hour
	}
	if out.ConnectRetries == 0 {
		out.ConnectRetries = 10
	}
	if out.RetryInterval == 0 {
		out.RetryInterval = 2 * time.Second
	}
	return out
}
