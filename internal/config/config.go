// Package config loads server configuration from a YAML file, an optional
// .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/ledgerbank/internal/bank"
	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/pkg/mysql"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	LogLevel string        `yaml:"log_level" env:"LOG_LEVEL"`
	Storage  StorageConfig `yaml:"storage"`
	MySQL    mysql.Config  `yaml:"mysql"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	Auth     AuthConfig    `yaml:"auth"`
	Kafka    KafkaConfig   `yaml:"kafka"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"SERVER_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

type StorageConfig struct {
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"DB_PATH"`
}

// LedgerConfig holds the business policies.
type LedgerConfig struct {
	// Overdraft is "reject" or "allow".
	Overdraft string `yaml:"overdraft" env:"LEDGER_OVERDRAFT"`
	// DeletePolicy is "reject" or "cascade".
	DeletePolicy string `yaml:"delete_policy" env:"LEDGER_DELETE_POLICY"`
}

type AuthConfig struct {
	JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL       time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	BankerUsername string        `yaml:"banker_username" env:"BANKER_USERNAME"`
	BankerPassword string        `yaml:"banker_password" env:"BANKER_PASSWORD"`
}

// KafkaConfig enables event publishing when Brokers is not empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
}

// Load reads path (skipped if it does not exist), then .env from the working
// directory, then the environment. Defaults fill whatever is still unset.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/ledger.db"
	}
	if c.Ledger.Overdraft == "" {
		c.Ledger.Overdraft = models.RejectOverdraft.String()
	}
	if c.Ledger.DeletePolicy == "" {
		c.Ledger.DeletePolicy = bank.RejectDelete.String()
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.BankerUsername == "" {
		c.Auth.BankerUsername = "banker"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverMemory:
	case DriverMySQL:
		if c.MySQL.Host == "" || c.MySQL.DBName == "" {
			return errors.New("config: mysql.host and mysql.dbname are required for the mysql driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	if _, err := models.ParseOverdraftPolicy(c.Ledger.Overdraft); err != nil {
		return fmt.Errorf("config: ledger.overdraft: %w", err)
	}
	if _, err := bank.ParseDeletePolicy(c.Ledger.DeletePolicy); err != nil {
		return fmt.Errorf("config: ledger.delete_policy: %w", err)
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: auth.jwt_secret (JWT_SECRET) is required")
	}
	if c.Auth.TokenTTL < 0 {
		return errors.New("config: auth.token_ttl must be positive")
	}
	return nil
}

// OverdraftPolicy returns the parsed ledger.overdraft setting.
func (c *Config) OverdraftPolicy() models.OverdraftPolicy {
	p, _ := models.ParseOverdraftPolicy(c.Ledger.Overdraft)
	return p
}

// DeletePolicy returns the parsed ledger.delete_policy setting.
func (c *Config) DeletePolicy() bank.DeletePolicy {
	p, _ := bank.ParseDeletePolicy(c.Ledger.DeletePolicy)
	return p
}
