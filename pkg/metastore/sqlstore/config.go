package sqlstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Dialect defines the supported database backends.
type Dialect string

const (
	// DialectSQLite uses SQLite (single-node, default).
	DialectSQLite Dialect = "sqlite"

	// DialectPostgres uses PostgreSQL.
	DialectPostgres Dialect = "postgres"

	// DialectMySQL uses MySQL or MariaDB.
	DialectMySQL Dialect = "mysql"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	Path string
}

// ServerConfig contains the connection settings shared by the PostgreSQL and
// MySQL backends.
type ServerConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string // postgres only: disable, require, verify-ca, verify-full
	MaxOpenConns int
	MaxIdleConns int
}

// Config contains database configuration for the metadata store.
type Config struct {
	Dialect  Dialect
	SQLite   SQLiteConfig
	Postgres ServerConfig
	MySQL    ServerConfig
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	p := c.Postgres
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		p.Host, p.Port, p.User, p.Password, p.Database)
	if p.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", p.SSLMode)
	}
	return dsn
}

// MySQLDSN returns the MySQL connection string.
func (c *Config) MySQLDSN() string {
	m := c.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.User, m.Password, m.Host, m.Port, m.Database)
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Dialect == "" {
		c.Dialect = DialectSQLite
	}

	if c.Dialect == DialectSQLite && c.SQLite.Path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, _ := os.UserHomeDir()
			configDir = filepath.Join(homeDir, ".config")
		}
		c.SQLite.Path = filepath.Join(configDir, "lazurite", "metadata.db")
	}

	if c.Dialect == DialectPostgres {
		applyServerDefaults(&c.Postgres, 5432)
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
	}
	if c.Dialect == DialectMySQL {
		applyServerDefaults(&c.MySQL, 3306)
	}
}

func applyServerDefaults(s *ServerConfig, port int) {
	if s.Port == 0 {
		s.Port = port
	}
	if s.MaxOpenConns == 0 {
		s.MaxOpenConns = 25
	}
	if s.MaxIdleConns == 0 {
		s.MaxIdleConns = 5
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Dialect {
	case DialectSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DialectPostgres:
		return validateServer(&c.Postgres, "postgres")
	case DialectMySQL:
		return validateServer(&c.MySQL, "mysql")
	default:
		return fmt.Errorf("unsupported database dialect: %s", c.Dialect)
	}
	return nil
}

func validateServer(s *ServerConfig, name string) error {
	if s.Host == "" {
		return fmt.Errorf("%s host is required", name)
	}
	if s.Database == "" {
		return fmt.Errorf("%s database is required", name)
	}
	if s.User == "" {
		return fmt.Errorf("%s user is required", name)
	}
	return nil
}

// FromEnv builds a Config from the AZURITE_DB_* environment variables:
// AZURITE_DB_DIALECT, AZURITE_DB_HOSTNAME, AZURITE_DB_NAME,
// AZURITE_DB_USERNAME and AZURITE_DB_PASSWORD. Unset variables fall back to
// the defaults of ApplyDefaults.
func FromEnv() *Config {
	v := viper.New()
	v.SetEnvPrefix("azurite_db")
	v.AutomaticEnv()

	cfg := &Config{}
	switch v.GetString("dialect") {
	case "mysql", "mariadb":
		cfg.Dialect = DialectMySQL
		cfg.MySQL = serverFromEnv(v)
	case "postgres", "postgresql":
		cfg.Dialect = DialectPostgres
		cfg.Postgres = serverFromEnv(v)
	default:
		cfg.Dialect = DialectSQLite
	}

	cfg.ApplyDefaults()
	return cfg
}

func serverFromEnv(v *viper.Viper) ServerConfig {
	return ServerConfig{
		Host:     v.GetString("hostname"),
		Database: v.GetString("name"),
		User:     v.GetString("username"),
		Password: v.GetString("password"),
	}
}
