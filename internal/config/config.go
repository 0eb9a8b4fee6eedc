package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Mock    MockConfig    `yaml:"mock" mapstructure:"mock"`
	Audit   AuditConfig   `yaml:"audit" mapstructure:"audit"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"` // host:port to listen on
}

// StorageConfig holds rule store configuration
type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"`               // "sql", "file" or "memory"
	DatabaseURL string `yaml:"databaseUrl" mapstructure:"databaseUrl"` // SQLite path or mysql://dsn
	Path        string `yaml:"path" mapstructure:"path"`               // Directory for file storage
}

// MockConfig holds settings for resolving responses
type MockConfig struct {
	ConfigFile string `yaml:"configFile" mapstructure:"configFile"` // Router list document
	StorePath  string `yaml:"storePath" mapstructure:"storePath"`   // Root directory of response files
	Mode       string `yaml:"mode" mapstructure:"mode"`             // Response file suffix, e.g. "error"
}

// AuditConfig holds request audit configuration
type AuditConfig struct {
	MaxRecords int `yaml:"maxRecords" mapstructure:"maxRecords"` // Records kept in memory
	QueueSize  int `yaml:"queueSize" mapstructure:"queueSize"`   // Pending writes before records are dropped
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"` // Optional rotated log file
}

// Storage types
const (
	StorageSQL    = "sql"
	StorageFile   = "file"
	StorageMemory = "memory"
)

// DefaultStorePath is the response file root used when nothing else is set
const DefaultStorePath = "store"

// Default returns the default configuration
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	return &Config{
		Server: ServerConfig{
			Addr: "0.0.0.0:3000",
		},
		Storage: StorageConfig{
			Type:        StorageSQL,
			DatabaseURL: filepath.Join(cwd, "database.db"),
			Path:        filepath.Join(cwd, "data"),
		},
		Mock: MockConfig{
			ConfigFile: "config.json",
			StorePath:  "", // Empty means the document's store_path, then "store"
		},
		Audit: AuditConfig{
			MaxRecords: 1000,
			QueueSize:  256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ResolveStorePath picks the response root: explicit setting, then the
// document's store_path, then "store"
func (c *Config) ResolveStorePath(documentStorePath string) string {
	if c.Mock.StorePath != "" {
		return c.Mock.StorePath
	}
	if documentStorePath != "" {
		return documentStorePath
	}
	return DefaultStorePath
}

// ResolveMode picks the response mode: explicit setting, then the document's
func (c *Config) ResolveMode(documentMode string) string {
	if c.Mock.Mode != "" {
		return c.Mock.Mode
	}
	return documentMode
}
