package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Library  LibraryConfig  `toml:"library"`
	Logging  LoggingConfig  `toml:"logging"`
	Ngrok    NgrokConfig    `toml:"ngrok"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port           string `toml:"port"`
	Host           string `toml:"host"`
	APIPrefix      string `toml:"api_prefix"`
	EnableCORS     bool   `toml:"enable_cors"`
	RequestLogging bool   `toml:"request_logging"`
	ReadTimeout    int    `toml:"read_timeout_seconds"`
	WriteTimeout   int    `toml:"write_timeout_seconds"`
	IdleTimeout    int    `toml:"idle_timeout_seconds"`
}

// StorageConfig selects where uploaded audio bytes live
type StorageConfig struct {
	Backend     string      `toml:"backend"` // disk, memory or minio
	DataDir     string      `toml:"data_dir"`
	MaxUploadMB int64       `toml:"max_upload_mb"`
	Minio       MinioConfig `toml:"minio"`
}

// MinioConfig contains S3-compatible object storage settings
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Region    string `toml:"region"`
}

// DatabaseConfig contains track/playlist store configuration
type DatabaseConfig struct {
	Driver string `toml:"driver"` // memory or sqlite
	Path   string `toml:"path"`
}

// LibraryConfig contains upload pipeline settings
type LibraryConfig struct {
	PlaceholderMinSeconds int      `toml:"placeholder_min_seconds"`
	PlaceholderMaxSeconds int      `toml:"placeholder_max_seconds"`
	AllowedMimeTypes      []string `toml:"allowed_mime_types"`
	WatchUploads          bool     `toml:"watch_uploads"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "5000",
			Host:           "0.0.0.0",
			APIPrefix:      "/api",
			EnableCORS:     true,
			RequestLogging: true,
			ReadTimeout:    30,
			WriteTimeout:   0, // streaming responses may run long
			IdleTimeout:    120,
		},
		Storage: StorageConfig{
			Backend:     "disk",
			DataDir:     "./data",
			MaxUploadMB: 50,
			Minio: MinioConfig{
				Endpoint: "localhost:9000",
				Bucket:   "tunebox",
				Region:   "us-east-1",
			},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./data/tunebox.db",
		},
		Library: LibraryConfig{
			PlaceholderMinSeconds: 120,
			PlaceholderMaxSeconds: 419,
			AllowedMimeTypes:      []string{"audio/mpeg", "audio/wav", "audio/flac"},
			WatchUploads:          true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Ngrok: NgrokConfig{
			Enabled: false,
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies secrets from
// the environment (optionally populated from a .env file).
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides secrets with environment variables when they are set
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TUNEBOX_MINIO_ACCESS_KEY"); v != "" {
		c.Storage.Minio.AccessKey = v
	}
	if v := os.Getenv("TUNEBOX_MINIO_SECRET_KEY"); v != "" {
		c.Storage.Minio.SecretKey = v
	}
	if v := os.Getenv("NGROK_AUTHTOKEN"); v != "" && c.Ngrok.AuthToken == "" {
		c.Ngrok.AuthToken = v
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# tunebox configuration
# Secrets (MinIO keys, ngrok token) can also be provided through the
# environment or a .env file next to this one.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server timeouts cannot be negative")
	}

	switch c.Storage.Backend {
	case "disk", "memory":
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("minio backend requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be disk, memory, or minio)", c.Storage.Backend)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage data dir cannot be empty")
	}
	if c.Storage.MaxUploadMB < 1 {
		return fmt.Errorf("max upload size must be at least 1 MB")
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be memory or sqlite)", c.Database.Driver)
	}

	if c.Library.PlaceholderMinSeconds < 0 || c.Library.PlaceholderMaxSeconds < c.Library.PlaceholderMinSeconds {
		return fmt.Errorf("invalid placeholder duration bounds: %d-%d", c.Library.PlaceholderMinSeconds, c.Library.PlaceholderMaxSeconds)
	}
	if len(c.Library.AllowedMimeTypes) == 0 {
		return fmt.Errorf("at least one allowed mime type must be specified")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Ngrok.Enabled && c.Ngrok.AuthToken == "" {
		return fmt.Errorf("ngrok is enabled but no auth token was provided")
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// UploadDir returns the directory holding uploaded audio for the disk backend
func (c *Config) UploadDir() string {
	return filepath.Join(c.Storage.DataDir, "uploads")
}

// MaxUploadBytes returns the upload ceiling in bytes
func (c *Config) MaxUploadBytes() int64 {
	return c.Storage.MaxUploadMB * 1024 * 1024
}

// IsMimeTypeAllowed checks if an upload MIME type is accepted
func (c *Config) IsMimeTypeAllowed(mimeType string) bool {
	for _, allowed := range c.Library.AllowedMimeTypes {
		if allowed == mimeType {
			return true
		}
	}
	return false
}
