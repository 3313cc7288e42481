package usage

import (
	"fmt"
	"os"
	"time"

	"github.com/nikiz24/usage/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	StorageBackendMemory = "memory"
	StorageBackendRedis  = "redis"
)

// Config defines the configuration of the usage library
type Config struct {
	// Service identification
	Namespace   string `yaml:"namespace"`
	ServiceName string `yaml:"service_name"`
	Version     string `yaml:"version"`

	// UploadEnabled gates every recording call
	UploadEnabled bool `yaml:"upload_enabled"`

	// Labels added to every assembled time series
	CustomLabels map[string]string `yaml:"custom_labels"`

	Storage StorageConfig `yaml:"storage"`

	// ShutdownTimeout bounds how long Shutdown drains queued recordings
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Optional logger
	Logger *zap.Logger `yaml:"-"`

	// Store overrides Storage when set
	Store storage.Store `yaml:"-"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Namespace:       "app",
		ServiceName:     "service",
		UploadEnabled:   true,
		CustomLabels:    make(map[string]string),
		ShutdownTimeout: 5 * time.Second,
		Storage: StorageConfig{
			Backend:     StorageBackendMemory,
			RedisPrefix: "usage",
		},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
// Environment variables in the file are expanded.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for missing or conflicting values
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if c.Store != nil {
		return nil
	}
	switch c.Storage.Backend {
	case "", StorageBackendMemory:
	case StorageBackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage backend %q requires redis_addr", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}
