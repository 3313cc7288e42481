package usage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("USAGE_REDIS_ADDR", "127.0.0.1:6380")
	path := writeConfig(t, `
namespace: shop
service_name: checkout
upload_enabled: false
shutdown_timeout: 2s
custom_labels:
  region: eu
storage:
  backend: redis
  redis_addr: ${USAGE_REDIS_ADDR}
  redis_db: 3
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Namespace)
	assert.Equal(t, "checkout", cfg.ServiceName)
	assert.False(t, cfg.UploadEnabled)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, map[string]string{"region": "eu"}, cfg.CustomLabels)
	assert.Equal(t, StorageBackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "127.0.0.1:6380", cfg.Storage.RedisAddr)
	assert.Equal(t, 3, cfg.Storage.RedisDB)
	assert.Equal(t, "usage", cfg.Storage.RedisPrefix)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "service_name: api\n"))
	require.NoError(t, err)
	assert.True(t, cfg.UploadEnabled)
	assert.Equal(t, "app", cfg.Namespace)
	assert.Equal(t, StorageBackendMemory, cfg.Storage.Backend)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = LoadConfig(writeConfig(t, "service_name: [broken"))
	assert.ErrorContains(t, err, "parse config")

	_, err = LoadConfig(writeConfig(t, "service_name: \"\"\n"))
	assert.ErrorContains(t, err, "validate config")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no service", func(c *Config) { c.ServiceName = "" }, true},
		{"redis without addr", func(c *Config) { c.Storage.Backend = StorageBackendRedis }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }, true},
		{"empty backend", func(c *Config) { c.Storage.Backend = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
