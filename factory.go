package usage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/eryajf/promwrite"
	"github.com/nikiz24/usage/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Global usage instance
var (
	globalMu        sync.Mutex
	globalContext   = newEmptyContext(nil)
	globalConfig    Config
	globalAssembler *PingAssembler
	globalCloser    io.Closer
)

// Init initializes the global usage context
func Init(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	store, closer, err := openStore(config)
	if err != nil {
		return err
	}

	if err := globalContext.Initialize(Dependencies{
		Store:         store,
		UploadEnabled: config.UploadEnabled,
		Logger:        config.Logger,
	}); err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return err
	}

	globalConfig = config
	globalAssembler = NewPingAssembler(config, globalContext)
	globalCloser = closer

	globalContext.Logger().Info("usage system initialized",
		zap.String("namespace", config.Namespace),
		zap.String("service", config.ServiceName),
		zap.String("storage", storageBackend(config)))
	return nil
}

func storageBackend(config Config) string {
	if config.Store != nil {
		return "custom"
	}
	if config.Storage.Backend == "" {
		return StorageBackendMemory
	}
	return config.Storage.Backend
}

// openStore builds the configured store. The closer is nil unless the store
// owns a connection.
func openStore(config Config) (storage.Store, io.Closer, error) {
	if config.Store != nil {
		return config.Store, nil, nil
	}

	switch storageBackend(config) {
	case StorageBackendMemory:
		return storage.NewMemory(), nil, nil
	case StorageBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.Storage.RedisAddr,
			Password: config.Storage.RedisPassword,
			DB:       config.Storage.RedisDB,
		})
		return storage.NewRedis(client, config.Storage.RedisPrefix), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}
}

// Default returns the process-wide context used by the package-level helpers
func Default() *Context {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalContext
}

// NewCounter declares a counter bound to the global context
func NewCounter(data CommonMetricData) *CounterMetric {
	return NewCounterMetric(Default(), data)
}

// SetUploadEnabled enables or disables recording on the global context
func SetUploadEnabled(enabled bool) {
	Default().SetUploadEnabled(enabled)
}

// AssemblePing collects the current values of bucket from the global context
func AssemblePing(ctx context.Context, bucket string) (*promwrite.WriteRequest, error) {
	globalMu.Lock()
	assembler := globalAssembler
	globalMu.Unlock()

	if assembler == nil {
		return nil, ErrNotInitialized
	}
	return assembler.Assemble(ctx, bucket)
}

// Shutdown drains queued recordings and releases the store connection.
// The global context can be initialized again afterwards.
func Shutdown(ctx context.Context) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalConfig.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, globalConfig.ShutdownTimeout)
		defer cancel()
	}

	err := globalContext.shutdown(ctx)
	if globalCloser != nil {
		if cerr := globalCloser.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}

	globalContext.Logger().Info("usage system shut down")
	resetGlobalsLocked()
	return err
}

// resetGlobalsLocked keeps the context pointer so that metrics declared
// before a re-Init stay bound to the live context.
func resetGlobalsLocked() {
	globalContext.reset()
	globalConfig = Config{}
	globalAssembler = nil
	globalCloser = nil
}

// TestUninitialize discards the global dispatcher after draining it. The
// store, error recorder and enablement flag are kept.
func TestUninitialize(ctx context.Context) error {
	return Default().TestUninitialize(ctx)
}

// GetStatus returns the current status of the usage system
func GetStatus() map[string]interface{} {
	c := Default()
	status := make(map[string]interface{})

	if !c.Initialized() {
		status["initialized"] = false
		status["error"] = ErrNotInitialized.Error()
		return status
	}

	status["initialized"] = true
	status["state"] = c.State().String()
	status["upload_enabled"] = c.UploadEnabled()
	status["start_time"] = c.StartTime()
	if c.State() == StateReady {
		status["pending_tasks"] = c.Dispatcher().Pending()
	}
	return status
}
