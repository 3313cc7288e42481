package usage

import (
	"context"
	"testing"
	"time"

	"github.com/nikiz24/usage/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testBucket = "metrics"

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func newTestContext(t *testing.T) (*Context, *storage.Memory, *observer.ObservedLogs) {
	t.Helper()

	logger, logs := newObservedLogger()
	store := storage.NewMemory()
	c, err := NewContext(Dependencies{
		Store:         store,
		UploadEnabled: true,
		Logger:        logger,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.shutdown(ctx)
	})
	return c, store, logs
}

func testCounterData(name string) CommonMetricData {
	return CommonMetricData{
		Category:    "test",
		Name:        name,
		SendInPings: []string{testBucket},
		Lifetime:    storage.LifetimePing,
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
