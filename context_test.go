package usage

import (
	"context"
	"testing"

	"github.com/nikiz24/usage/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewContextRequiresStore(t *testing.T) {
	_, err := NewContext(Dependencies{})
	assert.Error(t, err)
}

func TestContextInitializeOnce(t *testing.T) {
	c, _, _ := newTestContext(t)
	err := c.Initialize(Dependencies{Store: storage.NewMemory()})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestContextUnsetFieldsLogOncePerAccess(t *testing.T) {
	logger, logs := newObservedLogger()
	c := newEmptyContext(logger)

	assert.Nil(t, c.Store())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	assert.Nil(t, c.ErrorRecorder())
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	assert.False(t, c.UploadEnabled())
	assert.Equal(t, 3, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	fields := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	var names []string
	for _, e := range fields {
		names = append(names, e.ContextMap()["field"].(string))
	}
	assert.Equal(t, []string{"store", "error_recorder", "upload_enabled"}, names)

	// Diagnostic fields never log.
	assert.False(t, c.Initialized())
	assert.True(t, c.StartTime().IsZero())
	assert.Equal(t, 3, logs.Len())
}

func TestContextDispatcherIsLazyAndShared(t *testing.T) {
	c := newEmptyContext(nil)
	assert.Equal(t, StateUninitialized, c.State())

	d := c.Dispatcher()
	assert.Equal(t, StateReady, c.State())
	assert.Same(t, d, c.Dispatcher())

	require.NoError(t, c.shutdown(context.Background()))
}

func TestContextTestUninitializeKeepsDependencies(t *testing.T) {
	c, store, _ := newTestContext(t)
	recorder := c.ErrorRecorder()
	counter := NewCounterMetric(c, testCounterData("clicks"))

	counter.Add(2)
	first := c.Dispatcher()

	require.NoError(t, c.TestUninitialize(waitCtx(t)))
	assert.Equal(t, StateTestReset, c.State())

	// The queued recording was drained before the dispatcher was discarded.
	raw, ok, err := store.Get(context.Background(), testBucket, testCounterData("clicks").ref())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", string(raw))

	counter.Add(3)
	assert.NotSame(t, first, c.Dispatcher())
	assert.Equal(t, StateReady, c.State())
	assert.Same(t, store, c.Store())
	assert.Same(t, recorder, c.ErrorRecorder())
	assert.True(t, c.UploadEnabled())

	v, ok, err := counter.TestGetValue(waitCtx(t), "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), v)
}

func TestContextSetUploadEnabled(t *testing.T) {
	c, _, _ := newTestContext(t)
	c.SetUploadEnabled(false)
	assert.False(t, c.UploadEnabled())

	counter := NewCounterMetric(c, testCounterData("clicks"))
	counter.Inc()

	_, ok, err := counter.TestGetValue(waitCtx(t), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "test_reset", StateTestReset.String())
	assert.Equal(t, "unknown", State(42).String())
}
