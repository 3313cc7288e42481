package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nikiz24/usage/storage"
	"go.uber.org/zap"
)

var (
	// ErrNotInitialized is returned when a context field is needed before it was set.
	ErrNotInitialized = errors.New("usage context is not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("usage context is already initialized")
)

// State is the lifecycle state of a context's dispatch queue.
type State int32

const (
	// StateUninitialized means no dispatcher has been created yet.
	StateUninitialized State = iota
	// StateReady means a dispatcher exists and drains tasks.
	StateReady
	// StateTestReset means the dispatcher was discarded by TestUninitialize.
	// The next access creates a fresh one.
	StateTestReset
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateTestReset:
		return "test_reset"
	default:
		return "unknown"
	}
}

// Dependencies are the long-lived collaborators of a context.
type Dependencies struct {
	Store storage.Store
	// Errors defaults to a recorder writing error metrics into Store.
	Errors        ErrorRecorder
	UploadEnabled bool
	Logger        *zap.Logger
}

// dependencies outlive any number of dispatcher resets.
type dependencies struct {
	store         storage.Store
	errors        ErrorRecorder
	uploadEnabled *bool
	initialized   bool
	startTime     time.Time
}

// queueContext is discarded and recreated by TestUninitialize.
type queueContext struct {
	dispatcher *Dispatcher
	state      State
}

// Context wires the dispatcher, the store and the error recorder together.
// Fields are written once during initialization; reading one before it is set
// logs the misuse and yields the zero value.
type Context struct {
	depsMu sync.RWMutex
	logger *zap.Logger
	deps   dependencies

	queueMu sync.Mutex
	queue   queueContext
}

// NewContext returns a ready context. A missing store is a construction error.
func NewContext(deps Dependencies) (*Context, error) {
	c := newEmptyContext(deps.Logger)
	if err := c.Initialize(deps); err != nil {
		return nil, err
	}
	return c, nil
}

func newEmptyContext(logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{logger: logger}
}

// Initialize sets the long-lived dependencies. It may only succeed once.
func (c *Context) Initialize(deps Dependencies) error {
	if deps.Store == nil {
		return errors.New("usage: store is required")
	}

	c.depsMu.Lock()
	if c.deps.initialized {
		c.depsMu.Unlock()
		return ErrAlreadyInitialized
	}
	if deps.Logger != nil {
		c.logger = deps.Logger
	}
	errs := deps.Errors
	if errs == nil {
		errs = NewErrorRecorder(deps.Store, c.logger)
	}
	enabled := deps.UploadEnabled

	c.deps = dependencies{
		store:         deps.Store,
		errors:        errs,
		uploadEnabled: &enabled,
		initialized:   true,
		startTime:     time.Now(),
	}
	logger := c.logger
	c.depsMu.Unlock()

	// Recordings queued before initialization run now, in submission order.
	c.queueMu.Lock()
	if d := c.queue.dispatcher; d != nil {
		d.Resume()
	}
	c.queueMu.Unlock()

	logger.Debug("usage context initialized", zap.Bool("upload_enabled", enabled))
	return nil
}

// Logger returns the context logger. It is never nil.
func (c *Context) Logger() *zap.Logger {
	c.depsMu.RLock()
	defer c.depsMu.RUnlock()
	return c.logger
}

func (c *Context) misuse(field string) {
	c.Logger().Error("usage context field accessed before initialization",
		zap.String("field", field),
		zap.Error(ErrNotInitialized))
}

// Store returns the store, or nil before initialization.
func (c *Context) Store() storage.Store {
	c.depsMu.RLock()
	s := c.deps.store
	c.depsMu.RUnlock()
	if s == nil {
		c.misuse("store")
	}
	return s
}

// ErrorRecorder returns the error recorder, or nil before initialization.
func (c *Context) ErrorRecorder() ErrorRecorder {
	c.depsMu.RLock()
	r := c.deps.errors
	c.depsMu.RUnlock()
	if r == nil {
		c.misuse("error_recorder")
	}
	return r
}

// uploadFlag reads the enablement flag without reporting misuse.
func (c *Context) uploadFlag() (enabled, set bool) {
	c.depsMu.RLock()
	defer c.depsMu.RUnlock()
	if c.deps.uploadEnabled == nil {
		return false, false
	}
	return *c.deps.uploadEnabled, true
}

// UploadEnabled reports whether recording is enabled. It is false before
// initialization.
func (c *Context) UploadEnabled() bool {
	c.depsMu.RLock()
	p := c.deps.uploadEnabled
	c.depsMu.RUnlock()
	if p == nil {
		c.misuse("upload_enabled")
		return false
	}
	return *p
}

// SetUploadEnabled flips the enablement flag read by every recording call.
func (c *Context) SetUploadEnabled(enabled bool) {
	c.depsMu.Lock()
	c.deps.uploadEnabled = &enabled
	c.depsMu.Unlock()
}

// Initialized is diagnostic only.
func (c *Context) Initialized() bool {
	c.depsMu.RLock()
	defer c.depsMu.RUnlock()
	return c.deps.initialized
}

// StartTime is the time Initialize succeeded, or the zero time.
func (c *Context) StartTime() time.Time {
	c.depsMu.RLock()
	defer c.depsMu.RUnlock()
	return c.deps.startTime
}

// State returns the lifecycle state of the dispatch queue.
func (c *Context) State() State {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return c.queue.state
}

// Dispatcher returns the context dispatcher, creating it on first use so
// recording works before Initialize. A dispatcher created before Initialize
// holds its tasks until Initialize runs.
func (c *Context) Dispatcher() *Dispatcher {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if c.queue.dispatcher == nil {
		d := NewDispatcher(c.Logger())
		if !c.Initialized() {
			d.Pause()
		}
		c.queue = queueContext{dispatcher: d, state: StateReady}
	}
	return c.queue.dispatcher
}

// TestUninitialize drains the dispatcher and discards it. Store, error
// recorder and enablement flag are kept.
func (c *Context) TestUninitialize(ctx context.Context) error {
	c.queueMu.Lock()
	d := c.queue.dispatcher
	c.queue = queueContext{state: StateTestReset}
	c.queueMu.Unlock()

	if d == nil {
		return nil
	}
	return d.Shutdown(ctx)
}

// shutdown drains the dispatcher without marking a test reset.
func (c *Context) shutdown(ctx context.Context) error {
	c.queueMu.Lock()
	d := c.queue.dispatcher
	c.queue = queueContext{}
	c.queueMu.Unlock()

	if d == nil {
		return nil
	}
	return d.Shutdown(ctx)
}

// reset drops every dependency. The dispatcher must already be shut down.
func (c *Context) reset() {
	c.depsMu.Lock()
	c.deps = dependencies{}
	c.logger = zap.NewNop()
	c.depsMu.Unlock()

	c.queueMu.Lock()
	c.queue = queueContext{}
	c.queueMu.Unlock()
}

func (c *Context) recordValidationFailure(ctx context.Context, data CommonMetricData, res ValidationResult) error {
	if res.ErrorType == "" {
		c.Logger().Warn("metric value rejected",
			zap.String("metric", data.Identifier()),
			zap.String("reason", res.Message))
		return nil
	}
	recorder := c.ErrorRecorder()
	if recorder == nil {
		return nil
	}
	return recorder.Record(ctx, data, res.ErrorType, res.Message, 1)
}
