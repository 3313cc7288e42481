package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrDispatcherClosed is returned when a task is submitted to, or discarded
// by, a dispatcher that has been shut down.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Task is a unit of work executed by the dispatcher.
type Task func(ctx context.Context) error

type queuedTask struct {
	run  Task
	done chan struct{}
	err  *error
}

// Dispatcher executes tasks one at a time in submission order.
//
// Producers never block: tasks are appended to an unbounded pending list and
// a single worker goroutine drains it. A task only starts after the previous
// one has returned, so its store writes are visible to every later task.
type Dispatcher struct {
	logger *zap.Logger

	mu      sync.Mutex
	pending []queuedTask
	paused  bool
	closed  bool

	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewDispatcher starts a dispatcher worker.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger:  logger,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go d.run()
	return d
}

// Launch enqueues task and returns immediately. The caller cannot observe
// completion; failures are logged.
func (d *Dispatcher) Launch(task Task) {
	d.enqueue(queuedTask{run: task})
}

// TestLaunch enqueues task and returns a channel closed once task and every
// task queued before it have finished.
func (d *Dispatcher) TestLaunch(task Task) <-chan struct{} {
	done := make(chan struct{})
	if !d.enqueue(queuedTask{run: task, done: done}) {
		close(done)
	}
	return done
}

// await runs task on the worker and waits for its result. Calling it from a
// running task deadlocks the worker.
func (d *Dispatcher) await(ctx context.Context, task Task) error {
	var (
		ran bool
		err error
	)
	done := make(chan struct{})
	ok := d.enqueue(queuedTask{
		run: func(ctx context.Context) error {
			ran = true
			return task(ctx)
		},
		done: done,
		err:  &err,
	})
	if !ok {
		return ErrDispatcherClosed
	}

	select {
	case <-done:
		if !ran {
			return ErrDispatcherClosed
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task queued before the call has finished.
// A paused dispatcher does not drain, so Flush then waits for ctx.
func (d *Dispatcher) Flush(ctx context.Context) error {
	select {
	case <-d.TestLaunch(func(context.Context) error { return nil }):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops the worker from picking up new tasks. Queued tasks are kept.
func (d *Dispatcher) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Resume restarts draining after Pause.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
	d.signal()
}

// Pending returns the number of queued tasks not yet started.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Shutdown refuses new tasks and drains the queue. If ctx expires first, the
// running task's context is cancelled and the remaining tasks are discarded.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.paused = false
	d.mu.Unlock()
	d.signal()

	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
	}

	d.cancel()
	<-d.stopped

	d.mu.Lock()
	dropped := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, t := range dropped {
		if t.done != nil {
			close(t.done)
		}
	}
	if len(dropped) > 0 {
		d.logger.Warn("dispatcher shut down with queued tasks", zap.Int("dropped", len(dropped)))
	}
	return ctx.Err()
}

func (d *Dispatcher) enqueue(t queuedTask) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("task submitted to closed dispatcher", zap.Error(ErrDispatcherClosed))
		return false
	}
	d.pending = append(d.pending, t)
	d.mu.Unlock()
	d.signal()
	return true
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest task. exit is true once the dispatcher is closed and drained.
func (d *Dispatcher) next() (t queuedTask, ok bool, exit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return queuedTask{}, false, d.closed
	}
	if d.paused {
		return queuedTask{}, false, false
	}
	t = d.pending[0]
	d.pending[0] = queuedTask{}
	d.pending = d.pending[1:]
	return t, true, false
}

func (d *Dispatcher) run() {
	defer close(d.stopped)

	for {
		if d.ctx.Err() != nil {
			return
		}

		t, ok, exit := d.next()
		if exit {
			return
		}
		if !ok {
			select {
			case <-d.wake:
			case <-d.ctx.Done():
				return
			}
			continue
		}

		d.execute(t)
	}
}

func (d *Dispatcher) execute(t queuedTask) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
		if err != nil {
			if t.err != nil {
				*t.err = err
			} else {
				d.logger.Error("dispatcher task failed", zap.Error(err))
			}
		}
		if t.done != nil {
			close(t.done)
		}
	}()

	err = t.run(d.ctx)
}
