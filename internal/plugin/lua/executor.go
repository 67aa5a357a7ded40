package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ExecFunc is a unit of work run on the executor goroutine. ctx carries the
// execution deadline and the executor token.
type ExecFunc func(ctx context.Context, L *lua.LState) error

type execCall struct {
	ctx    context.Context
	fn     ExecFunc
	result chan error
}

// execKey marks contexts derived inside an executor call.
type execKey struct{}

// Executor serializes all Lua operations through a single goroutine.
//
// gopher-lua's LState is NOT goroutine-safe. All LState operations must occur
// on a single goroutine. The Executor marshals work from any goroutine onto
// its worker. Work submitted with a context that was derived from one of the
// executor's own calls runs inline, so Lua code that calls back into Go which
// calls back into the same plugin does not deadlock.
//
// Usage:
//
//	exec := NewExecutor(L, 128, 5*time.Second)
//	go exec.Run(ctx)
//	defer exec.Close()
//
//	err := exec.Execute(ctx, func(ctx context.Context, L *lua.LState) error {
//	    L.Push(handler)
//	    return L.PCall(0, 0, nil)
//	})
type Executor struct {
	L       *lua.LState
	timeout time.Duration

	queue   chan *execCall
	done    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool

	closeOnce sync.Once
	onStop    func()
}

// NewExecutor creates a new Executor for the given Lua state. timeout bounds
// each queued call; zero disables the bound.
func NewExecutor(L *lua.LState, queueSize int, timeout time.Duration) *Executor {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Executor{
		L:       L,
		timeout: timeout,
		queue:   make(chan *execCall, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// OnStop registers fn to run on the executor goroutine after the queue has
// been drained. It must be called before Run.
func (e *Executor) OnStop(fn func()) {
	e.onStop = fn
}

// Run processes Lua operations from the queue until ctx is cancelled or
// Close is called. Pending calls then fail with ErrExecutorClosed.
func (e *Executor) Run(ctx context.Context) {
	defer close(e.stopped)
	defer func() {
		if e.onStop != nil {
			e.onStop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.closed.Store(true)
			e.drainQueue(ErrExecutorClosed)
			return
		case <-e.done:
			e.drainQueue(ErrExecutorClosed)
			return
		case call := <-e.queue:
			call.result <- e.run(call)
			close(call.result)
		}
	}
}

func (e *Executor) run(call *execCall) (err error) {
	ctx := call.ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, execKey{}, e)

	e.L.SetContext(ctx)
	defer e.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	err = call.fn(ctx, e.L)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && call.ctx.Err() == nil {
		err = fmt.Errorf("%w after %s: %v", ErrExecutionTimeout, e.timeout, err)
	}
	return err
}

func (e *Executor) drainQueue(err error) {
	for {
		select {
		case call := <-e.queue:
			call.result <- err
			close(call.result)
		default:
			return
		}
	}
}

// Execute runs fn on the executor and waits for it to finish or for ctx to
// be done.
func (e *Executor) Execute(ctx context.Context, fn ExecFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.owns(ctx) {
		return fn(ctx, e.L)
	}
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	call := &execCall{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- call:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		// Run may have drained before the call was queued.
		select {
		case err := <-call.result:
			return err
		default:
			return ErrExecutorClosed
		}
	case err := <-call.result:
		return err
	}
}

// ExecuteAsync queues fn without waiting for completion. It fails with
// ErrQueueFull instead of blocking.
func (e *Executor) ExecuteAsync(fn ExecFunc) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	call := &execCall{ctx: context.Background(), fn: fn, result: make(chan error, 1)}
	select {
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- call:
		return nil
	default:
		return ErrQueueFull
	}
}

// owns reports whether ctx was derived inside one of e's calls.
func (e *Executor) owns(ctx context.Context) bool {
	owner, _ := ctx.Value(execKey{}).(*Executor)
	return owner == e
}

// Close stops the executor and prevents new operations. It does not wait;
// use Wait to block until the worker has exited.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// Wait blocks until Run has returned or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsClosed returns true if the executor has been closed.
func (e *Executor) IsClosed() bool {
	return e.closed.Load()
}
