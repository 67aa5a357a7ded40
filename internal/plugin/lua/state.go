package lua

import (
	"context"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/musicbox/internal/logging"
)

// Default limits for Lua state.
const (
	DefaultExecutionTimeout = 5 * time.Second
	DefaultCallStackSize    = 256
	DefaultQueueSize        = 128
)

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe. A State is owned by exactly one
// Executor and must only be touched from that executor's goroutine.
type State struct {
	L *lua.LState

	executionTimeout time.Duration
	callStackSize    int
	queueSize        int
	logger           *logging.Logger

	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout bounds every call made through the state's executor.
// Zero disables the bound.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.executionTimeout = d
	}
}

// WithCallStackSize sets the maximum Lua call depth.
func WithCallStackSize(n int) StateOption {
	return func(s *State) {
		if n > 0 {
			s.callStackSize = n
		}
	}
}

// WithQueueSize sets the executor queue capacity.
func WithQueueSize(n int) StateOption {
	return func(s *State) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithLogger sets the logger that receives plugin print output.
func WithLogger(l *logging.Logger) StateOption {
	return func(s *State) {
		s.logger = logging.OrNull(l)
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{
		executionTimeout: DefaultExecutionTimeout,
		callStackSize:    DefaultCallStackSize,
		queueSize:        DefaultQueueSize,
		logger:           logging.NullLogger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: s.callStackSize,
	})
	openSafeLibraries(s.L)
	installSandbox(s.L, s.logger)
	return s
}

// openSafeLibraries opens only safe Lua standard libraries. io, os and debug
// are never opened.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// Eval compiles code as a chunk named name, runs it and returns every value
// the chunk returned. It must run on the owning executor.
func (s *State) Eval(ctx context.Context, name, code string) ([]lua.LValue, error) {
	if s.closed {
		return nil, ErrStateClosed
	}
	fn, err := s.L.Load(strings.NewReader(code), name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return s.Call(ctx, fn)
}

// Call calls fn with args and returns all of its results. It must run on
// the owning executor.
func (s *State) Call(_ context.Context, fn lua.LValue, args ...lua.LValue) (results []lua.LValue, err error) {
	if s.closed {
		return nil, ErrStateClosed
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("attempt to call a %s value", fn.Type())
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	top := s.L.GetTop()
	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(arg)
	}
	if err := s.L.PCall(len(args), lua.MultRet, nil); err != nil {
		s.L.SetTop(top)
		return nil, err
	}

	n := s.L.GetTop() - top
	results = make([]lua.LValue, n)
	for i := range n {
		results[i] = s.L.Get(top + i + 1)
	}
	s.L.SetTop(top)
	return results, nil
}

// ExecutionTimeout returns the per-call bound.
func (s *State) ExecutionTimeout() time.Duration { return s.executionTimeout }

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool { return s.closed }

// Close releases the Lua state. It must run on the owning executor or after
// the executor has stopped.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.L.Close()
}
