package lua

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/musicbox/internal/logging"
)

// callbackSet memoizes the api.Callback wrapper for each Lua function of one
// plugin, so passing the same function twice yields the same callback.
type callbackSet struct {
	mu     sync.Mutex
	byFn   map[*lua.LFunction]*luaCallback
	exec   *Executor
	state  *State
	bridge *Bridge
	logger *logging.Logger
}

func newCallbackSet(state *State, exec *Executor, logger *logging.Logger) *callbackSet {
	set := &callbackSet{
		byFn:   make(map[*lua.LFunction]*luaCallback),
		exec:   exec,
		state:  state,
		logger: logging.OrNull(logger),
	}
	set.bridge = NewBridge(state.L, set)
	return set
}

func (s *callbackSet) get(fn *lua.LFunction) *luaCallback {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.byFn[fn]
	if !ok {
		cb = &luaCallback{set: s, fn: fn}
		s.byFn[fn] = cb
	}
	return cb
}

func (s *callbackSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byFn)
}

// call runs fn with Go arguments on the current executor call and returns
// its first result.
func (s *callbackSet) call(ctx context.Context, fn *lua.LFunction, args []any) (any, error) {
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = s.bridge.ToLuaValue(a)
	}
	rets, err := s.state.Call(ctx, fn, largs...)
	if err != nil {
		return nil, err
	}
	if len(rets) == 0 {
		return nil, nil
	}
	return s.bridge.ToGoValue(rets[0]), nil
}

// luaCallback is a plugin function handed to Go. Calls are marshalled onto
// the plugin's executor.
type luaCallback struct {
	set *callbackSet
	fn  *lua.LFunction
}

// Invoke calls the function and waits for its first return value.
func (c *luaCallback) Invoke(ctx context.Context, args ...any) (any, error) {
	var out any
	err := c.set.exec.Execute(ctx, func(ctx context.Context, _ *lua.LState) error {
		v, err := c.set.call(ctx, c.fn, args)
		out = v
		return err
	})
	return out, err
}

// InvokeAsync queues the call. Errors raised by the function are logged.
func (c *luaCallback) InvokeAsync(args ...any) error {
	return c.set.exec.ExecuteAsync(func(ctx context.Context, _ *lua.LState) error {
		if _, err := c.set.call(ctx, c.fn, args); err != nil {
			c.set.logger.Warn("callback: %v", err)
			return err
		}
		return nil
	})
}

func (c *luaCallback) String() string {
	return fmt.Sprintf("lua callback %p", c.fn)
}
