package lua

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/musicbox/internal/logging"
	"github.com/dshills/musicbox/internal/plugin/api"
	"github.com/dshills/musicbox/internal/plugin/source"
)

// UnitInfo describes a loaded plugin script.
type UnitInfo struct {
	PluginID string
	Ref      string
	Kind     source.Kind
	Path     string
	Hash     string
	Name     string
	Version  string
	LoadedAt time.Time
}

// unit is one evaluated plugin script: a sandboxed state, the executor that
// owns it and the exported table.
type unit struct {
	info      UnitInfo
	state     *State
	exec      *Executor
	callbacks *callbackSet
	export    *lua.LTable
	logger    *logging.Logger
}

// close stops the executor and waits for the in-flight call, if any, to
// return. Queued calls fail with ErrExecutorClosed and never reach the state.
func (u *unit) close() {
	u.exec.Close()
	timeout := u.state.executionTimeout
	if timeout <= 0 {
		timeout = DefaultExecutionTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()
	if err := u.exec.Wait(ctx); err != nil {
		u.logger.Warn("executor did not stop: %v", err)
	}
}

// ScriptLoader evaluates plugin main scripts, one sandboxed state per plugin.
type ScriptLoader struct {
	resolver *source.Resolver
	opts     []StateOption
	logger   *logging.Logger

	mu    sync.Mutex
	units map[string]*unit
	locks map[string]*sync.Mutex
}

// NewScriptLoader creates a loader resolving main references with resolver.
// opts apply to every state the loader creates.
func NewScriptLoader(resolver *source.Resolver, logger *logging.Logger, opts ...StateOption) *ScriptLoader {
	if resolver == nil {
		resolver = source.NewResolver("", source.DefaultHTTPTimeout)
	}
	return &ScriptLoader{
		resolver: resolver,
		opts:     opts,
		logger:   logging.OrNull(logger).WithComponent("loader"),
		units:    make(map[string]*unit),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Resolver returns the source resolver.
func (l *ScriptLoader) Resolver() *source.Resolver {
	return l.resolver
}

func (l *ScriptLoader) lockFor(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// Load resolves ref, evaluates it in a fresh state and returns the plugin
// constructor. A unit already loaded for id is unloaded first.
//
// The chunk must return exactly one table whose "new" field is a function.
// Optional "name" and "version" string fields are recorded in UnitInfo.
func (l *ScriptLoader) Load(ctx context.Context, id, ref string) (*Constructor, error) {
	lock := l.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	l.unload(id)
	return l.load(ctx, id, ref)
}

// Reload unloads id and loads ref as one step.
func (l *ScriptLoader) Reload(ctx context.Context, id, ref string) (*Constructor, error) {
	return l.Load(ctx, id, ref)
}

func (l *ScriptLoader) load(ctx context.Context, id, ref string) (*Constructor, error) {
	loadErr := func(err error) error {
		return &LoadError{PluginID: id, Ref: ref, Err: err}
	}

	src, err := l.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, loadErr(err)
	}

	logger := l.logger.WithPlugin(id)
	opts := append([]StateOption{WithLogger(logger)}, l.opts...)
	state := NewState(opts...)
	exec := NewExecutor(state.L, state.queueSize, state.executionTimeout)
	exec.OnStop(state.Close)
	go exec.Run(context.Background())

	u := &unit{
		info: UnitInfo{
			PluginID: id,
			Ref:      ref,
			Kind:     src.Kind,
			Path:     src.Path,
			Hash:     src.Hash,
			LoadedAt: time.Now(),
		},
		state:     state,
		exec:      exec,
		callbacks: newCallbackSet(state, exec, logger),
		logger:    logger,
	}

	err = exec.Execute(ctx, func(ctx context.Context, _ *lua.LState) error {
		rets, err := state.Eval(ctx, src.Name, string(src.Code))
		if err != nil {
			return err
		}
		export, err := checkExport(rets)
		if err != nil {
			return err
		}
		u.export = export
		u.info.Name, _ = TableString(export, "name")
		u.info.Version, _ = TableString(export, "version")
		return nil
	})
	if err != nil {
		u.close()
		return nil, loadErr(err)
	}

	l.mu.Lock()
	l.units[id] = u
	l.mu.Unlock()

	logger.Debug("loaded %s (%s, %s)", ref, src.Kind, src.Hash[:min(12, len(src.Hash))])
	return &Constructor{unit: u}, nil
}

func checkExport(rets []lua.LValue) (*lua.LTable, error) {
	if len(rets) != 1 {
		return nil, fmt.Errorf("%w: chunk returned %d values", ErrBadExport, len(rets))
	}
	export, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: chunk returned a %s", ErrBadExport, describe(rets[0]))
	}
	if _, ok := TableFunc(export, "new"); !ok {
		return nil, fmt.Errorf("%w: 'new' is a %s", ErrBadExport, describe(export.RawGetString("new")))
	}
	return export, nil
}

// Unload closes id's executor and state. Unknown ids are ignored.
func (l *ScriptLoader) Unload(id string) {
	lock := l.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	l.unload(id)
}

func (l *ScriptLoader) unload(id string) {
	l.mu.Lock()
	u, ok := l.units[id]
	delete(l.units, id)
	l.mu.Unlock()
	if ok {
		u.close()
		l.logger.WithPlugin(id).Debug("unloaded")
	}
}

// Loaded reports whether a unit is loaded for id.
func (l *ScriptLoader) Loaded(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.units[id]
	return ok
}

// Info returns metadata about id's loaded unit.
func (l *ScriptLoader) Info(id string) (UnitInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.units[id]
	if !ok {
		return UnitInfo{}, false
	}
	return u.info, true
}

// IDs returns the loaded plugin ids, sorted.
func (l *ScriptLoader) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.units))
	for id := range l.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close unloads every unit.
func (l *ScriptLoader) Close() {
	for _, id := range l.IDs() {
		l.Unload(id)
	}
}

// Constructor creates plugin instances from a loaded unit.
type Constructor struct {
	unit *unit
}

// Info returns the unit metadata.
func (c *Constructor) Info() UnitInfo { return c.unit.info }

// New calls the exported new(ctx) with a table built from pc and returns
// the instance it produced. The constructor must return a table.
func (c *Constructor) New(ctx context.Context, pc *api.Context) (*Instance, error) {
	u := c.unit
	var obj *lua.LTable
	err := u.exec.Execute(ctx, func(ctx context.Context, _ *lua.LState) error {
		ctxTable := u.callbacks.bridge.contextTable(pc)
		rets, err := u.state.Call(ctx, u.export.RawGetString("new"), ctxTable)
		if err != nil {
			return err
		}
		if len(rets) == 0 {
			return errors.New("constructor returned nothing")
		}
		t, ok := rets[0].(*lua.LTable)
		if !ok {
			return fmt.Errorf("constructor returned a %s, want a table", describe(rets[0]))
		}
		obj = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Instance{unit: u, obj: obj}, nil
}

// Instance is a live plugin object.
type Instance struct {
	unit *unit
	obj  *lua.LTable
}

// PluginID returns the owning plugin id.
func (i *Instance) PluginID() string { return i.unit.info.PluginID }

// HasMethod reports whether the instance has a callable field name,
// including fields inherited through its metatable.
func (i *Instance) HasMethod(ctx context.Context, name string) (bool, error) {
	found := false
	err := i.unit.exec.Execute(ctx, func(_ context.Context, L *lua.LState) error {
		found = L.GetField(i.obj, name).Type() == lua.LTFunction
		return nil
	})
	return found, err
}

// Call invokes obj:name(args...) and returns its first result. A missing
// method is not an error; ok reports whether it existed. Return values are
// passed through as they are, false and nil included.
func (i *Instance) Call(ctx context.Context, name string, args ...any) (result any, ok bool, err error) {
	return i.call(ctx, name, false, args)
}

func (i *Instance) call(ctx context.Context, name string, lifecycle bool, args []any) (result any, ok bool, err error) {
	u := i.unit
	err = u.exec.Execute(ctx, func(ctx context.Context, L *lua.LState) error {
		fn := L.GetField(i.obj, name)
		if fn.Type() != lua.LTFunction {
			return nil
		}
		ok = true
		largs := make([]lua.LValue, 0, len(args)+1)
		largs = append(largs, i.obj)
		for _, a := range args {
			largs = append(largs, u.callbacks.bridge.ToLuaValue(a))
		}
		rets, err := u.state.Call(ctx, fn, largs...)
		if err != nil {
			return err
		}
		if lifecycle {
			if failed, reason := failureResult(rets); failed {
				return fmt.Errorf("%s failed: %s", name, reason)
			}
		}
		if len(rets) > 0 {
			result = u.callbacks.bridge.ToGoValue(rets[0])
		}
		return nil
	})
	return result, ok, err
}

// failureResult recognizes the lifecycle failure conventions
// "return false[, reason]" and "return nil, err".
func failureResult(rets []lua.LValue) (bool, string) {
	if len(rets) == 0 {
		return false, ""
	}
	if rets[0] == lua.LFalse {
		if len(rets) > 1 && rets[1] != lua.LNil {
			return true, rets[1].String()
		}
		return true, "returned false"
	}
	if rets[0] == lua.LNil && len(rets) > 1 && rets[1] != lua.LNil {
		return true, rets[1].String()
	}
	return false, ""
}

// Activate calls instance:activate() if it exists.
func (i *Instance) Activate(ctx context.Context) error {
	_, _, err := i.call(ctx, "activate", true, nil)
	return err
}

// Deactivate calls instance:deactivate() if it exists.
func (i *Instance) Deactivate(ctx context.Context) error {
	_, _, err := i.call(ctx, "deactivate", true, nil)
	return err
}
