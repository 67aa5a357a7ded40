package api

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// Function is one capability entry point. Arguments arrive already
// converted from the script runtime; plugin functions arrive as Callback.
type Function func(ctx context.Context, args []any) (any, error)

// Module is a named set of functions and constant values.
type Module interface {
	// Name returns the namespace name (e.g. "player", "storage").
	Name() string

	// Functions returns the callable entries. The returned map must not be
	// modified by callers.
	Functions() map[string]Function

	// Values returns constant fields exposed alongside the functions.
	Values() map[string]any
}

// Factory builds a per-plugin Module.
type Factory func(pluginID string) (Module, error)

// FuncModule is the standard Module implementation.
type FuncModule struct {
	mu     sync.RWMutex
	name   string
	funcs  map[string]Function
	values map[string]any
}

// NewModule creates a module with the given functions.
func NewModule(name string, funcs map[string]Function) *FuncModule {
	m := &FuncModule{
		name:   name,
		funcs:  make(map[string]Function, len(funcs)),
		values: make(map[string]any),
	}
	maps.Copy(m.funcs, funcs)
	return m
}

// Name returns the namespace name.
func (m *FuncModule) Name() string { return m.name }

// Functions returns a snapshot of the functions.
func (m *FuncModule) Functions() map[string]Function {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.funcs)
}

// Values returns a snapshot of the constant values.
func (m *FuncModule) Values() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

// SetValue sets a constant field and returns the module for chaining.
func (m *FuncModule) SetValue(key string, v any) *FuncModule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = v
	return m
}

// Extend merges funcs into the module, replacing same-named entries.
func (m *FuncModule) Extend(funcs map[string]Function) {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.funcs, funcs)
}

// Call invokes a function by name.
func (m *FuncModule) Call(ctx context.Context, name string, args ...any) (any, error) {
	m.mu.RLock()
	fn, ok := m.funcs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, argError(m.name, "no function %q", name)
	}
	return fn(ctx, args)
}

// FunctionNames returns the sorted function names of mod.
func FunctionNames(mod Module) []string {
	if mod == nil {
		return nil
	}
	funcs := mod.Functions()
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// deniedModule mirrors mod's function names; every call fails with a
// PermissionError.
func deniedModule(pluginID string, mod Module) Module {
	denied := make(map[string]Function)
	for _, name := range FunctionNames(mod) {
		denied[name] = func(context.Context, []any) (any, error) {
			return nil, &PermissionError{PluginID: pluginID, Namespace: mod.Name()}
		}
	}
	return NewModule(mod.Name(), denied)
}
