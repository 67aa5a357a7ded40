package lua

import (
	"context"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/musicbox/internal/plugin/api"
)

// callContext returns the context of the running call.
func callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// contextTable builds the table passed to a plugin constructor:
//
//	{ pluginId = "...", permissions = {...}, player = {...}, ..., messaging = {...}, utils = {...} }
//
// Namespaces whose factory failed are left nil.
func (b *Bridge) contextTable(c *api.Context) *lua.LTable {
	t := b.L.NewTable()
	t.RawSetString("pluginId", lua.LString(c.PluginID))
	t.RawSetString("permissions", b.ToLuaValue(c.Permissions))

	for _, name := range c.Namespaces() {
		mod := c.Namespace(name)
		if mod == nil {
			continue
		}
		t.RawSetString(name, b.moduleTable(mod))
	}
	t.RawSetString("messaging", b.moduleTable(c.Messaging().Module()))
	t.RawSetString("utils", b.moduleTable(c.Utils().Module()))
	return t
}

// moduleTable exposes a Module as a Lua table. Functions accept both
// ns.fn(...) and ns:fn(...) call styles.
func (b *Bridge) moduleTable(mod api.Module) *lua.LTable {
	t := b.L.NewTable()
	for k, v := range mod.Values() {
		t.RawSetString(k, b.ToLuaValue(v))
	}

	funcs := mod.Functions()
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.RawSetString(name, b.L.NewFunction(b.wrapFunction(funcs[name], t)))
	}
	return t
}

func (b *Bridge) wrapFunction(fn api.Function, self *lua.LTable) lua.LGFunction {
	return func(L *lua.LState) int {
		start := 1
		if L.GetTop() >= 1 && L.Get(1) == self {
			start = 2
		}
		args := make([]any, 0, L.GetTop())
		for i := start; i <= L.GetTop(); i++ {
			args = append(args, b.ToGoValue(L.Get(i)))
		}

		result, err := fn(callContext(L), args)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(b.ToLuaValue(result))
		return 1
	}
}
