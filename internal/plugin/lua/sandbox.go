package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/musicbox/internal/logging"
)

// removedGlobals can load code from disk or strings and bypass the loader.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring"}

// builtinModules may be required by name.
var builtinModules = map[string]bool{
	"string":    true,
	"table":     true,
	"math":      true,
	"coroutine": true,
}

// installSandbox strips file and string loading, confines require to
// builtin and preloaded modules, and routes print to the logger.
func installSandbox(L *lua.LState, logger *logging.Logger) {
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if ok {
		L.SetField(pkg, "path", lua.LString(""))
		L.SetField(pkg, "cpath", lua.LString(""))
		L.SetField(pkg, "loadlib", lua.LNil)
	}

	original := L.GetGlobal("require")
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !builtinModules[name] && !isPreloaded(L, name) {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(original)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		logger.Info("%s", strings.Join(parts, "\t"))
		return 0
	}))
}

func isPreloaded(L *lua.LState, name string) bool {
	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return false
	}
	preload, ok := pkg.RawGetString("preload").(*lua.LTable)
	if !ok {
		return false
	}
	return preload.RawGetString(name) != lua.LNil
}
