// Package lua runs plugin scripts on gopher-lua.
//
// Each plugin gets its own sandboxed State and an Executor goroutine that
// owns it. Every touch of the state, including callbacks registered with
// the host, is marshalled onto that goroutine.
//
// # Loading
//
// A plugin's main script must return exactly one table with a "new"
// function:
//
//	local Plugin = {}
//	Plugin.__index = Plugin
//
//	function Plugin.new(ctx)
//	    return setmetatable({ ctx = ctx }, Plugin)
//	end
//
//	function Plugin:activate()
//	    self.ctx.player.onTrackChanged(function(track) print(track.title) end)
//	end
//
//	return Plugin
//
// ScriptLoader.Load evaluates the script and returns a Constructor:
//
//	loader := lua.NewScriptLoader(resolver, logger)
//	ctor, err := loader.Load(ctx, "now-playing", "plugins/now-playing/main.lua")
//	inst, err := ctor.New(ctx, registry.CreateContext("now-playing", perms))
//	err = inst.Activate(ctx)
//
// activate and deactivate are optional. They fail when they raise an error,
// return false, or return nil plus an error value.
//
// # Sandbox
//
// io, os and debug are never opened. dofile, loadfile, load and loadstring
// are removed, and require only resolves builtin and preloaded modules.
// print writes to the plugin logger.
//
// # Bridge
//
// Lua tables with keys 1..n convert to []any, other tables to
// map[string]any. Lua functions convert to api.Callback values; the same
// function always yields the same callback.
package lua
