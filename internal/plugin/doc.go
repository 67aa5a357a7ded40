// Package plugin manages MusicBox plugins.
//
// A plugin is a descriptor (plugin.json or plugin.yaml) plus a Lua main
// script. The Manager persists descriptors and enabled flags, and moves each
// plugin through its lifecycle:
//
//	NotInstalled -> Disabled <-> Enabled(Pending | Active | Failed)
//
// An instance exists only while the plugin is Enabled(Active).
//
// # Quick Start
//
//	sys := plugin.NewSystem(plugin.SystemConfig{
//	    PluginDir: "/var/lib/musicbox/plugins",
//	    Host:      api.Host{Player: player, Library: library},
//	    Store:     store,
//	})
//	if err := sys.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.Shutdown(context.Background())
//
//	err := sys.Manager().InstallFromFile(ctx, "now-playing/plugin.json")
//
// # Descriptor
//
//	{
//	  "id": "now-playing",
//	  "name": "Now Playing",
//	  "version": "1.0.0",
//	  "main": "main.lua",
//	  "permissions": ["player", "ui"]
//	}
//
// main may be a path, a file:// or http(s):// URL, or a
// data:text/x-lua;base64 URI. Relative paths in a descriptor file resolve
// against the file's directory.
//
// # Events
//
// Subscribe receives pluginInstalled, pluginLoaded, pluginLoadError and the
// other lifecycle events. A failed load emits pluginLoadError exactly once.
//
// # Ordering
//
// Operations on one plugin id run in arrival order. A Disable issued while
// a load is in flight runs after the load settles.
package plugin
