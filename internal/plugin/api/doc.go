// Package api provides the capability API exposed to MusicBox plugins.
//
// Capabilities are grouped into namespaces. A namespace is registered with
// the Registry either as a static Module shared by every plugin, or as a
// Factory that builds a Module per plugin id:
//
//	reg := api.NewRegistry(api.WithHost(host), api.WithLogger(logger))
//	if err := reg.RegisterBuiltins(); err != nil {
//		return err
//	}
//	reg.RegisterFactory("lyrics", newLyricsModule)
//
// CreateContext resolves every namespace for one plugin and adds the two
// per-plugin helpers that every plugin receives regardless of registration:
//
//   - messaging: events scoped to "plugin:<id>:<event>" plus the shared
//     "plugin:broadcast:<event>" channel
//   - utils: scoped element creation, CSS, notifications and commands
//     registered as "<pluginId>.<commandId>"
//
// # Subscription ledger
//
// Every event subscription a plugin makes, whether through messaging, a
// capability's on* function or the events namespace, is recorded in the
// Registry's ledger and returned as a Subscription handle. Unloading a plugin
// calls RemoveAllPluginEventListeners, which disposes every handle for that
// id, followed by ReleasePlugin, which drops commands, request handlers and
// host injection points that still reference plugin callbacks.
//
// # Callbacks
//
// Plugin-supplied functions arrive as Callback values. Callbacks must be
// comparable: the ledger rejects registering an identical callback twice for
// the same event. Host code wraps Go functions with NewCallback.
package api
