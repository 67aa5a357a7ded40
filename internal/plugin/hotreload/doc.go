// Package hotreload reloads plugins while their main files are edited.
//
// A Server keeps a watch set of plugin ids and local main files. Changes
// are noticed through fsnotify events on each file's directory, debounced,
// and through a periodic rehash for file systems without notifications.
// A reload happens only when the SHA-256 of the file content differs from
// the last seen hash, so touching a file does nothing.
//
//	srv := hotreload.NewServer(sys.Manager(),
//		hotreload.WithResolver(sys.Loader().Resolver()),
//		hotreload.WithDevDir(cfg.HotReload.DevDir),
//	)
//	srv.WatchInstalled()
//	srv.Start(ctx)
//	defer srv.Stop()
//
// Reload outcomes are reported on the manager's event bus as
// pluginReloaded or reloadError.
package hotreload
