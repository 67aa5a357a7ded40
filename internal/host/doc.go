// Package host provides in-memory player, library and UI collaborators so
// the plugin runtime can run without a desktop shell.
//
// The collaborators publish the same player: and library: topics a real
// host would, on the event bus plugins subscribe through:
//
//	h := host.NewHeadless(nil, logger)
//	cfg.Host = h.Host(store)
//	h.Player.SetPlaylist(ctx, tracks, 0) // plugins see player:trackChanged
package host
