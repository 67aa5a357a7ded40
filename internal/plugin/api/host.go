package api

import (
	"context"

	"github.com/dshills/musicbox/internal/storage"
)

// Track is the host's description of a playable item.
type Track struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// Player controls playback. Playback events are published by the host on
// the event source under the "player:" topics.
type Player interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetVolume(ctx context.Context, volume float64) error
	Volume(ctx context.Context) (float64, error)
	CurrentTrack(ctx context.Context) (*Track, error)
	Playlist(ctx context.Context) ([]Track, error)
	SetPlaylist(ctx context.Context, tracks []Track, index int) error
	Seek(ctx context.Context, position float64) error
	Position(ctx context.Context) (float64, error)
	Duration(ctx context.Context) (float64, error)
	IsPlaying(ctx context.Context) (bool, error)
}

// Library queries the media library. Library events are published under
// the "library:" topics.
type Library interface {
	Tracks(ctx context.Context, options map[string]any) ([]Track, error)
	Albums(ctx context.Context) ([]string, error)
	Artists(ctx context.Context) ([]string, error)
	Search(ctx context.Context, query string) ([]Track, error)
	ScanDirectory(ctx context.Context, path string) error
	TrackMetadata(ctx context.Context, path string) (map[string]any, error)
}

// Settings reads and writes application settings and hosts plugin
// settings sections.
type Settings interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
	AddSection(ctx context.Context, pluginID string, config map[string]any) (string, error)
	RemoveSection(ctx context.Context, pluginID, sectionID string) error
}

// Navigation manages sidebar items and the current view.
type Navigation interface {
	AddItem(ctx context.Context, pluginID string, config map[string]any) (string, error)
	RemoveItem(ctx context.Context, pluginID, itemID string) error
	CurrentView(ctx context.Context) (string, error)
	NavigateTo(ctx context.Context, view string) error
}

// ContextMenu manages plugin context-menu items.
type ContextMenu interface {
	AddItem(ctx context.Context, pluginID string, config map[string]any) (string, error)
	RemoveItem(ctx context.Context, pluginID, itemID string) error
}

// Notifier shows user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification is one user-facing message.
type Notification struct {
	PluginID string `json:"pluginId,omitempty"`
	Message  string `json:"message"`
	Type     string `json:"type"`
	// Duration is in milliseconds; zero means the host default.
	Duration int `json:"duration"`
}

// Dialogs shows modal dialogs and returns the user's answer.
type Dialogs interface {
	ShowDialog(ctx context.Context, pluginID string, config map[string]any) (any, error)
}

// Host bundles the collaborators capabilities delegate to. Any field may be
// nil; capabilities backed by a nil collaborator return ErrHostUnavailable
// for queries and do nothing for commands.
type Host struct {
	Events      EventSource
	Player      Player
	Library     Library
	Settings    Settings
	Navigation  Navigation
	ContextMenu ContextMenu
	Notifier    Notifier
	Dialogs     Dialogs
	Storage     storage.KV
}
