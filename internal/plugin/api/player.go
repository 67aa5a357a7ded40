package api

import (
	"context"
)

// Player event topics published by the host.
const (
	TopicTrackChanged         = "player:trackChanged"
	TopicPlaybackStateChanged = "player:playbackStateChanged"
	TopicPositionChanged      = "player:positionChanged"
	TopicTrackLoaded          = "player:trackLoaded"
	TopicDurationChanged      = "player:durationChanged"
	TopicVolumeChanged        = "player:volumeChanged"

	playerTopicPrefix = "player:"
)

var playerEvents = map[string]string{
	"TrackChanged":         TopicTrackChanged,
	"PlaybackStateChanged": TopicPlaybackStateChanged,
	"PositionChanged":      TopicPositionChanged,
	"TrackLoaded":          TopicTrackLoaded,
	"DurationChanged":      TopicDurationChanged,
	"VolumeChanged":        TopicVolumeChanged,
}

// playerFactory builds a per-plugin player namespace. Each plugin gets its
// own module so removeAllListeners only touches that plugin's entries.
func (r *Registry) playerFactory(pluginID string) (Module, error) {
	p := r.host.Player
	command := func(op func(Player, context.Context) error) Function {
		return func(ctx context.Context, _ []any) (any, error) {
			if p == nil {
				return nil, nil
			}
			return nil, op(p, ctx)
		}
	}

	funcs := map[string]Function{
		"play":     command(Player.Play),
		"pause":    command(Player.Pause),
		"stop":     command(Player.Stop),
		"next":     command(Player.Next),
		"previous": command(Player.Previous),
		"setVolume": func(ctx context.Context, args []any) (any, error) {
			v, err := argNumber("player.setVolume", args, 0)
			if err != nil {
				return nil, err
			}
			if v < 0 || v > 1 {
				return nil, argError("player.setVolume", "volume %v out of range [0,1]", v)
			}
			if p == nil {
				return nil, nil
			}
			return nil, p.SetVolume(ctx, v)
		},
		"getVolume": func(ctx context.Context, _ []any) (any, error) {
			if p == nil {
				return nil, hostUnavailable(NamespacePlayer)
			}
			return p.Volume(ctx)
		},
		"getCurrentTrack": func(ctx context.Context, _ []any) (any, error) {
			if p == nil {
				return nil, hostUnavailable(NamespacePlayer)
			}
			track, err := p.CurrentTrack(ctx)
			if err != nil || track == nil {
				return nil, err
			}
			return *track, nil
		},
		"getPlaylist": func(ctx context.Context, _ []any) (any, error) {
			if p == nil {
				return nil, hostUnavailable(NamespacePlayer)
			}
			return p.Playlist(ctx)
		},
		"setPlaylist": func(ctx context.Context, args []any) (any, error) {
			var tracks []Track
			if err := decodeInto("player.setPlaylist", optSlice(args, 0), &tracks); err != nil {
				return nil, err
			}
			if p == nil {
				return nil, nil
			}
			return nil, p.SetPlaylist(ctx, tracks, optInt(args, 1, 0))
		},
		"seek": func(ctx context.Context, args []any) (any, error) {
			pos, err := argNumber("player.seek", args, 0)
			if err != nil {
				return nil, err
			}
			if p == nil {
				return nil, nil
			}
			return nil, p.Seek(ctx, pos)
		},
		"getPosition": func(ctx context.Context, _ []any) (any, error) {
			if p == nil {
				return nil, hostUnavailable(NamespacePlayer)
			}
			return p.Position(ctx)
		},
		"getDuration": func(ctx context.Context, _ []any) (any, error) {
			if p == nil {
				return nil, hostUnavailable(NamespacePlayer)
			}
			return p.Duration(ctx)
		},
		"isPlaying": func(ctx context.Context, _ []any) (any, error) {
			if p == nil {
				return false, nil
			}
			return p.IsPlaying(ctx)
		},
		"removeAllListeners": func(context.Context, []any) (any, error) {
			return r.ledger.RemovePrefix(pluginID, playerTopicPrefix), nil
		},
	}
	r.addEventFuncs(funcs, pluginID, NamespacePlayer, playerEvents)
	return NewModule(NamespacePlayer, funcs), nil
}

// addEventFuncs adds on<Event>/off<Event> pairs that subscribe through the
// ledger.
func (r *Registry) addEventFuncs(funcs map[string]Function, pluginID, namespace string, events map[string]string) {
	for name, topic := range events {
		on := namespace + ".on" + name
		off := namespace + ".off" + name
		funcs["on"+name] = func(_ context.Context, args []any) (any, error) {
			cb, err := argCallback(on, args, 0)
			if err != nil {
				return nil, err
			}
			if _, err := r.AddPluginEventListener(pluginID, r.host.Events, topic, cb); err != nil {
				return nil, err
			}
			return nil, nil
		}
		funcs["off"+name] = func(_ context.Context, args []any) (any, error) {
			cb, err := argCallback(off, args, 0)
			if err != nil {
				return nil, err
			}
			return r.RemovePluginEventListener(pluginID, topic, cb), nil
		}
	}
}
