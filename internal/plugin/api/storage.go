package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/musicbox/internal/storage"
)

// storageFactory scopes the key-value store to one plugin. Keys are stored
// as "plugin-<id>-<key>" with JSON-encoded values.
func (r *Registry) storageFactory(pluginID string) (Module, error) {
	kv := r.host.Storage
	prefix := storage.PluginPrefix(pluginID)
	need := func(fn func(context.Context, []any) (any, error)) Function {
		return func(ctx context.Context, args []any) (any, error) {
			if kv == nil {
				return nil, hostUnavailable(NamespaceStorage)
			}
			return fn(ctx, args)
		}
	}

	return NewModule(NamespaceStorage, map[string]Function{
		"get": need(func(ctx context.Context, args []any) (any, error) {
			key, err := argString("storage.get", args, 0)
			if err != nil {
				return nil, err
			}
			raw, err := kv.Get(ctx, storage.PluginKey(pluginID, key))
			if errors.Is(err, storage.ErrNotFound) {
				return argAt(args, 1), nil
			}
			if err != nil {
				return nil, err
			}
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("storage.get %q: %w", key, err)
			}
			return v, nil
		}),
		"set": need(func(ctx context.Context, args []any) (any, error) {
			key, err := argString("storage.set", args, 0)
			if err != nil {
				return nil, err
			}
			raw, err := json.Marshal(argAt(args, 1))
			if err != nil {
				return nil, argError("storage.set", "value not encodable: %v", err)
			}
			return nil, kv.Set(ctx, storage.PluginKey(pluginID, key), raw)
		}),
		"remove": need(func(ctx context.Context, args []any) (any, error) {
			key, err := argString("storage.remove", args, 0)
			if err != nil {
				return nil, err
			}
			return nil, kv.Delete(ctx, storage.PluginKey(pluginID, key))
		}),
		"clear": need(func(ctx context.Context, _ []any) (any, error) {
			n, err := kv.DeletePrefix(ctx, prefix)
			if err != nil {
				return nil, err
			}
			return n, nil
		}),
		"keys": need(func(ctx context.Context, _ []any) (any, error) {
			keys, err := kv.Keys(ctx, prefix)
			if err != nil {
				return nil, err
			}
			out := make([]string, len(keys))
			for i, k := range keys {
				out[i] = strings.TrimPrefix(k, prefix)
			}
			return out, nil
		}),
	}), nil
}

// AppTopic returns the host event-bus topic for an app event.
func AppTopic(eventName string) string {
	return "app:" + eventName
}

func (r *Registry) eventsFactory(pluginID string) (Module, error) {
	return NewModule(NamespaceEvents, map[string]Function{
		"emit": func(_ context.Context, args []any) (any, error) {
			name, err := argString("events.emit", args, 0)
			if err != nil {
				return nil, err
			}
			r.host.Events.Emit(AppTopic(name), argAt(args, 1))
			return nil, nil
		},
		"on": func(_ context.Context, args []any) (any, error) {
			name, err := argString("events.on", args, 0)
			if err != nil {
				return nil, err
			}
			cb, err := argCallback("events.on", args, 1)
			if err != nil {
				return nil, err
			}
			if _, err := r.AddPluginEventListener(pluginID, r.host.Events, AppTopic(name), cb); err != nil {
				return nil, err
			}
			return nil, nil
		},
		"off": func(_ context.Context, args []any) (any, error) {
			name, err := argString("events.off", args, 0)
			if err != nil {
				return nil, err
			}
			cb, err := argCallback("events.off", args, 1)
			if err != nil {
				return nil, err
			}
			return r.RemovePluginEventListener(pluginID, AppTopic(name), cb), nil
		},
	}), nil
}
