package api

import (
	"context"
	"slices"
)

// Event topic prefixes used by plugin messaging.
const (
	PluginTopicPrefix = "plugin:"
	BroadcastTopic    = "plugin:broadcast:"
)

// PluginTopic returns the private channel topic for pluginID's event.
func PluginTopic(pluginID, eventName string) string {
	return PluginTopicPrefix + pluginID + ":" + eventName
}

// BroadcastTopicFor returns the broadcast topic for eventName.
func BroadcastTopicFor(eventName string) string {
	return BroadcastTopic + eventName
}

// Context is the capability surface handed to one plugin. It is created by
// Registry.CreateContext and lives as long as the plugin instance.
type Context struct {
	PluginID    string
	Permissions []string

	order      []string
	namespaces map[string]Module
	messaging  *Messaging
	utils      *Utils
}

// Namespaces returns every namespace name, including those whose factory
// failed.
func (c *Context) Namespaces() []string {
	return slices.Clone(c.order)
}

// Namespace returns the module bound to name. The result is nil for unknown
// namespaces and for namespaces whose factory failed.
func (c *Context) Namespace(name string) Module {
	return c.namespaces[name]
}

// Messaging returns the plugin messaging helper.
func (c *Context) Messaging() *Messaging { return c.messaging }

// Utils returns the plugin utility helper.
func (c *Context) Utils() *Utils { return c.utils }

// Messaging provides private channels, broadcasts and listening to other
// plugins. Every subscription goes through the registry ledger.
type Messaging struct {
	registry *Registry
	pluginID string
}

// Emit publishes data on the plugin's own channel.
func (m *Messaging) Emit(eventName string, data any) {
	m.registry.host.Events.Emit(PluginTopic(m.pluginID, eventName), data)
}

// On listens on the plugin's own channel.
func (m *Messaging) On(eventName string, cb Callback) (*Subscription, error) {
	return m.subscribe(PluginTopic(m.pluginID, eventName), cb)
}

// Off removes a listener added with On.
func (m *Messaging) Off(eventName string, cb Callback) bool {
	return m.registry.RemovePluginEventListener(m.pluginID, PluginTopic(m.pluginID, eventName), cb)
}

// Broadcast publishes data to every plugin listening on eventName.
func (m *Messaging) Broadcast(eventName string, data any) {
	m.registry.host.Events.Emit(BroadcastTopicFor(eventName), data)
}

// OnBroadcast listens for broadcasts.
func (m *Messaging) OnBroadcast(eventName string, cb Callback) (*Subscription, error) {
	return m.subscribe(BroadcastTopicFor(eventName), cb)
}

// OffBroadcast removes a listener added with OnBroadcast.
func (m *Messaging) OffBroadcast(eventName string, cb Callback) bool {
	return m.registry.RemovePluginEventListener(m.pluginID, BroadcastTopicFor(eventName), cb)
}

// OnPlugin listens on another plugin's private channel.
func (m *Messaging) OnPlugin(otherID, eventName string, cb Callback) (*Subscription, error) {
	if otherID == "" {
		return nil, argError("onPlugin", "plugin id is required")
	}
	return m.subscribe(PluginTopic(otherID, eventName), cb)
}

// OffPlugin removes a listener added with OnPlugin.
func (m *Messaging) OffPlugin(otherID, eventName string, cb Callback) bool {
	return m.registry.RemovePluginEventListener(m.pluginID, PluginTopic(otherID, eventName), cb)
}

func (m *Messaging) subscribe(topic string, cb Callback) (*Subscription, error) {
	if topic == PluginTopicPrefix || topic == BroadcastTopic {
		return nil, argError("on", "event name is required")
	}
	return m.registry.AddPluginEventListener(m.pluginID, m.registry.host.Events, topic, cb)
}

// Module exposes the messaging helper to script runtimes.
func (m *Messaging) Module() *FuncModule {
	return NewModule("messaging", map[string]Function{
		"emit": func(_ context.Context, args []any) (any, error) {
			name, err := argString("emit", args, 0)
			if err != nil {
				return nil, err
			}
			m.Emit(name, argAt(args, 1))
			return nil, nil
		},
		"on": func(_ context.Context, args []any) (any, error) {
			return m.onFunc("on", args, m.On)
		},
		"off": func(_ context.Context, args []any) (any, error) {
			return m.offFunc("off", args, m.Off)
		},
		"broadcast": func(_ context.Context, args []any) (any, error) {
			name, err := argString("broadcast", args, 0)
			if err != nil {
				return nil, err
			}
			m.Broadcast(name, argAt(args, 1))
			return nil, nil
		},
		"onBroadcast": func(_ context.Context, args []any) (any, error) {
			return m.onFunc("onBroadcast", args, m.OnBroadcast)
		},
		"offBroadcast": func(_ context.Context, args []any) (any, error) {
			return m.offFunc("offBroadcast", args, m.OffBroadcast)
		},
		"onPlugin": func(_ context.Context, args []any) (any, error) {
			other, err := argString("onPlugin", args, 0)
			if err != nil {
				return nil, err
			}
			return m.onFunc("onPlugin", args[1:], func(ev string, cb Callback) (*Subscription, error) {
				return m.OnPlugin(other, ev, cb)
			})
		},
		"offPlugin": func(_ context.Context, args []any) (any, error) {
			other, err := argString("offPlugin", args, 0)
			if err != nil {
				return nil, err
			}
			return m.offFunc("offPlugin", args[1:], func(ev string, cb Callback) bool {
				return m.OffPlugin(other, ev, cb)
			})
		},
	})
}

func (m *Messaging) onFunc(fn string, args []any, on func(string, Callback) (*Subscription, error)) (any, error) {
	name, err := argString(fn, args, 0)
	if err != nil {
		return nil, err
	}
	cb, err := argCallback(fn, args, 1)
	if err != nil {
		return nil, err
	}
	if _, err := on(name, cb); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *Messaging) offFunc(fn string, args []any, off func(string, Callback) bool) (any, error) {
	name, err := argString(fn, args, 0)
	if err != nil {
		return nil, err
	}
	cb, err := argCallback(fn, args, 1)
	if err != nil {
		return nil, err
	}
	return off(name, cb), nil
}

// Utils provides DOM, style, notification and command helpers scoped to
// one plugin.
type Utils struct {
	registry *Registry
	pluginID string
}

// CreateElement renders an element tagged with the plugin id.
func (u *Utils) CreateElement(tag string, attrs map[string]any, children []any) (string, error) {
	return CreateElement(u.pluginID, tag, attrs, children)
}

// AddCSS replaces the plugin's style block.
func (u *Utils) AddCSS(css string) {
	u.registry.styles.Set(u.pluginID, css)
}

// RemoveCSS drops the plugin's style block.
func (u *Utils) RemoveCSS() bool {
	return u.registry.styles.Remove(u.pluginID)
}

// ShowNotification forwards a message to the host notifier.
func (u *Utils) ShowNotification(ctx context.Context, message, kind string, duration int) error {
	if u.registry.host.Notifier == nil {
		u.registry.logger.WithPlugin(u.pluginID).Info("notification (%s): %s", kind, message)
		return nil
	}
	return u.registry.host.Notifier.Notify(ctx, Notification{
		PluginID: u.pluginID,
		Message:  message,
		Type:     kind,
		Duration: duration,
	})
}

// RegisterCommand binds cb to "<pluginID>.<commandID>" and returns the
// qualified id.
func (u *Utils) RegisterCommand(commandID string, cb Callback) (string, error) {
	return u.registry.commands.Register(u.pluginID, commandID, cb)
}

// UnregisterCommand removes one of the plugin's commands.
func (u *Utils) UnregisterCommand(commandID string) bool {
	return u.registry.commands.Unregister(u.pluginID, commandID)
}

// Module exposes the utility helper to script runtimes.
func (u *Utils) Module() *FuncModule {
	return NewModule("utils", map[string]Function{
		"createElement": func(_ context.Context, args []any) (any, error) {
			tag, err := argString("createElement", args, 0)
			if err != nil {
				return nil, err
			}
			return u.CreateElement(tag, optMap(args, 1), optSlice(args, 2))
		},
		"addCSS": func(_ context.Context, args []any) (any, error) {
			css, err := argString("addCSS", args, 0)
			if err != nil {
				return nil, err
			}
			u.AddCSS(css)
			return nil, nil
		},
		"removeCSS": func(context.Context, []any) (any, error) {
			return u.RemoveCSS(), nil
		},
		"showNotification": func(ctx context.Context, args []any) (any, error) {
			msg, err := argString("showNotification", args, 0)
			if err != nil {
				return nil, err
			}
			return nil, u.ShowNotification(ctx, msg, optString(args, 1, "info"), optInt(args, 2, 3000))
		},
		"registerCommand": func(_ context.Context, args []any) (any, error) {
			id, err := argString("registerCommand", args, 0)
			if err != nil {
				return nil, err
			}
			cb, err := argCallback("registerCommand", args, 1)
			if err != nil {
				return nil, err
			}
			return u.RegisterCommand(id, cb)
		},
		"unregisterCommand": func(_ context.Context, args []any) (any, error) {
			id, err := argString("unregisterCommand", args, 0)
			if err != nil {
				return nil, err
			}
			return u.UnregisterCommand(id), nil
		},
	})
}
