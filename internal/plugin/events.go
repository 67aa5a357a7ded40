package plugin

// EventType identifies a manager event.
type EventType int

const (
	// EventPluginLoaded is emitted when a plugin instance is activated.
	EventPluginLoaded EventType = iota
	// EventPluginUnloaded is emitted when an instance is torn down.
	EventPluginUnloaded
	// EventPluginEnabled is emitted when a plugin is enabled.
	EventPluginEnabled
	// EventPluginDisabled is emitted when a plugin is disabled.
	EventPluginDisabled
	// EventPluginInstalled is emitted when a descriptor is installed.
	EventPluginInstalled
	// EventPluginUninstalled is emitted when a plugin is removed.
	EventPluginUninstalled
	// EventPluginReloaded is emitted after a successful reload.
	EventPluginReloaded
	// EventReloadError is emitted when a reload fails.
	EventReloadError
	// EventPluginLoadError is emitted once per failed load.
	EventPluginLoadError
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "pluginLoaded"
	case EventPluginUnloaded:
		return "pluginUnloaded"
	case EventPluginEnabled:
		return "pluginEnabled"
	case EventPluginDisabled:
		return "pluginDisabled"
	case EventPluginInstalled:
		return "pluginInstalled"
	case EventPluginUninstalled:
		return "pluginUninstalled"
	case EventPluginReloaded:
		return "pluginReloaded"
	case EventReloadError:
		return "reloadError"
	case EventPluginLoadError:
		return "pluginLoadError"
	default:
		return "unknown"
	}
}

// Event is a manager lifecycle notification.
type Event struct {
	Type     EventType
	PluginID string
	Error    error
}

// EventHandler handles manager events.
// Handlers must be non-blocking and must not call back into the Manager
// for the same plugin id. Panics in handlers are recovered.
type EventHandler func(event Event)

// Subscribe adds an event handler.
// Returns an unsubscribe function to remove the handler.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	m.mu.Lock()
	m.eventHandlers = append(m.eventHandlers, handler)
	index := len(m.eventHandlers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Slots are cleared, not removed, so other indexes stay valid.
		if index < len(m.eventHandlers) {
			m.eventHandlers[index] = nil
		}
	}
}

// emitEvent sends an event to all handlers.
// Handlers are called outside any locks and panics are recovered.
func (m *Manager) emitEvent(event Event) {
	m.mu.RLock()
	handlers := make([]EventHandler, len(m.eventHandlers))
	copy(handlers, m.eventHandlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("event handler panic on %s: %v", event.Type, r)
				}
			}()
			handler(event)
		}()
	}
}
