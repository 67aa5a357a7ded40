package api

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// CommandID returns the fully qualified id "<pluginID>.<commandID>".
func CommandID(pluginID, commandID string) string {
	return pluginID + "." + commandID
}

type commandEntry struct {
	pluginID string
	handler  Callback
}

// CommandRegistry maps fully qualified command ids to plugin handlers.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]commandEntry
}

// NewCommandRegistry creates an empty command registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]commandEntry)}
}

// Register binds handler to "<pluginID>.<commandID>", replacing any
// previous handler, and returns the qualified id.
func (r *CommandRegistry) Register(pluginID, commandID string, handler Callback) (string, error) {
	if strings.TrimSpace(commandID) == "" {
		return "", argError("registerCommand", "command id is required")
	}
	if handler == nil {
		return "", argError("registerCommand", "handler is required")
	}
	id := CommandID(pluginID, commandID)

	r.mu.Lock()
	r.commands[id] = commandEntry{pluginID: pluginID, handler: handler}
	r.mu.Unlock()
	return id, nil
}

// Unregister removes one of pluginID's commands.
func (r *CommandRegistry) Unregister(pluginID, commandID string) bool {
	id := CommandID(pluginID, commandID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[id]; !ok {
		return false
	}
	delete(r.commands, id)
	return true
}

// UnregisterPlugin removes every command owned by pluginID.
func (r *CommandRegistry) UnregisterPlugin(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, entry := range r.commands {
		if entry.pluginID == pluginID {
			delete(r.commands, id)
			n++
		}
	}
	return n
}

// Execute invokes the handler for a qualified command id.
func (r *CommandRegistry) Execute(ctx context.Context, commandID string, args ...any) (any, error) {
	r.mu.RLock()
	entry, ok := r.commands[commandID]
	r.mu.RUnlock()
	if !ok {
		return nil, &CommandNotFoundError{CommandID: commandID}
	}
	return entry.handler.Invoke(ctx, args...)
}

// Has reports whether a qualified command id is registered.
func (r *CommandRegistry) Has(commandID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[commandID]
	return ok
}

// List returns the registered qualified ids, sorted.
func (r *CommandRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
