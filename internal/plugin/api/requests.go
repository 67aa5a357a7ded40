package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoRequestHandler is returned when calling a request nobody serves.
var ErrNoRequestHandler = errors.New("no request handler")

// RequestRegistry lets plugins serve named requests to each other.
type RequestRegistry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Callback
}

// NewRequestRegistry creates an empty request registry.
func NewRequestRegistry() *RequestRegistry {
	return &RequestRegistry{handlers: make(map[string]map[string]Callback)}
}

// Register serves name for pluginID, replacing a previous handler.
func (r *RequestRegistry) Register(pluginID, name string, cb Callback) error {
	if name == "" {
		return argError("requests.register", "name is required")
	}
	if cb == nil {
		return argError("requests.register", "handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[pluginID] == nil {
		r.handlers[pluginID] = make(map[string]Callback)
	}
	r.handlers[pluginID][name] = cb
	return nil
}

// Unregister stops serving name for pluginID.
func (r *RequestRegistry) Unregister(pluginID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[pluginID][name]; !ok {
		return false
	}
	delete(r.handlers[pluginID], name)
	if len(r.handlers[pluginID]) == 0 {
		delete(r.handlers, pluginID)
	}
	return true
}

// UnregisterPlugin drops every handler served by pluginID.
func (r *RequestRegistry) UnregisterPlugin(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.handlers[pluginID])
	delete(r.handlers, pluginID)
	return n
}

// Call invokes pluginID's handler for name and waits for its result.
func (r *RequestRegistry) Call(ctx context.Context, pluginID, name string, args ...any) (any, error) {
	r.mu.RLock()
	cb, ok := r.handlers[pluginID][name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", pluginID, name, ErrNoRequestHandler)
	}
	return cb.Invoke(ctx, args...)
}

// Names returns the request names served by pluginID, sorted.
func (r *RequestRegistry) Names(pluginID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers[pluginID]))
	for name := range r.handlers[pluginID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) requestsFactory(pluginID string) (Module, error) {
	return NewModule(NamespaceRequests, map[string]Function{
		"register": func(_ context.Context, args []any) (any, error) {
			name, err := argString("requests.register", args, 0)
			if err != nil {
				return nil, err
			}
			cb, err := argCallback("requests.register", args, 1)
			if err != nil {
				return nil, err
			}
			return nil, r.requests.Register(pluginID, name, cb)
		},
		"unregister": func(_ context.Context, args []any) (any, error) {
			name, err := argString("requests.unregister", args, 0)
			if err != nil {
				return nil, err
			}
			return r.requests.Unregister(pluginID, name), nil
		},
		"call": func(ctx context.Context, args []any) (any, error) {
			target, err := argString("requests.call", args, 0)
			if err != nil {
				return nil, err
			}
			name, err := argString("requests.call", args, 1)
			if err != nil {
				return nil, err
			}
			return r.requests.Call(ctx, target, name, args[2:]...)
		},
	}), nil
}
