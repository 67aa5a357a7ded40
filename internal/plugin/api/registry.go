package api

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dshills/musicbox/internal/event"
	"github.com/dshills/musicbox/internal/logging"
	"github.com/dshills/musicbox/internal/storage"
)

// Registry holds the capability namespaces and everything a plugin context
// can hand out: listener ledger, commands, request handlers, styles and
// host injections.
type Registry struct {
	mu        sync.RWMutex
	statics   map[string]*FuncModule
	factories map[string]Factory
	order     []string

	ledger     *Ledger
	commands   *CommandRegistry
	styles     *StyleSheet
	requests   *RequestRegistry
	injections *injectionTracker

	host    Host
	logger  *logging.Logger
	enforce bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		r.logger = logging.OrNull(l)
	}
}

// WithHost sets the host collaborators namespaces delegate to.
func WithHost(h Host) Option {
	return func(r *Registry) {
		r.host = h
	}
}

// WithEnforcePermissions replaces undeclared namespaces with denied modules.
func WithEnforcePermissions(enforce bool) Option {
	return func(r *Registry) {
		r.enforce = enforce
	}
}

// NewRegistry creates an empty registry. Without a host event source the
// registry creates a private event.Bus so messaging always works.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		statics:    make(map[string]*FuncModule),
		factories:  make(map[string]Factory),
		commands:   NewCommandRegistry(),
		styles:     NewStyleSheet(),
		requests:   NewRequestRegistry(),
		injections: newInjectionTracker(),
		logger:     logging.NullLogger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.host.Events == nil {
		r.host.Events = event.NewBus(event.WithLogger(r.logger.WithComponent("bus")))
	}
	r.ledger = NewLedger(r.logger.WithComponent("ledger"))
	return r
}

// DefaultRegistry creates a registry with every built-in namespace
// registered.
func DefaultRegistry(opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	if err := r.RegisterBuiltins(); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterBuiltins registers the built-in namespaces.
func (r *Registry) RegisterBuiltins() error {
	factories := []struct {
		name    string
		factory Factory
	}{
		{NamespacePlayer, r.playerFactory},
		{NamespaceLibrary, r.libraryFactory},
		{NamespaceUI, r.uiFactory},
		{NamespaceSettings, r.settingsFactory},
		{NamespaceNavigation, r.navigationFactory},
		{NamespaceContextMenu, r.contextMenuFactory},
		{NamespaceStorage, r.storageFactory},
		{NamespaceEvents, r.eventsFactory},
		{NamespaceRequests, r.requestsFactory},
	}
	for _, f := range factories {
		if err := r.RegisterFactory(f.name, f.factory); err != nil {
			return err
		}
	}
	return r.Register(NamespaceSystem, newSystemModule())
}

// Built-in namespace names.
const (
	NamespacePlayer      = "player"
	NamespaceLibrary     = "library"
	NamespaceUI          = "ui"
	NamespaceSettings    = "settings"
	NamespaceNavigation  = "navigation"
	NamespaceContextMenu = "contextMenu"
	NamespaceStorage     = "storage"
	NamespaceSystem      = "system"
	NamespaceEvents      = "events"
	NamespaceRequests    = "requests"
)

// Register adds a static namespace shared by every plugin.
func (r *Registry) Register(namespace string, mod *FuncModule) error {
	if mod == nil {
		return argError("register", "module is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkFreeLocked(namespace); err != nil {
		return err
	}
	r.statics[namespace] = mod
	r.order = append(r.order, namespace)
	return nil
}

// RegisterFactory adds a namespace built once per plugin.
func (r *Registry) RegisterFactory(namespace string, factory Factory) error {
	if factory == nil {
		return argError("registerFactory", "factory is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkFreeLocked(namespace); err != nil {
		return err
	}
	r.factories[namespace] = factory
	r.order = append(r.order, namespace)
	return nil
}

func (r *Registry) checkFreeLocked(namespace string) error {
	if namespace == "" {
		return argError("register", "namespace is required")
	}
	_, static := r.statics[namespace]
	_, factory := r.factories[namespace]
	if static || factory {
		return fmt.Errorf("%q: %w", namespace, ErrNamespaceExists)
	}
	return nil
}

// Extend merges funcs into a static namespace. Contexts created afterwards
// see the new functions.
func (r *Registry) Extend(namespace string, funcs map[string]Function) error {
	r.mu.RLock()
	mod, ok := r.statics[namespace]
	_, isFactory := r.factories[namespace]
	r.mu.RUnlock()

	switch {
	case isFactory:
		return fmt.Errorf("%q: %w", namespace, ErrNotExtendable)
	case !ok:
		return fmt.Errorf("%q: %w", namespace, ErrNamespaceNotFound)
	}
	mod.Extend(funcs)
	return nil
}

// Remove drops a namespace. Existing contexts keep their modules.
func (r *Registry) Remove(namespace string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, static := r.statics[namespace]
	_, factory := r.factories[namespace]
	if !static && !factory {
		return false
	}
	delete(r.statics, namespace)
	delete(r.factories, namespace)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == namespace })
	return true
}

// Namespaces returns the registered namespaces in registration order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// IsFactory reports whether namespace is built per plugin.
func (r *Registry) IsFactory(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[namespace]
	return ok
}

// CreateContext builds the context handed to a plugin's constructor.
// Factories run once per call; a factory that fails or panics leaves its
// namespace nil.
func (r *Registry) CreateContext(pluginID string, permissions []string) *Context {
	r.mu.RLock()
	order := slices.Clone(r.order)
	statics := make(map[string]*FuncModule, len(r.statics))
	for k, v := range r.statics {
		statics[k] = v
	}
	factories := make(map[string]Factory, len(r.factories))
	for k, v := range r.factories {
		factories[k] = v
	}
	r.mu.RUnlock()

	log := r.logger.WithPlugin(pluginID)
	c := &Context{
		PluginID:    pluginID,
		Permissions: slices.Clone(permissions),
		order:       order,
		namespaces:  make(map[string]Module, len(order)),
	}

	for _, name := range order {
		var mod Module
		if static, ok := statics[name]; ok {
			mod = static
		} else {
			built, err := r.buildFactory(factories[name], pluginID)
			if err != nil {
				log.Error("namespace %s: factory failed: %v", name, err)
				c.namespaces[name] = nil
				continue
			}
			mod = built
		}
		if r.enforce && mod != nil && !slices.Contains(permissions, name) {
			mod = deniedModule(pluginID, mod)
		}
		c.namespaces[name] = mod
	}

	c.messaging = &Messaging{registry: r, pluginID: pluginID}
	c.utils = &Utils{registry: r, pluginID: pluginID}
	return c
}

func (r *Registry) buildFactory(factory Factory, pluginID string) (mod Module, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			mod, err = nil, fmt.Errorf("factory panic: %v", rec)
		}
	}()
	mod, err = factory(pluginID)
	if err == nil && mod == nil {
		err = fmt.Errorf("factory returned no module")
	}
	return mod, err
}

// Events returns the event source subscriptions attach to.
func (r *Registry) Events() EventSource {
	return r.host.Events
}

// Commands returns the command registry.
func (r *Registry) Commands() *CommandRegistry {
	return r.commands
}

// Styles returns the plugin style sheet.
func (r *Registry) Styles() *StyleSheet {
	return r.styles
}

// Requests returns the inter-plugin request registry.
func (r *Registry) Requests() *RequestRegistry {
	return r.requests
}

// AddPluginEventListener subscribes cb on source and records it in the
// ledger. An identical callback for the same plugin and event is rejected
// with ErrDuplicateListener.
func (r *Registry) AddPluginEventListener(pluginID string, source EventSource, eventName string, cb Callback) (*Subscription, error) {
	return r.ledger.Add(pluginID, source, eventName, cb)
}

// RemovePluginEventListener removes one ledger entry.
func (r *Registry) RemovePluginEventListener(pluginID, eventName string, cb Callback) bool {
	return r.ledger.Remove(pluginID, eventName, cb)
}

// RemoveAllPluginEventListeners disposes every subscription held by
// pluginID and deletes its ledger key.
func (r *Registry) RemoveAllPluginEventListeners(pluginID string) int {
	return r.ledger.RemoveAll(pluginID)
}

// PluginEventListenerStats reports pluginID's listener counts.
func (r *Registry) PluginEventListenerStats(pluginID string) ListenerStats {
	return r.ledger.Stats(pluginID)
}

// HasListeners reports whether pluginID holds any ledger entry.
func (r *Registry) HasListeners(pluginID string) bool {
	return r.ledger.Has(pluginID)
}

// ReleasePlugin drops everything other than listeners that holds pluginID's
// callbacks: commands, request handlers and host injections.
func (r *Registry) ReleasePlugin(ctx context.Context, pluginID string) {
	log := r.logger.WithPlugin(pluginID)
	if n := r.commands.UnregisterPlugin(pluginID); n > 0 {
		log.Debug("released %d commands", n)
	}
	if n := r.requests.UnregisterPlugin(pluginID); n > 0 {
		log.Debug("released %d request handlers", n)
	}
	for _, inj := range r.injections.take(pluginID) {
		if err := r.removeInjection(ctx, pluginID, inj); err != nil {
			log.Warn("remove %s item %s: %v", inj.kind, inj.id, err)
		}
	}
}

// ForgetPlugin removes what outlives a load: the plugin's CSS and its
// storage keys. Uninstall calls it after the plugin has been unloaded.
func (r *Registry) ForgetPlugin(ctx context.Context, pluginID string) error {
	r.styles.Remove(pluginID)
	if r.host.Storage == nil {
		return nil
	}
	n, err := r.host.Storage.DeletePrefix(ctx, storage.PluginPrefix(pluginID))
	if err != nil {
		return fmt.Errorf("clear storage for %q: %w", pluginID, err)
	}
	if n > 0 {
		r.logger.WithPlugin(pluginID).Debug("cleared %d storage keys", n)
	}
	return nil
}

// ExecuteCommand runs a registered "<pluginID>.<commandID>" command.
func (r *Registry) ExecuteCommand(ctx context.Context, commandID string, args ...any) (any, error) {
	return r.commands.Execute(ctx, commandID, args...)
}

func (r *Registry) removeInjection(ctx context.Context, pluginID string, inj injection) error {
	switch inj.kind {
	case injectNavigation:
		if r.host.Navigation != nil {
			return r.host.Navigation.RemoveItem(ctx, pluginID, inj.id)
		}
	case injectSettings:
		if r.host.Settings != nil {
			return r.host.Settings.RemoveSection(ctx, pluginID, inj.id)
		}
	case injectContextMenu:
		if r.host.ContextMenu != nil {
			return r.host.ContextMenu.RemoveItem(ctx, pluginID, inj.id)
		}
	}
	return nil
}

type injectionKind string

const (
	injectNavigation  injectionKind = "navigation"
	injectSettings    injectionKind = "settings"
	injectContextMenu injectionKind = "contextMenu"
)

type injection struct {
	kind injectionKind
	id   string
}

// injectionTracker records the host items each plugin added.
type injectionTracker struct {
	mu    sync.Mutex
	items map[string][]injection
}

func newInjectionTracker() *injectionTracker {
	return &injectionTracker{items: make(map[string][]injection)}
}

func (t *injectionTracker) add(pluginID string, kind injectionKind, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[pluginID] = append(t.items[pluginID], injection{kind: kind, id: id})
}

func (t *injectionTracker) remove(pluginID string, kind injectionKind, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[pluginID] = slices.DeleteFunc(t.items[pluginID], func(i injection) bool {
		return i.kind == kind && i.id == id
	})
	if len(t.items[pluginID]) == 0 {
		delete(t.items, pluginID)
	}
}

func (t *injectionTracker) take(pluginID string) []injection {
	t.mu.Lock()
	defer t.mu.Unlock()
	items := t.items[pluginID]
	delete(t.items, pluginID)
	return items
}

func (t *injectionTracker) count(pluginID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items[pluginID])
}
