package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/musicbox/internal/logging"
	"github.com/dshills/musicbox/internal/plugin/api"
	plua "github.com/dshills/musicbox/internal/plugin/lua"
	"github.com/dshills/musicbox/internal/storage"
	"github.com/dshills/musicbox/internal/storage/memory"
)

// ErrPluginDisabled is returned when loading or reloading a disabled plugin.
var ErrPluginDisabled = errors.New("plugin is disabled")

// DefaultLoadConcurrency bounds how many plugins Initialize loads at once.
const DefaultLoadConcurrency = 4

// Manager owns installed plugins and drives them through
// install, enable, load, unload, disable and uninstall.
//
// Operations for one plugin id are serialized in arrival order; operations
// for different ids run concurrently. Event handlers run synchronously
// inside the operation that emitted them and must not call back into the
// Manager for the same id.
type Manager struct {
	mu sync.RWMutex

	descriptors map[string]*Descriptor
	states      map[string]State
	instances   map[string]*Instance

	// Event handlers (protected by mu)
	eventHandlers []EventHandler

	queue       *keyedQueue
	loader      *plua.ScriptLoader
	registry    *api.Registry
	store       storage.ConfigStore
	logger      *logging.Logger
	concurrency int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.OrNull(l).WithComponent("plugins")
	}
}

// WithLoadConcurrency bounds parallel loads during Initialize.
func WithLoadConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// NewManager creates a manager. A nil store keeps descriptors in memory.
func NewManager(loader *plua.ScriptLoader, registry *api.Registry, store storage.ConfigStore, opts ...Option) *Manager {
	if store == nil {
		store = memory.New()
	}
	m := &Manager{
		descriptors: make(map[string]*Descriptor),
		states:      make(map[string]State),
		instances:   make(map[string]*Instance),
		queue:       newKeyedQueue(),
		loader:      loader,
		registry:    registry,
		store:       store,
		logger:      logging.NullLogger,
		concurrency: DefaultLoadConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Instance is a live plugin object owned by the Manager.
type Instance struct {
	ID        string
	CreatedAt time.Time

	obj     *plua.Instance
	context *api.Context
}

// Context returns the capability context the instance was built with.
func (i *Instance) Context() *api.Context { return i.context }

// Call invokes a method on the plugin object. ok is false when the method
// does not exist.
func (i *Instance) Call(ctx context.Context, method string, args ...any) (result any, ok bool, err error) {
	return i.obj.Call(ctx, method, args...)
}

// PluginInfo summarizes one installed plugin.
type PluginInfo struct {
	ID         string
	Descriptor *Descriptor
	Enabled    bool
	Loaded     bool
	State      State
}

// Initialize reads installed descriptors and enabled flags from the store
// and loads every enabled plugin. Load failures are logged and leave the
// plugin in Enabled(Failed).
func (m *Manager) Initialize(ctx context.Context) error {
	records, err := m.store.ListConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list plugin configs: %w", err)
	}
	enabled, err := m.store.ListStates(ctx)
	if err != nil {
		return fmt.Errorf("list plugin states: %w", err)
	}

	var toLoad []string
	m.mu.Lock()
	for _, rec := range records {
		d, err := UnmarshalDescriptor(rec.Descriptor)
		if err != nil {
			m.logger.WithPlugin(rec.ID).Error("skipping stored descriptor: %v", err)
			continue
		}
		if d.ID != rec.ID {
			m.logger.WithPlugin(rec.ID).Warn("stored descriptor has id %q", d.ID)
			d.ID = rec.ID
		}
		m.descriptors[rec.ID] = d
		if enabled[rec.ID] {
			m.states[rec.ID] = Pending()
			toLoad = append(toLoad, rec.ID)
		} else {
			m.states[rec.ID] = Disabled()
		}
	}
	m.mu.Unlock()

	sort.Strings(toLoad)
	m.logger.Info("initializing %d installed plugins, %d enabled", len(records), len(toLoad))

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, id := range toLoad {
		g.Go(func() error {
			if err := m.LoadPlugin(ctx, id); err != nil {
				m.logger.WithPlugin(id).Error("initial load failed: %v", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Install validates and persists d, marks it enabled and loads it. A load
// failure leaves the plugin installed in Enabled(Failed) and is returned.
func (m *Manager) Install(ctx context.Context, d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	d = d.Clone()

	return m.queue.Do(ctx, d.ID, func() error {
		if m.installed(d.ID) {
			return &ConfigError{PluginID: d.ID, Err: ErrAlreadyInstalled}
		}
		if err := m.persistDescriptor(ctx, d); err != nil {
			return err
		}
		if err := m.store.PutState(ctx, d.ID, true); err != nil {
			return fmt.Errorf("persist plugin %q state: %w", d.ID, err)
		}

		m.mu.Lock()
		m.descriptors[d.ID] = d
		m.states[d.ID] = Pending()
		m.mu.Unlock()

		m.logger.WithPlugin(d.ID).Info("installed %s %s", d.Name, d.Version)
		m.emitEvent(Event{Type: EventPluginInstalled, PluginID: d.ID})
		return m.load(ctx, d.ID)
	})
}

// InstallFromFile reads a plugin.json or plugin.yaml descriptor (or a
// directory holding one) and installs it.
func (m *Manager) InstallFromFile(ctx context.Context, path string) error {
	d, err := LoadDescriptorFile(path)
	if err != nil {
		return &ConfigError{Err: err}
	}
	return m.Install(ctx, d)
}

// Update replaces an installed descriptor. A loaded plugin is reloaded
// from the new descriptor.
func (m *Manager) Update(ctx context.Context, d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	d = d.Clone()

	return m.queue.Do(ctx, d.ID, func() error {
		if !m.installed(d.ID) {
			return &ConfigError{PluginID: d.ID, Err: ErrNotInstalled}
		}
		if err := m.persistDescriptor(ctx, d); err != nil {
			return err
		}
		m.mu.Lock()
		m.descriptors[d.ID] = d
		m.mu.Unlock()

		if !m.loaded(d.ID) {
			return nil
		}
		return m.reload(ctx, d.ID)
	})
}

// Enable marks the plugin enabled and loads it.
func (m *Manager) Enable(ctx context.Context, id string) error {
	return m.queue.Do(ctx, id, func() error {
		if !m.installed(id) {
			return &ConfigError{PluginID: id, Err: ErrNotInstalled}
		}
		if err := m.store.PutState(ctx, id, true); err != nil {
			return fmt.Errorf("persist plugin %q state: %w", id, err)
		}

		m.mu.Lock()
		if !m.states[id].Enabled() {
			m.states[id] = Pending()
		}
		m.mu.Unlock()

		m.emitEvent(Event{Type: EventPluginEnabled, PluginID: id})
		if m.loaded(id) {
			return nil
		}
		return m.load(ctx, id)
	})
}

// Disable marks the plugin disabled and unloads it.
func (m *Manager) Disable(ctx context.Context, id string) error {
	return m.queue.Do(ctx, id, func() error {
		if !m.installed(id) {
			return &ConfigError{PluginID: id, Err: ErrNotInstalled}
		}
		if err := m.store.PutState(ctx, id, false); err != nil {
			return fmt.Errorf("persist plugin %q state: %w", id, err)
		}
		if m.loaded(id) {
			m.unload(ctx, id)
		}

		m.mu.Lock()
		m.states[id] = Disabled()
		m.mu.Unlock()

		m.emitEvent(Event{Type: EventPluginDisabled, PluginID: id})
		return nil
	})
}

// Uninstall unloads the plugin, deletes its descriptor and state, and
// removes its styles and stored data.
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	return m.queue.Do(ctx, id, func() error {
		if !m.installed(id) {
			return &ConfigError{PluginID: id, Err: ErrNotInstalled}
		}
		if m.loaded(id) {
			m.unload(ctx, id)
		}
		m.loader.Unload(id)

		var errs []error
		if err := m.store.DeleteConfig(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete config: %w", err))
		}
		if err := m.store.DeleteState(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete state: %w", err))
		}
		if err := m.registry.ForgetPlugin(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("clear plugin data: %w", err))
		}

		m.mu.Lock()
		delete(m.descriptors, id)
		delete(m.states, id)
		m.mu.Unlock()

		m.logger.WithPlugin(id).Info("uninstalled")
		m.emitEvent(Event{Type: EventPluginUninstalled, PluginID: id})
		if len(errs) > 0 {
			return fmt.Errorf("uninstall plugin %q: %w", id, errors.Join(errs...))
		}
		return nil
	})
}

// LoadPlugin evaluates the plugin's main script, builds its context,
// constructs the instance and activates it. Loading an already loaded
// plugin logs a warning and returns nil.
func (m *Manager) LoadPlugin(ctx context.Context, id string) error {
	return m.queue.Do(ctx, id, func() error {
		return m.load(ctx, id)
	})
}

// UnloadPlugin deactivates the instance and releases everything the plugin
// registered. Unloading a plugin that is not loaded logs a warning.
func (m *Manager) UnloadPlugin(ctx context.Context, id string) error {
	return m.queue.Do(ctx, id, func() error {
		if !m.loaded(id) {
			m.logger.WithPlugin(id).Warn("unload: %v", ErrNotLoaded)
			return nil
		}
		m.unload(ctx, id)
		return nil
	})
}

// Reload unloads and loads the plugin as one operation.
func (m *Manager) Reload(ctx context.Context, id string) error {
	return m.queue.Do(ctx, id, func() error {
		return m.reload(ctx, id)
	})
}

// ExecuteCommand runs a command registered by a plugin as
// "<pluginID>.<commandID>".
func (m *Manager) ExecuteCommand(ctx context.Context, commandID string, args ...any) (any, error) {
	return m.registry.ExecuteCommand(ctx, commandID, args...)
}

// Shutdown unloads every loaded plugin. Enabled flags are kept, so the
// next Initialize loads them again.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	var errs []error
	for _, id := range ids {
		if err := m.UnloadPlugin(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to unload %d plugins: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (m *Manager) load(ctx context.Context, id string) error {
	log := m.logger.WithPlugin(id)
	if m.loaded(id) {
		log.Warn("load: %v", ErrAlreadyLoaded)
		return nil
	}

	m.mu.RLock()
	d, ok := m.descriptors[id]
	state := m.states[id]
	m.mu.RUnlock()
	if !ok {
		err := &ConfigError{PluginID: id, Err: ErrNotInstalled}
		m.emitEvent(Event{Type: EventPluginLoadError, PluginID: id, Error: err})
		return err
	}
	if !state.Enabled() {
		err := fmt.Errorf("plugin %q: %w", id, ErrPluginDisabled)
		m.emitEvent(Event{Type: EventPluginLoadError, PluginID: id, Error: err})
		return err
	}

	fail := func(err error) error {
		m.releaseRuntime(ctx, id)
		m.setState(id, Failed(err))
		log.Error("load failed: %v", err)
		m.emitEvent(Event{Type: EventPluginLoadError, PluginID: id, Error: err})
		return err
	}

	ctor, err := m.loader.Load(ctx, id, d.Main)
	if err != nil {
		return fail(err)
	}

	pc := m.registry.CreateContext(id, d.Permissions)
	obj, err := ctor.New(ctx, pc)
	if err != nil {
		return fail(&InstantiationError{PluginID: id, Err: err})
	}
	if err := obj.Activate(ctx); err != nil {
		return fail(&ActivationError{PluginID: id, Err: err})
	}

	inst := &Instance{ID: id, CreatedAt: time.Now(), obj: obj, context: pc}
	m.mu.Lock()
	m.instances[id] = inst
	m.states[id] = Active()
	m.mu.Unlock()

	log.Info("loaded %s %s", d.Name, d.Version)
	m.emitEvent(Event{Type: EventPluginLoaded, PluginID: id})
	return nil
}

// unload runs every teardown step even when an earlier one fails.
func (m *Manager) unload(ctx context.Context, id string) {
	log := m.logger.WithPlugin(id)

	m.mu.RLock()
	inst := m.instances[id]
	m.mu.RUnlock()

	if inst != nil {
		if err := inst.obj.Deactivate(ctx); err != nil {
			log.Warn("deactivate: %v", err)
		}
	}
	m.releaseRuntime(ctx, id)

	m.mu.Lock()
	delete(m.instances, id)
	if st, ok := m.states[id]; ok && st.Enabled() {
		m.states[id] = Pending()
	}
	m.mu.Unlock()

	log.Info("unloaded")
	m.emitEvent(Event{Type: EventPluginUnloaded, PluginID: id})
}

// releaseRuntime stops the Lua unit, then drops listeners and host
// injections, so nothing still queued on the unit can register behind the
// cleanup.
func (m *Manager) releaseRuntime(ctx context.Context, id string) {
	m.loader.Unload(id)
	if n := m.registry.RemoveAllPluginEventListeners(id); n > 0 {
		m.logger.WithPlugin(id).Debug("removed %d event listeners", n)
	}
	m.registry.ReleasePlugin(ctx, id)
}

func (m *Manager) reload(ctx context.Context, id string) error {
	if !m.installed(id) {
		err := &ConfigError{PluginID: id, Err: ErrNotInstalled}
		m.emitEvent(Event{Type: EventReloadError, PluginID: id, Error: err})
		return err
	}
	if m.loaded(id) {
		m.unload(ctx, id)
	}
	if err := m.load(ctx, id); err != nil {
		m.emitEvent(Event{Type: EventReloadError, PluginID: id, Error: err})
		return err
	}
	m.emitEvent(Event{Type: EventPluginReloaded, PluginID: id})
	return nil
}

func (m *Manager) persistDescriptor(ctx context.Context, d *Descriptor) error {
	data, err := MarshalDescriptor(d)
	if err != nil {
		return &ConfigError{PluginID: d.ID, Err: err}
	}
	if err := m.store.PutConfig(ctx, d.ID, data); err != nil {
		return fmt.Errorf("persist plugin %q descriptor: %w", d.ID, err)
	}
	return nil
}

func (m *Manager) setState(id string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.descriptors[id]; ok {
		m.states[id] = s
	}
}

func (m *Manager) installed(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.descriptors[id]
	return ok
}

func (m *Manager) loaded(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.instances[id]
	return ok
}

// GetAllPlugins returns every installed plugin, sorted by id.
func (m *Manager) GetAllPlugins() []PluginInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]PluginInfo, 0, len(m.descriptors))
	for id := range m.descriptors {
		result = append(result, m.infoLocked(id))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Get returns one plugin's summary.
func (m *Manager) Get(id string) (PluginInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.descriptors[id]; !ok {
		return PluginInfo{}, false
	}
	return m.infoLocked(id), true
}

func (m *Manager) infoLocked(id string) PluginInfo {
	state := m.states[id]
	_, loaded := m.instances[id]
	return PluginInfo{
		ID:         id,
		Descriptor: m.descriptors[id].Clone(),
		Enabled:    state.Enabled(),
		Loaded:     loaded,
		State:      state,
	}
}

// Descriptor returns a copy of the installed descriptor.
func (m *Manager) Descriptor(id string) (*Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.descriptors[id]
	return d.Clone(), ok
}

// State returns the plugin's lifecycle state.
func (m *Manager) State(id string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	return s, ok
}

// Instance returns the live instance of a loaded plugin.
func (m *Manager) Instance(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	return inst, ok
}

// Count returns the number of installed plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.descriptors)
}

// CountLoaded returns the number of loaded plugins.
func (m *Manager) CountLoaded() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}

// Registry returns the capability registry plugins are built against.
func (m *Manager) Registry() *api.Registry {
	return m.registry
}

// Loader returns the script loader.
func (m *Manager) Loader() *plua.ScriptLoader {
	return m.loader
}
