package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/musicbox/internal/logging"
	"github.com/dshills/musicbox/internal/plugin/api"
	plua "github.com/dshills/musicbox/internal/plugin/lua"
	"github.com/dshills/musicbox/internal/plugin/source"
	"github.com/dshills/musicbox/internal/storage"
	"github.com/dshills/musicbox/internal/storage/memory"
)

// ErrAlreadyInitialized is returned when Initialize is called twice.
var ErrAlreadyInitialized = errors.New("plugin system already initialized")

// System wires the script loader, capability registry and manager
// together. It is the entry point the host process uses.
type System struct {
	mu sync.RWMutex

	manager  *Manager
	registry *api.Registry
	loader   *plua.ScriptLoader

	config SystemConfig

	initialized bool
}

// SystemConfig configures the plugin system.
type SystemConfig struct {
	// PluginDir is the base for relative main references.
	PluginDir string

	HTTPTimeout      time.Duration
	ExecutionTimeout time.Duration
	CallStackSize    int

	// EnforcePermissions denies namespaces missing from a descriptor's
	// permissions.
	EnforcePermissions bool

	// Host supplies the player, library and UI collaborators. A nil
	// Host.Storage is backed by Store.
	Host api.Host

	// Store persists descriptors, states and plugin data. Defaults to an
	// in-memory store.
	Store storage.Store

	Logger *logging.Logger
}

// DefaultSystemConfig returns the default system configuration.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		HTTPTimeout:      source.DefaultHTTPTimeout,
		ExecutionTimeout: plua.DefaultExecutionTimeout,
		CallStackSize:    plua.DefaultCallStackSize,
	}
}

// NewSystem creates a plugin system.
func NewSystem(config SystemConfig) *System {
	return &System{config: config}
}

// Initialize builds the runtime and loads every enabled plugin.
func (s *System) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return ErrAlreadyInitialized
	}

	cfg := s.config
	logger := logging.OrNull(cfg.Logger)
	if cfg.Store == nil {
		cfg.Store = memory.New()
	}
	if cfg.Host.Storage == nil {
		cfg.Host.Storage = cfg.Store
	}

	registry, err := api.DefaultRegistry(
		api.WithHost(cfg.Host),
		api.WithLogger(logger),
		api.WithEnforcePermissions(cfg.EnforcePermissions),
	)
	if err != nil {
		return fmt.Errorf("failed to create API registry: %w", err)
	}

	resolver := source.NewResolver(cfg.PluginDir, cfg.HTTPTimeout)
	loader := plua.NewScriptLoader(resolver, logger,
		plua.WithExecutionTimeout(cfg.ExecutionTimeout),
		plua.WithCallStackSize(cfg.CallStackSize),
	)
	manager := NewManager(loader, registry, cfg.Store, WithLogger(logger))

	if err := manager.Initialize(ctx); err != nil {
		loader.Close()
		return err
	}

	s.registry = registry
	s.loader = loader
	s.manager = manager
	s.initialized = true
	return nil
}

// Shutdown unloads every plugin and closes the loader.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}

	err := s.manager.Shutdown(ctx)
	s.loader.Close()
	s.initialized = false
	if err != nil {
		return fmt.Errorf("failed to unload plugins: %w", err)
	}
	return nil
}

// Manager returns the plugin manager.
func (s *System) Manager() *Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager
}

// Registry returns the capability registry.
func (s *System) Registry() *api.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// Loader returns the script loader.
func (s *System) Loader() *plua.ScriptLoader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loader
}

// IsInitialized returns true if the system is initialized.
func (s *System) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// SystemStats contains system-wide statistics.
type SystemStats struct {
	Initialized bool
	Installed   int
	Loaded      int
	Failed      int
	Namespaces  []string
	Listeners   map[string]int
}

// Stats returns system-wide statistics.
func (s *System) Stats() SystemStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := SystemStats{Initialized: s.initialized}
	if !s.initialized {
		return stats
	}

	stats.Namespaces = s.registry.Namespaces()
	stats.Listeners = make(map[string]int)
	for _, info := range s.manager.GetAllPlugins() {
		stats.Installed++
		if info.Loaded {
			stats.Loaded++
		}
		if info.State.IsFailed() {
			stats.Failed++
		}
		if n := s.registry.PluginEventListenerStats(info.ID).TotalEvents; n > 0 {
			stats.Listeners[info.ID] = n
		}
	}
	return stats
}
