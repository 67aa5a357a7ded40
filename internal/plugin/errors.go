package plugin

import (
	"errors"
	"fmt"

	"github.com/dshills/musicbox/internal/plugin/api"
	plua "github.com/dshills/musicbox/internal/plugin/lua"
)

// Plugin system errors.
var (
	// ErrAlreadyLoaded is logged when loading a plugin that already has an
	// instance. LoadPlugin treats it as a no-op.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrNotLoaded is logged when unloading a plugin without an instance.
	ErrNotLoaded = errors.New("plugin is not loaded")

	// ErrNotInstalled is wrapped by ConfigError when no descriptor exists.
	ErrNotInstalled = errors.New("plugin is not installed")

	// ErrAlreadyInstalled is wrapped by ConfigError on a duplicate install.
	ErrAlreadyInstalled = errors.New("plugin is already installed")

	// ErrInvalidDescriptor is wrapped by ConfigError when validation fails.
	ErrInvalidDescriptor = errors.New("invalid plugin descriptor")

	// ErrCommandNotFound is wrapped by CommandNotFoundError.
	ErrCommandNotFound = api.ErrCommandNotFound

	// ErrPermissionDenied is wrapped by PermissionError.
	ErrPermissionDenied = api.ErrPermissionDenied
)

// ConfigError reports a missing, invalid or conflicting descriptor.
type ConfigError struct {
	PluginID string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.PluginID == "" {
		return fmt.Sprintf("plugin config: %v", e.Err)
	}
	return fmt.Sprintf("plugin %q config: %v", e.PluginID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LoadError reports that a plugin's main script could not be fetched or
// evaluated, or did not export a constructor.
type LoadError = plua.LoadError

// InstantiationError reports a failing plugin constructor.
type InstantiationError struct {
	PluginID string
	Err      error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("plugin %q: constructor failed: %v", e.PluginID, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// ActivationError reports a failing activate() call.
type ActivationError struct {
	PluginID string
	Err      error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("plugin %q: activate failed: %v", e.PluginID, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// CommandNotFoundError reports an unknown command id.
type CommandNotFoundError = api.CommandNotFoundError

// PermissionError reports a call to an undeclared namespace while
// permission enforcement is on.
type PermissionError = api.PermissionError
