package lua

import (
	"errors"
	"fmt"
)

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutorClosed is returned when attempting to use a closed executor.
	ErrExecutorClosed = errors.New("lua executor is closed")

	// ErrQueueFull is returned by ExecuteAsync when the executor is saturated.
	ErrQueueFull = errors.New("lua executor queue full")

	// ErrExecutionTimeout is returned when a call exceeds the execution timeout.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrBadExport is wrapped by LoadError when the chunk does not return a
	// single table with a "new" function.
	ErrBadExport = errors.New("plugin must return exactly one table with a 'new' function")

	// ErrNotLoaded is returned when no unit is loaded for a plugin id.
	ErrNotLoaded = errors.New("plugin script not loaded")
)

// LoadError reports that a plugin's main script could not be fetched,
// evaluated, or did not follow the export convention.
type LoadError struct {
	PluginID string
	Ref      string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %q from %q: %v", e.PluginID, e.Ref, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
