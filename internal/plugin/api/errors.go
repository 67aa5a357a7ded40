package api

import (
	"errors"
	"fmt"
)

// Errors returned by the capability API.
var (
	// ErrDuplicateListener is returned when the same callback is already
	// registered for the same plugin and event.
	ErrDuplicateListener = errors.New("listener already registered")

	// ErrNamespaceExists is returned when registering a taken namespace.
	ErrNamespaceExists = errors.New("namespace already registered")

	// ErrNamespaceNotFound is returned when extending an unknown namespace.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrNotExtendable is returned when extending a factory namespace.
	ErrNotExtendable = errors.New("factory namespaces cannot be extended")

	// ErrNoEventSource is returned when subscribing without an event source.
	ErrNoEventSource = errors.New("no event source available")

	// ErrCommandNotFound is the sentinel wrapped by CommandNotFoundError.
	ErrCommandNotFound = errors.New("command not found")

	// ErrPermissionDenied is the sentinel wrapped by PermissionError.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrHostUnavailable is returned when a capability has no host backing it.
	ErrHostUnavailable = errors.New("host capability unavailable")

	// ErrInvalidArgument is returned for malformed capability arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)

// CommandNotFoundError reports an unknown command id.
type CommandNotFoundError struct {
	CommandID string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command %q not found", e.CommandID)
}

// Unwrap returns ErrCommandNotFound.
func (e *CommandNotFoundError) Unwrap() error { return ErrCommandNotFound }

// PermissionError reports a capability call the plugin did not declare.
// It is only produced when permission enforcement is enabled.
type PermissionError struct {
	PluginID  string
	Namespace string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("plugin %q: namespace %q not in declared permissions", e.PluginID, e.Namespace)
}

// Unwrap returns ErrPermissionDenied.
func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

func argError(fn string, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", fn, ErrInvalidArgument, fmt.Sprintf(format, args...))
}
