package plugin

import "fmt"

// Phase is the runtime sub-state of an enabled plugin.
type Phase int

const (
	// PhasePending means the plugin is enabled but has no instance yet.
	PhasePending Phase = iota

	// PhaseActive means the plugin has a live, activated instance.
	PhaseActive

	// PhaseFailed means the last load attempt failed.
	PhaseFailed
)

// String returns a string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a plugin's lifecycle state: Disabled, or Enabled in one of the
// phases above. Only the enabled flag is persisted. The zero value is
// Disabled; other states come from Pending, Active and Failed.
type State struct {
	enabled bool
	phase   Phase
	reason  string
}

// Disabled returns the disabled state.
func Disabled() State { return State{} }

// Pending returns Enabled(Pending).
func Pending() State { return State{enabled: true, phase: PhasePending} }

// Active returns Enabled(Active).
func Active() State { return State{enabled: true, phase: PhaseActive} }

// Failed returns Enabled(Failed(err)).
func Failed(err error) State {
	s := State{enabled: true, phase: PhaseFailed}
	if err != nil {
		s.reason = err.Error()
	}
	return s
}

// Enabled reports whether the plugin is enabled.
func (s State) Enabled() bool { return s.enabled }

// Phase returns the sub-state of an enabled plugin. It is PhasePending for
// a disabled one.
func (s State) Phase() Phase { return s.phase }

// Reason returns the failure message of Enabled(Failed).
func (s State) Reason() string { return s.reason }

// IsActive reports whether the state is Enabled(Active).
func (s State) IsActive() bool { return s.enabled && s.phase == PhaseActive }

// IsFailed reports whether the state is Enabled(Failed).
func (s State) IsFailed() bool { return s.enabled && s.phase == PhaseFailed }

// String returns a string representation of the state.
func (s State) String() string {
	if !s.enabled {
		return "disabled"
	}
	if s.phase == PhaseFailed && s.reason != "" {
		return fmt.Sprintf("enabled(failed: %s)", s.reason)
	}
	return "enabled(" + s.phase.String() + ")"
}
