// Package installprompt tracks whether a client session may be offered the
// "install app" prompt.
//
// Transitions only move forward (eligible -> dismissed -> installed, or
// eligible -> installed). The single exception is NewSession, which returns a
// dismissed session to eligible.
package installprompt

import (
	"errors"
	"sync"
)

// State of the install prompt.
type State string

const (
	StateEligible  State = "eligible"
	StateDismissed State = "dismissed"
	StateInstalled State = "installed"
)

// Outcome is the user's answer to a shown prompt.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDismissed Outcome = "dismissed"
)

var (
	ErrNoDeferredPrompt  = errors.New("no deferred install prompt captured")
	ErrInvalidTransition = errors.New("invalid install prompt transition")
)

// Machine is the per-session prompt state. The zero value is not usable; use New.
type Machine struct {
	mu       sync.Mutex
	state    State
	deferred bool
}

// New returns a machine for a fresh session. installed is true when the
// page already runs in standalone display mode.
func New(installed bool) *Machine {
	m := &Machine{state: StateEligible}
	if installed {
		m.state = StateInstalled
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Capture records a deferred prompt offered by the host. Ignored once installed.
func (m *Machine) Capture() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInstalled {
		m.deferred = true
	}
}

// CanPrompt reports whether the prompt should be shown.
func (m *Machine) CanPrompt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateEligible && m.deferred
}

// Prompt shows the deferred prompt and applies the user's answer. A deferred
// prompt can be used once.
func (m *Machine) Prompt(outcome Outcome) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateEligible {
		return m.state, ErrInvalidTransition
	}
	if !m.deferred {
		return m.state, ErrNoDeferredPrompt
	}
	m.deferred = false

	switch outcome {
	case OutcomeAccepted:
		m.state = StateInstalled
	case OutcomeDismissed:
		m.state = StateDismissed
	default:
		m.deferred = true
		return m.state, ErrInvalidTransition
	}
	return m.state, nil
}

// Dismiss hides the prompt for the rest of the session.
func (m *Machine) Dismiss() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateEligible {
		return m.state, ErrInvalidTransition
	}
	m.state = StateDismissed
	return m.state, nil
}

// MarkInstalled handles the host's "app installed" signal.
func (m *Machine) MarkInstalled() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateInstalled
	m.deferred = false
	return m.state
}

// NewSession clears a dismissal.
func (m *Machine) NewSession() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDismissed {
		m.state = StateEligible
	}
	return m.state
}
