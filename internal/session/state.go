package session

import "errors"

// State is the lifecycle state of a capture/detection session.
type State int

const (
	// StateIdle means no capture source is held.
	StateIdle State = iota
	// StateActive means a source is held but continuous submission is off.
	StateActive
	// StateLiveDetecting means a source is held and frames are submitted
	// continuously on the tick cadence.
	StateLiveDetecting
	// StateStopped is a transient terminal state; sessions re-arm to Idle
	// immediately after stopping.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateLiveDetecting:
		return "live_detecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// transitions enumerates the legal state changes.
var transitions = map[State][]State{
	StateIdle:          {StateActive},
	StateActive:        {StateLiveDetecting, StateStopped},
	StateLiveDetecting: {StateActive, StateStopped},
	StateStopped:       {StateIdle},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var (
	// ErrInvalidTransition is returned for an illegal state change.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrNoSource is returned when an operation needs a capture source and
	// none is held.
	ErrNoSource = errors.New("session: no capture source")
	// ErrNotActive is returned when an operation requires an active session.
	ErrNotActive = errors.New("session: not active")
	// ErrBusy is returned when a manual capture is requested while another
	// detection request is in flight.
	ErrBusy = errors.New("session: detection in flight, try again")
	// ErrNoFrame is returned when a manual capture finds no frame available.
	ErrNoFrame = errors.New("session: no frame available")
)
