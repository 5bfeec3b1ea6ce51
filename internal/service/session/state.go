// Package session owns the single capture session and its state machine.
package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of the session.
type State int

const (
	// StateIdle - nothing holds the audio source.
	StateIdle State = iota
	// StateRecording - a manual recording is capturing audio.
	StateRecording
	// StateArmed - the listening loop waits for the wake word.
	StateArmed
	// StateListening - the listening loop is segmenting an utterance.
	StateListening
	// StateStopped - listening ended. Transient, always followed by IDLE.
	StateStopped
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StateArmed:
		return "ARMED"
	case StateListening:
		return "LISTENING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// IsActive reports whether the state holds the audio source.
func (s State) IsActive() bool {
	return s == StateRecording || s == StateArmed || s == StateListening
}

// IsListening reports whether the voice-activated loop owns the session.
func (s State) IsListening() bool {
	return s == StateArmed || s == StateListening
}

// CanTransition reports whether s -> to is an edge of the machine.
//
//	IDLE ──► RECORDING ──► IDLE
//	  │
//	  └────► ARMED ◄──► LISTENING
//	           │            │
//	           └─► STOPPED ◄┘ ──► IDLE
func (s State) CanTransition(to State) bool {
	switch s {
	case StateIdle:
		return to == StateRecording || to == StateArmed
	case StateRecording:
		return to == StateIdle
	case StateArmed:
		return to == StateListening || to == StateStopped
	case StateListening:
		return to == StateArmed || to == StateStopped
	case StateStopped:
		return to == StateIdle
	default:
		return false
	}
}

// Errors returned by the machine.
var (
	// ErrConflict rejects an operation that is invalid for the current state.
	ErrConflict = errors.New("operation conflicts with current session state")
	// ErrStale rejects a report from a listening loop that no longer owns the session.
	ErrStale = errors.New("stale session generation")
	// ErrCapture reports that the audio source failed during a manual recording.
	ErrCapture = errors.New("audio capture failed")
)
