package events

import (
	"time"

	"recorder-transcriber-service/internal/models"
)

// Type identifies an event on the streaming channel.
type Type string

// Event types.
const (
	TypeStateChange Type = models.EventStateChange
	TypeResult      Type = models.EventResult
	TypeError       Type = models.EventError
)

// Event is one message for the live subscriber.
type Event struct {
	Type       Type
	Generation uint64
	Timestamp  time.Time

	// state_change
	State string

	// result
	RecordingID   string
	Path          string
	Text          string
	CapturedAt    time.Time
	TranscribedAt time.Time

	// error
	Message string
}

// StateChange builds a state_change event.
func StateChange(gen uint64, state string, at time.Time) Event {
	return Event{Type: TypeStateChange, Generation: gen, State: state, Timestamp: at.UTC()}
}

// Error builds an error event.
func Error(gen uint64, message string, at time.Time) Event {
	return Event{Type: TypeError, Generation: gen, Message: message, Timestamp: at.UTC()}
}

// Payload returns the wire representation of the event.
func (e Event) Payload() any {
	switch e.Type {
	case TypeStateChange:
		return models.WsStateEvent{Type: string(e.Type), State: e.State, Timestamp: e.Timestamp}
	case TypeResult:
		return models.WsResultEvent{
			Type:          string(e.Type),
			RecordingID:   e.RecordingID,
			Path:          e.Path,
			Text:          e.Text,
			CapturedAt:    e.CapturedAt,
			TranscribedAt: e.TranscribedAt,
		}
	default:
		return models.WsErrorEvent{Type: string(TypeError), Message: e.Message, Timestamp: e.Timestamp}
	}
}
