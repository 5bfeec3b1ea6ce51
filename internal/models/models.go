// Package models defines the request, response and streaming payloads
// exchanged with clients.
package models

import "time"

// StartRecordingResponse acknowledges a manual recording.
type StartRecordingResponse struct {
	Status             string    `json:"status"`
	StartedAt          time.Time `json:"started_at"`
	MaxDurationSeconds float64   `json:"max_duration_seconds"`
}

// RecordingResponse describes a persisted recording.
type RecordingResponse struct {
	RecordingID string    `json:"recording_id"`
	Path        string    `json:"path"`
	CapturedAt  time.Time `json:"captured_at"`
}

// RecordingSummary is an entry of the recordings listing.
type RecordingSummary struct {
	RecordingID     string    `json:"recording_id"`
	Path            string    `json:"path"`
	Origin          string    `json:"origin"`
	CapturedAt      time.Time `json:"captured_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// TranscribeRequest asks for a transcript of a recording.
type TranscribeRequest struct {
	RecordingID string `json:"recording_id"`
}

// TranscriptResponse carries a transcript.
type TranscriptResponse struct {
	RecordingID string    `json:"recording_id"`
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

// EnhancementRequest asks for a structured note. Text may be empty when
// RecordingID names a transcribed recording.
type EnhancementRequest struct {
	Text        string `json:"text"`
	RecordingID string `json:"recording_id,omitempty"`
}

// EnhancementResponse is a structured note.
type EnhancementResponse struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	RecordingID string    `json:"recording_id,omitempty"`
}

// StatusResponse reports the session machine.
type StatusResponse struct {
	State           string     `json:"state"`
	Generation      uint64     `json:"generation"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LastRecordingID string     `json:"last_recording_id,omitempty"`
	LastWakeAt      *time.Time `json:"last_wake_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	Subscribed      bool       `json:"subscribed"`
}

// ListenStatusResponse reports whether voice activation is running.
type ListenStatusResponse struct {
	IsListening bool   `json:"is_listening"`
	State       string `json:"state"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Streaming event types.
const (
	EventConnected   = "connected"
	EventStateChange = "state_change"
	EventResult      = "result"
	EventError       = "error"
)

// Streaming commands.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// ConnectedMessage greets a new streaming client.
const ConnectedMessage = `Connected. Send {"action": "start"} to begin listening.`

// WsCommand is a client command on the streaming channel.
type WsCommand struct {
	Action string `json:"action"`
}

// WsConnectedEvent is sent once when a client attaches.
type WsConnectedEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WsStateEvent reports a state transition.
type WsStateEvent struct {
	Type      string    `json:"type"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// WsResultEvent carries a transcribed utterance.
type WsResultEvent struct {
	Type          string    `json:"type"`
	RecordingID   string    `json:"recording_id"`
	Path          string    `json:"path"`
	Text          string    `json:"text"`
	CapturedAt    time.Time `json:"captured_at"`
	TranscribedAt time.Time `json:"transcribed_at"`
}

// WsErrorEvent reports a failure.
type WsErrorEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
