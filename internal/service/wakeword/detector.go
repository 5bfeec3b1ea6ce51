// Package wakeword defines wake-word detection over a rolling audio window.
package wakeword

import (
	"errors"
	"time"

	"recorder-transcriber-service/internal/audio"
)

// ErrInvalidFrame is returned for frames the detector cannot score.
var ErrInvalidFrame = errors.New("wakeword: invalid frame")

// Detection is the outcome of scoring the current window.
type Detection struct {
	Detected bool
	Keyword  string
	Score    float64
}

// Detector scores a rolling window for the wake phrase.
type Detector interface {
	Detect(w *Window) (Detection, error)
	// Reset clears internal state after a detection or a new session.
	Reset()
}

// Window holds the most recent frames up to a fixed duration.
type Window struct {
	max    time.Duration
	frames []audio.Frame
	length time.Duration
}

// NewWindow returns a window covering d of audio.
func NewWindow(d time.Duration) *Window {
	if d <= 0 {
		d = 2 * time.Second
	}
	return &Window{max: d}
}

// Push appends a frame and evicts the oldest frames beyond the window.
func (w *Window) Push(f audio.Frame) {
	w.frames = append(w.frames, f)
	w.length += f.Duration()
	for len(w.frames) > 1 && w.length-w.frames[0].Duration() >= w.max {
		w.length -= w.frames[0].Duration()
		w.frames[0] = audio.Frame{}
		w.frames = w.frames[1:]
	}
}

// Frames returns the buffered frames, oldest first.
func (w *Window) Frames() []audio.Frame {
	out := make([]audio.Frame, len(w.frames))
	copy(out, w.frames)
	return out
}

// Tail returns the newest frames covering at least d.
func (w *Window) Tail(d time.Duration) []audio.Frame {
	var covered time.Duration
	i := len(w.frames)
	for i > 0 && covered < d {
		i--
		covered += w.frames[i].Duration()
	}
	return w.frames[i:]
}

// Duration returns the buffered audio length.
func (w *Window) Duration() time.Duration { return w.length }

// Len returns the number of buffered frames.
func (w *Window) Len() int { return len(w.frames) }

// Reset empties the window.
func (w *Window) Reset() {
	w.frames = nil
	w.length = 0
}
