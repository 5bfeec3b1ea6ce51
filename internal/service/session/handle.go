package session

import (
	"fmt"
	"sync"
	"time"

	"recorder-transcriber-service/internal/events"
)

// Result is one transcribed utterance.
type Result struct {
	RecordingID   string
	Path          string
	Text          string
	CapturedAt    time.Time
	TranscribedAt time.Time
}

// Handle is the listening loop's only way to change the session. It is
// bound to the generation that started the loop: once that generation is
// disarmed or superseded every call returns ErrStale and emits nothing.
type Handle struct {
	m   *Machine
	gen uint64

	once     sync.Once
	released chan struct{}
}

func newHandle(m *Machine, gen uint64) *Handle {
	return &Handle{m: m, gen: gen, released: make(chan struct{})}
}

// Generation returns the generation the handle is bound to.
func (h *Handle) Generation() uint64 { return h.gen }

// Release hands the audio source to the next session. The loop calls it as
// soon as its stream is closed, even if a transcription is still in flight.
// Calling it again is a no-op; the machine calls it when Listen returns.
func (h *Handle) Release() {
	h.once.Do(func() { close(h.released) })
}

// lock acquires the machine and checks that the handle is still current
// and in one of the wanted states.
func (h *Handle) lock(op string, want ...State) error {
	h.m.mu.Lock()
	if h.m.gen != h.gen || !h.m.state.IsListening() {
		h.m.mu.Unlock()
		h.m.metrics.RecordStaleReport()
		return fmt.Errorf("%w: %s from generation %d", ErrStale, op, h.gen)
	}
	for _, s := range want {
		if h.m.state == s {
			return nil
		}
	}
	state := h.m.state
	h.m.mu.Unlock()
	h.m.metrics.RecordConflict(op)
	return fmt.Errorf("%w: %s in state %s", ErrConflict, op, state)
}

// EnterListening moves ARMED -> LISTENING after a wake-word detection.
func (h *Handle) EnterListening() error {
	if err := h.lock("enter_listening", StateArmed); err != nil {
		return err
	}
	defer h.m.mu.Unlock()

	m := h.m
	_ = m.transitionLocked(StateListening, "enter_listening")
	m.lastWakeAt = m.now().UTC()
	m.emitStateLocked()
	return nil
}

// Deliver publishes r and moves LISTENING -> ARMED as one step.
func (h *Handle) Deliver(r Result) error {
	if err := h.lock("deliver", StateListening); err != nil {
		return err
	}
	defer h.m.mu.Unlock()

	m := h.m
	m.pub.Publish(events.Event{
		Type:          events.TypeResult,
		Generation:    h.gen,
		Timestamp:     m.now().UTC(),
		RecordingID:   r.RecordingID,
		Path:          r.Path,
		Text:          r.Text,
		CapturedAt:    r.CapturedAt.UTC(),
		TranscribedAt: r.TranscribedAt.UTC(),
	})
	m.lastRecordingID = r.RecordingID
	_ = m.transitionLocked(StateArmed, "deliver")
	m.emitStateLocked()
	return nil
}

// Reject publishes an error for the current utterance and moves
// LISTENING -> ARMED as one step.
func (h *Handle) Reject(message string) error {
	if err := h.lock("reject", StateListening); err != nil {
		return err
	}
	defer h.m.mu.Unlock()

	m := h.m
	m.pub.Publish(events.Error(h.gen, message, m.now()))
	m.lastError = message
	_ = m.transitionLocked(StateArmed, "reject")
	m.emitStateLocked()
	return nil
}

// Resume moves LISTENING -> ARMED without a result, for dropped utterances.
func (h *Handle) Resume() error {
	if err := h.lock("resume", StateListening); err != nil {
		return err
	}
	defer h.m.mu.Unlock()

	_ = h.m.transitionLocked(StateArmed, "resume")
	h.m.emitStateLocked()
	return nil
}

// Fail reports a fatal loop failure: an error event, then STOPPED, then
// IDLE. The loop's context is cancelled.
func (h *Handle) Fail(cause error) error {
	if err := h.lock("fail", StateArmed, StateListening); err != nil {
		return err
	}
	defer h.m.mu.Unlock()

	m := h.m
	m.pub.Publish(events.Error(h.gen, cause.Error(), m.now()))
	m.lastError = cause.Error()
	m.stopListeningLocked()
	m.log.Error().Err(cause).Uint64("generation", h.gen).Msg("Listening stopped by failure")
	return nil
}
