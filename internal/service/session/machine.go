package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/events"
	"recorder-transcriber-service/internal/observability/logging"
	"recorder-transcriber-service/internal/observability/metrics"
	"recorder-transcriber-service/internal/storage"
)

// Publisher receives the events produced by transitions.
type Publisher interface {
	Publish(ev events.Event)
}

// Saver persists finished manual recordings.
type Saver interface {
	Save(ctx context.Context, origin string, pcm []byte, format audio.Format, capturedAt time.Time) (storage.Recording, error)
}

// Listener runs the voice-activated loop for one generation. Listen must
// close its stream and call h.Release promptly once ctx is cancelled, and
// must report back only through h.
type Listener interface {
	Listen(ctx context.Context, h *Handle)
}

// Config bounds session lifetimes.
type Config struct {
	MaxDuration time.Duration
	StopGrace   time.Duration
}

// Session is a snapshot of the session.
type Session struct {
	State       State
	Generation  uint64
	StartedAt   time.Time
	MaxDuration time.Duration
}

// Status is Session plus the most recent outcomes.
type Status struct {
	Session
	LastRecordingID string
	LastWakeAt      time.Time
	LastError       string
}

// Machine is the single authority over the session. Every transition and
// the event it produces happen under mu.
type Machine struct {
	cfg      Config
	source   audio.Source
	saver    Saver
	listener Listener
	pub      Publisher
	now      func() time.Time
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	startedAt time.Time

	capture *capture
	timer   *time.Timer
	cancel  context.CancelFunc
	owner   <-chan struct{} // closed when the last source owner has released it

	lastRecordingID string
	lastWakeAt      time.Time
	lastError       string
}

// NewMachine creates an idle machine.
func NewMachine(cfg Config, source audio.Source, saver Saver, listener Listener, pub Publisher) *Machine {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 300 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}
	return &Machine{
		cfg:      cfg,
		source:   source,
		saver:    saver,
		listener: listener,
		pub:      pub,
		now:      time.Now,
		metrics:  metrics.DefaultMetrics,
		log:      logging.WithComponent("session"),
	}
}

// Status returns a snapshot of the session.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Session:         m.sessionLocked(),
		LastRecordingID: m.lastRecordingID,
		LastWakeAt:      m.lastWakeAt,
		LastError:       m.lastError,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) sessionLocked() Session {
	s := Session{State: m.state, Generation: m.gen}
	if m.state.IsActive() {
		s.StartedAt = m.startedAt
	}
	if m.state == StateRecording {
		s.MaxDuration = m.cfg.MaxDuration
	}
	return s
}

// BeginManualRecording starts capturing audio until EndManualRecording or
// the max duration, whichever comes first.
func (m *Machine) BeginManualRecording() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked(StateRecording, "start_recording"); err != nil {
		return Session{}, err
	}
	m.gen++
	m.startedAt = m.now().UTC()
	gen := m.gen

	ctx, cancel := context.WithCancel(context.Background())
	c := newCapture(gen, m.startedAt, cancel)
	m.capture = c
	prev := m.takeSourceLocked(c.done)
	go c.run(ctx, m.source, prev, m.metrics)

	m.timer = time.AfterFunc(m.cfg.MaxDuration, func() { m.autoStop(gen) })
	m.metrics.RecordSessionStart("manual")
	m.log.Info().Uint64("generation", gen).Dur("maxDuration", m.cfg.MaxDuration).Msg("Manual recording started")
	return m.sessionLocked(), nil
}

// EndManualRecording stops the recording and persists what was captured.
func (m *Machine) EndManualRecording(ctx context.Context) (storage.Recording, error) {
	m.mu.Lock()
	if m.state != StateRecording {
		state := m.state
		m.mu.Unlock()
		m.metrics.RecordConflict("stop_recording")
		return storage.Recording{}, fmt.Errorf("%w: no recording in progress (state %s)", ErrConflict, state)
	}
	c := m.finishRecordingLocked()
	capturedAt := m.now().UTC()
	m.mu.Unlock()

	return m.persist(ctx, c, capturedAt)
}

// autoStop ends the recording of generation gen at the max duration. It
// takes the same path as EndManualRecording.
func (m *Machine) autoStop(gen uint64) {
	m.mu.Lock()
	if m.state != StateRecording || m.gen != gen {
		m.mu.Unlock()
		return
	}
	c := m.finishRecordingLocked()
	capturedAt := c.startedAt.Add(m.cfg.MaxDuration)
	m.mu.Unlock()

	m.log.Info().Uint64("generation", gen).Msg("Max duration reached, recording stopped")
	if _, err := m.persist(context.Background(), c, capturedAt); err != nil {
		m.log.Error().Err(err).Uint64("generation", gen).Msg("Failed to persist auto-stopped recording")
	}
}

// finishRecordingLocked moves RECORDING -> IDLE and stops the reader.
func (m *Machine) finishRecordingLocked() *capture {
	c := m.capture
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	c.cancel()
	m.capture = nil
	_ = m.transitionLocked(StateIdle, "stop_recording")
	m.metrics.RecordSessionEnd("manual", m.now().Sub(c.startedAt).Seconds())
	return c
}

func (m *Machine) persist(ctx context.Context, c *capture, capturedAt time.Time) (storage.Recording, error) {
	if !c.wait(m.cfg.StopGrace) {
		m.log.Warn().Uint64("generation", c.gen).Msg("Audio reader did not stop within grace period")
	}

	pcm, format, captureErr := c.pcm(m.cfg.MaxDuration)
	var (
		rec storage.Recording
		err error
	)
	switch {
	case captureErr != nil:
		err = fmt.Errorf("%w: %v", ErrCapture, captureErr)
	case len(pcm) == 0:
		err = fmt.Errorf("%w: no audio captured", ErrCapture)
	default:
		rec, err = m.saver.Save(ctx, storage.OriginManual, pcm, format, capturedAt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.lastError = err.Error()
		return storage.Recording{}, err
	}
	m.lastRecordingID = rec.ID
	return rec, nil
}

// ArmListening starts the voice-activated loop under a new generation.
func (m *Machine) ArmListening() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked(StateArmed, "arm"); err != nil {
		return Session{}, err
	}
	m.gen++
	m.startedAt = m.now().UTC()
	m.lastError = ""
	gen := m.gen

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	h := newHandle(m, gen)
	prev := m.takeSourceLocked(h.released)

	m.emitStateLocked()
	m.metrics.RecordSessionStart("listening")
	m.log.Info().Uint64("generation", gen).Msg("Listening armed")

	go func() {
		defer h.Release()
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return
			}
		}
		m.listener.Listen(ctx, h)
		// A loop that returns on its own without reporting still ends the session.
		if ctx.Err() == nil {
			_ = h.Fail(errors.New("listening loop exited"))
		}
	}()
	return m.sessionLocked(), nil
}

// DisarmListening stops the loop. It emits state_change(STOPPED), returns
// to IDLE and waits up to the stop grace period for the loop to release
// the audio source.
func (m *Machine) DisarmListening(ctx context.Context) error {
	return m.disarm(ctx, 0)
}

// DisarmGeneration is DisarmListening restricted to generation gen. It
// returns ErrStale if gen is no longer the armed generation.
func (m *Machine) DisarmGeneration(ctx context.Context, gen uint64) error {
	return m.disarm(ctx, gen)
}

// disarm stops the armed generation, or only generation want when it is
// non-zero.
func (m *Machine) disarm(ctx context.Context, want uint64) error {
	m.mu.Lock()
	if want != 0 && m.gen != want {
		m.mu.Unlock()
		return fmt.Errorf("%w: disarm of generation %d", ErrStale, want)
	}
	if !m.state.IsListening() {
		state := m.state
		m.mu.Unlock()
		m.metrics.RecordConflict("disarm")
		return fmt.Errorf("%w: not listening (state %s)", ErrConflict, state)
	}
	gen := m.gen
	m.stopListeningLocked()
	done := m.owner
	m.mu.Unlock()

	m.log.Info().Uint64("generation", gen).Msg("Listening disarmed")

	t := time.NewTimer(m.cfg.StopGrace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		m.log.Warn().Uint64("generation", gen).Msg("Listening loop did not release the audio source within grace period")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// stopListeningLocked moves ARMED|LISTENING -> STOPPED -> IDLE and cancels
// the loop.
func (m *Machine) stopListeningLocked() {
	_ = m.transitionLocked(StateStopped, "disarm")
	m.emitStateLocked()
	_ = m.transitionLocked(StateIdle, "disarm")
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.metrics.RecordSessionEnd("listening", m.now().Sub(m.startedAt).Seconds())
}

// takeSourceLocked makes done the release signal of the new source owner
// and returns the previous owner's signal.
func (m *Machine) takeSourceLocked(done <-chan struct{}) <-chan struct{} {
	prev := m.owner
	m.owner = done
	return prev
}

func (m *Machine) transitionLocked(to State, op string) error {
	if !m.state.CanTransition(to) {
		m.metrics.RecordConflict(op)
		return fmt.Errorf("%w: %s -> %s", ErrConflict, m.state, to)
	}
	m.metrics.RecordTransition(m.state.String(), to.String())
	m.state = to
	return nil
}

func (m *Machine) emitStateLocked() {
	m.pub.Publish(events.StateChange(m.gen, m.state.String(), m.now()))
}

// Close stops whatever owns the session. Used on shutdown.
func (m *Machine) Close(ctx context.Context) {
	switch m.State() {
	case StateRecording:
		if _, err := m.EndManualRecording(ctx); err != nil {
			m.log.Warn().Err(err).Msg("Failed to finish recording on shutdown")
		}
	case StateArmed, StateListening:
		_ = m.DisarmListening(ctx)
	}
}
