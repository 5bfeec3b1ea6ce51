// Package segment splits the audio that follows a wake word into
// utterances.
package segment

import (
	"errors"
	"fmt"
	"time"

	"recorder-transcriber-service/internal/audio"
)

// Errors returned by Push.
var (
	ErrNotStarted     = errors.New("segmenter: no utterance in progress")
	ErrFormatMismatch = errors.New("segmenter: frame format changed mid-utterance")
)

// Outcome is the result of feeding one frame.
type Outcome int

const (
	// Continue - utterance still open.
	Continue Outcome = iota
	// Complete - end of speech, utterance ready for transcription.
	Complete
	// Dropped - utterance ended but was too short to keep.
	Dropped
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Continue:
		return "CONTINUE"
	case Complete:
		return "COMPLETE"
	case Dropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", o)
	}
}

// Config tunes end-of-speech detection.
type Config struct {
	// TrailingSilence ends the utterance once speech has been heard.
	TrailingSilence time.Duration
	// LeadingSilence ends the utterance if no speech follows the wake word.
	LeadingSilence time.Duration
	// MaxUtterance is an absolute ceiling on buffered audio.
	MaxUtterance time.Duration
	// MinUtterance is the voiced duration below which an utterance is dropped.
	MinUtterance time.Duration

	SpeechThreshold  float64
	SilenceThreshold float64

	// IncludeWakeWord seeds the buffer with the audio that triggered
	// detection. Seeded audio never counts as voiced.
	IncludeWakeWord bool
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		TrailingSilence:  700 * time.Millisecond,
		LeadingSilence:   5 * time.Second,
		MaxUtterance:     20 * time.Second,
		MinUtterance:     300 * time.Millisecond,
		SpeechThreshold:  0.02,
		SilenceThreshold: 0.01,
	}
}

// Utterance is a segmented span of speech.
type Utterance struct {
	Frames    []audio.Frame
	Format    audio.Format
	StartedAt time.Time
	// CapturedAt is the end-of-speech instant.
	CapturedAt time.Time
	Voiced     time.Duration
	// Ceiling is set when the utterance was cut by MaxUtterance.
	Ceiling bool
}

// PCM returns the utterance audio.
func (u *Utterance) PCM() []byte { return audio.Concat(u.Frames) }

// Duration returns the buffered audio length.
func (u *Utterance) Duration() time.Duration { return u.Format.Duration(len(u.PCM())) }

// Segmenter buffers one utterance at a time. It is not safe for concurrent
// use; the listening loop owns it.
type Segmenter struct {
	cfg Config
	vad *VAD

	active    bool
	frames    []audio.Frame
	format    audio.Format
	startedAt time.Time
	buffered  time.Duration
	voiced    time.Duration
	silence   time.Duration
	heard     bool
}

// New returns a segmenter.
func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg, vad: NewVAD(cfg.SpeechThreshold, cfg.SilenceThreshold)}
}

// Begin opens an utterance at the wake-word instant. The preroll frames are
// kept only when IncludeWakeWord is set.
func (s *Segmenter) Begin(at time.Time, preroll []audio.Frame) {
	s.active = true
	s.frames = nil
	s.format = audio.Format{}
	s.startedAt = at
	s.buffered = 0
	s.voiced = 0
	s.silence = 0
	s.heard = false
	s.vad.Reset()

	if s.cfg.IncludeWakeWord {
		for _, f := range preroll {
			s.frames = append(s.frames, f)
			s.buffered += f.Duration()
			s.format = f.Format
		}
	}
}

// Active reports whether an utterance is open.
func (s *Segmenter) Active() bool { return s.active }

// Abort discards the open utterance.
func (s *Segmenter) Abort() {
	s.active = false
	s.frames = nil
}

// Push feeds one frame. On Complete the utterance is returned and the
// segmenter is idle again; on Dropped it is idle with nothing returned.
func (s *Segmenter) Push(f audio.Frame) (Outcome, *Utterance, error) {
	if !s.active {
		return Continue, nil, ErrNotStarted
	}
	if len(f.Data)%2 != 0 {
		return Continue, nil, fmt.Errorf("segmenter: odd frame length %d", len(f.Data))
	}
	if s.format != (audio.Format{}) && f.Format != s.format {
		return Continue, nil, ErrFormatMismatch
	}
	s.format = f.Format

	d := f.Duration()
	s.frames = append(s.frames, f)
	s.buffered += d

	if s.vad.Classify(f.RMS()) {
		s.voiced += d
		s.silence = 0
		s.heard = true
	} else {
		s.silence += d
	}

	switch {
	case s.cfg.MaxUtterance > 0 && s.buffered >= s.cfg.MaxUtterance:
		return s.finish(f, true)
	case s.heard && s.silence >= s.cfg.TrailingSilence:
		return s.finish(f, false)
	case !s.heard && s.cfg.LeadingSilence > 0 && s.silence >= s.cfg.LeadingSilence:
		return s.finish(f, false)
	}
	return Continue, nil, nil
}

func (s *Segmenter) finish(last audio.Frame, ceiling bool) (Outcome, *Utterance, error) {
	s.active = false
	if s.voiced < s.cfg.MinUtterance {
		s.frames = nil
		return Dropped, nil, nil
	}
	u := &Utterance{
		Frames:     s.frames,
		Format:     s.format,
		StartedAt:  s.startedAt,
		CapturedAt: last.Timestamp,
		Voiced:     s.voiced,
		Ceiling:    ceiling,
	}
	if u.CapturedAt.IsZero() {
		u.CapturedAt = s.startedAt.Add(s.buffered)
	}
	s.frames = nil
	return Complete, u, nil
}

// Voiced returns the voiced duration of the open utterance.
func (s *Segmenter) Voiced() time.Duration { return s.voiced }
