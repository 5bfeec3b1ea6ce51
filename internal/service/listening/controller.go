// Package listening runs the voice-activated loop: wake-word detection,
// utterance segmentation and transcription of each utterance.
package listening

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/observability/logging"
	"recorder-transcriber-service/internal/observability/metrics"
	"recorder-transcriber-service/internal/service/segment"
	"recorder-transcriber-service/internal/service/session"
	"recorder-transcriber-service/internal/service/transcription"
	"recorder-transcriber-service/internal/service/wakeword"
	"recorder-transcriber-service/internal/storage"
)

// Failure kinds.
var (
	// ErrDetector is reported after too many consecutive detector or
	// segmenter failures.
	ErrDetector = errors.New("wake-word detection failed")
	// ErrResource is reported when the audio source cannot be opened or is
	// lost mid-stream.
	ErrResource = errors.New("audio source unavailable")
)

// Transcriber transcribes a persisted utterance.
type Transcriber interface {
	TranscribeRecording(ctx context.Context, rec storage.Recording, format audio.Format, pcm []byte) (transcription.Transcript, error)
}

// Config tunes the loop.
type Config struct {
	WakeWindow       time.Duration
	FailureThreshold int
	GatewayTimeout   time.Duration
	Segmenter        segment.Config
}

// Controller implements session.Listener. One loop runs at a time; the
// session machine guarantees it.
type Controller struct {
	cfg         Config
	source      audio.Source
	detector    wakeword.Detector
	saver       session.Saver
	transcriber Transcriber
	metrics     *metrics.Metrics
}

// NewController creates the controller.
func NewController(cfg Config, source audio.Source, detector wakeword.Detector, saver session.Saver, transcriber Transcriber) *Controller {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 60 * time.Second
	}
	return &Controller{
		cfg:         cfg,
		source:      source,
		detector:    detector,
		saver:       saver,
		transcriber: transcriber,
		metrics:     metrics.DefaultMetrics,
	}
}

// loop is the per-generation state of Listen.
type loop struct {
	*Controller
	h        *session.Handle
	log      zerolog.Logger
	window   *wakeword.Window
	seg      *segment.Segmenter
	failures int
}

// Listen runs until ctx is cancelled or the handle goes stale.
func (c *Controller) Listen(ctx context.Context, h *session.Handle) {
	l := &loop{
		Controller: c,
		h:          h,
		log:        logging.WithSession("listener", h.Generation()),
		window:     wakeword.NewWindow(c.cfg.WakeWindow),
		seg:        segment.New(c.cfg.Segmenter),
	}
	c.detector.Reset()

	stream, err := c.source.Open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.resourceFailure(err)
		}
		return
	}
	// Cancellation must unblock a pending Read and free the source for the
	// next session without waiting for an in-flight transcription.
	stop := context.AfterFunc(ctx, func() {
		stream.Close()
		h.Release()
	})
	defer stop()
	defer h.Release()
	defer stream.Close()

	l.log.Info().Msg("Listening loop started")
	defer l.log.Info().Msg("Listening loop stopped")

	for {
		f, err := stream.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.resourceFailure(err)
			}
			return
		}
		c.metrics.RecordAudioRead(len(f.Data))

		var ok bool
		if l.seg.Active() {
			ok = l.segment(ctx, f)
		} else {
			ok = l.detect(f)
		}
		if !ok {
			return
		}
	}
}

// detect feeds the wake-word window. It returns false when the loop must end.
func (l *loop) detect(f audio.Frame) bool {
	l.window.Push(f)
	det, err := l.detector.Detect(l.window)
	if err != nil {
		return !l.fault("detector", err)
	}
	l.failures = 0
	if !det.Detected {
		return true
	}

	if err := l.h.EnterListening(); err != nil {
		return false
	}
	l.metrics.RecordWakeDetection()
	l.log.Info().Str("keyword", det.Keyword).Float64("score", det.Score).Msg("Wake word detected")

	l.seg.Begin(f.Timestamp, l.window.Frames())
	l.window.Reset()
	l.detector.Reset()
	return true
}

// segment feeds the open utterance. It returns false when the loop must end.
func (l *loop) segment(ctx context.Context, f audio.Frame) bool {
	outcome, u, err := l.seg.Push(f)
	if err != nil {
		l.seg.Abort()
		if l.fault("segmenter", err) {
			return false
		}
		return l.h.Resume() == nil
	}
	l.failures = 0

	switch outcome {
	case segment.Dropped:
		l.metrics.RecordUtterance("dropped", 0)
		l.log.Debug().Msg("Utterance too short, dropped")
		return l.h.Resume() == nil
	case segment.Complete:
		outcome := utteranceOutcome(u)
		l.metrics.RecordUtterance(outcome, u.Voiced.Seconds())
		if u.Ceiling {
			l.log.Info().Dur("voiced", u.Voiced).Msg("Utterance cut at maximum length")
		}
		return l.transcribe(ctx, u)
	default:
		return true
	}
}

// utteranceOutcome labels a completed utterance for the utterance counter.
func utteranceOutcome(u *segment.Utterance) string {
	if u.Ceiling {
		return "ceiling"
	}
	return "completed"
}

// transcribe persists and transcribes u, then reports to the session. The
// gateway call is detached from ctx so that a disarm does not abort it;
// its outcome is discarded by the handle's generation check.
func (l *loop) transcribe(ctx context.Context, u *segment.Utterance) bool {
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.GatewayTimeout)
	defer cancel()

	pcm := u.PCM()
	rec, err := l.saver.Save(gctx, storage.OriginListening, pcm, u.Format, u.CapturedAt)
	if err != nil {
		l.log.Error().Err(err).Msg("Failed to save utterance")
		return l.h.Reject(fmt.Sprintf("failed to save utterance: %v", err)) == nil
	}

	t, err := l.transcriber.TranscribeRecording(gctx, rec, u.Format, pcm)
	if err != nil {
		l.log.Error().Err(err).Str("recordingId", rec.ID).Msg("Utterance transcription failed")
		return l.h.Reject(err.Error()) == nil
	}
	if t.Text == "" {
		l.log.Info().Str("recordingId", rec.ID).Msg("Empty transcript, nothing to deliver")
		return l.h.Resume() == nil
	}

	err = l.h.Deliver(session.Result{
		RecordingID:   rec.ID,
		Path:          rec.Path,
		Text:          t.Text,
		CapturedAt:    u.CapturedAt,
		TranscribedAt: t.GeneratedAt,
	})
	if errors.Is(err, session.ErrStale) {
		l.log.Info().Str("recordingId", rec.ID).Msg("Session disarmed, result discarded")
	}
	return err == nil
}

// fault counts a consecutive detector or segmenter failure and stops the
// session once the threshold is reached. It reports whether it did.
func (l *loop) fault(kind string, err error) bool {
	l.failures++
	l.metrics.RecordListenerFailure(kind)
	l.log.Warn().Err(err).Str("kind", kind).Int("consecutive", l.failures).Msg("Listening loop failure")

	if l.failures < l.cfg.FailureThreshold {
		return false
	}
	l.metrics.RecordForcedStop(kind)
	_ = l.h.Fail(fmt.Errorf("%w: %d consecutive %s failures: %v", ErrDetector, l.failures, kind, err))
	return true
}

func (l *loop) resourceFailure(err error) {
	l.metrics.RecordListenerFailure("resource")
	l.metrics.RecordForcedStop("resource")
	_ = l.h.Fail(fmt.Errorf("%w: %v", ErrResource, err))
}
