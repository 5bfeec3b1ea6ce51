package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/config"
	"recorder-transcriber-service/internal/events"
	"recorder-transcriber-service/internal/observability/logging"
	"recorder-transcriber-service/internal/schema"
	"recorder-transcriber-service/internal/service/enhance"
	enhancegemini "recorder-transcriber-service/internal/service/enhance/gemini"
	enhancemock "recorder-transcriber-service/internal/service/enhance/mock"
	enhanceopenai "recorder-transcriber-service/internal/service/enhance/openai"
	"recorder-transcriber-service/internal/service/listening"
	"recorder-transcriber-service/internal/service/segment"
	"recorder-transcriber-service/internal/service/session"
	"recorder-transcriber-service/internal/service/stt"
	sttgoogle "recorder-transcriber-service/internal/service/stt/google"
	sttmock "recorder-transcriber-service/internal/service/stt/mock"
	sttopenai "recorder-transcriber-service/internal/service/stt/openai"
	"recorder-transcriber-service/internal/service/transcription"
	"recorder-transcriber-service/internal/service/wakeword"
	"recorder-transcriber-service/internal/storage"
)

// ErrDetached is returned for commands that arrive after their streaming
// subscriber was detached.
var ErrDetached = errors.New("subscriber detached")

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Store         *storage.Store
	Publisher     *events.Publisher
	Mirror        *events.KafkaMirror
	Machine       *session.Machine
	Transcription *transcription.Service
	Validator     *schema.Validator

	closers []func() error
	ready   atomic.Bool
}

// New constructs the Application and all of its components from cfg.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg:       cfg,
		Logger:    logging.WithComponent("application"),
		Validator: schema.New(),
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	store, err := storage.Open(cfg.Storage.Dir, cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	transcriber, closeSTT, err := NewTranscriber(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeSTT)

	enhancer, err := NewEnhancer(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.Transcription = transcription.NewService(store, transcriber, enhancer)

	a.Mirror = events.NewKafkaMirror(&events.KafkaConfig{
		Brokers:     cfg.Kafka.Brokers,
		TopicState:  cfg.Kafka.TopicState,
		TopicResult: cfg.Kafka.TopicResult,
		Principal:   cfg.Kafka.Principal,
		Enabled:     cfg.Kafka.Enabled,
	})
	a.closers = append(a.closers, a.Mirror.Close)
	a.Publisher = events.NewPublisher(cfg.Listener.SubscriberBuffer, a.Mirror)

	source, err := NewSource(cfg.Audio)
	if err != nil {
		a.close()
		return nil, err
	}

	controller := listening.NewController(listening.Config{
		WakeWindow:       cfg.Listener.WakeWindow,
		FailureThreshold: cfg.Listener.FailureThreshold,
		GatewayTimeout:   cfg.Listener.GatewayTimeout,
		Segmenter: segment.Config{
			TrailingSilence:  cfg.Segmenter.TrailingSilence,
			LeadingSilence:   cfg.Segmenter.LeadingSilence,
			MaxUtterance:     cfg.Segmenter.MaxUtterance,
			MinUtterance:     cfg.Segmenter.MinUtterance,
			SpeechThreshold:  cfg.Segmenter.SpeechThreshold,
			SilenceThreshold: cfg.Segmenter.SilenceThreshold,
			IncludeWakeWord:  cfg.Listener.IncludeWakeWord,
		},
	}, source, wakeword.NewEnergyDetector(cfg.Listener.WakeKeyword, cfg.Listener.WakeTrigger, cfg.Listener.WakeThreshold),
		store, a.Transcription)

	a.Machine = session.NewMachine(session.Config{
		MaxDuration: cfg.Recording.MaxDuration,
		StopGrace:   cfg.Recording.StopGrace,
	}, source, store, controller, a.Publisher)

	// Listening has no purpose without a live client.
	a.Publisher.OnDetach(func(reason string) {
		err := a.Machine.DisarmListening(context.Background())
		if err != nil && !errors.Is(err, session.ErrConflict) {
			a.Logger.Warn().Err(err).Msg("Failed to disarm after subscriber detached")
			return
		}
		if err == nil {
			a.Logger.Info().Str("reason", reason).Msg("Subscriber detached, listening disarmed")
		}
	})

	a.Logger.Info().
		Str("audioSource", cfg.Audio.Source).
		Str("sttProvider", transcriber.Provider()).
		Str("llmProvider", enhancer.Provider()).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Recorder transcriber application created")
	return a, nil
}

// ArmListening arms on behalf of sub. Listening never outlives its
// subscriber: a detached sub is refused, and a sub that detaches while the
// machine arms has its generation disarmed again.
func (a *Application) ArmListening(sub *events.Subscription) (session.Session, error) {
	if detached(sub) {
		return session.Session{}, ErrDetached
	}
	s, err := a.Machine.ArmListening()
	if err != nil {
		return session.Session{}, err
	}
	if detached(sub) {
		err := a.Machine.DisarmGeneration(context.Background(), s.Generation)
		if err != nil && !errors.Is(err, session.ErrConflict) && !errors.Is(err, session.ErrStale) {
			a.Logger.Warn().Err(err).Msg("Failed to disarm for detached subscriber")
		}
		return session.Session{}, ErrDetached
	}
	return s, nil
}

// DisarmListening disarms on behalf of sub. A detached sub no longer
// speaks for the session, which may belong to a newer subscriber.
func (a *Application) DisarmListening(ctx context.Context, sub *events.Subscription) error {
	if detached(sub) {
		return ErrDetached
	}
	return a.Machine.DisarmListening(ctx)
}

func detached(sub *events.Subscription) bool {
	select {
	case <-sub.Done():
		return true
	default:
		return false
	}
}

// NewSource builds the configured audio source.
func NewSource(cfg config.AudioConfig) (audio.Source, error) {
	format := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	switch cfg.Source {
	case "ffmpeg", "":
		return audio.NewFFmpegSource(cfg.FFmpegCommand, cfg.InputFormat, cfg.InputDevice, format, cfg.FrameSize), nil
	case "wav":
		if cfg.WAVPath == "" {
			return nil, errors.New("AUDIO_WAV_PATH is required for the wav audio source")
		}
		return &audio.WAVSource{Path: cfg.WAVPath, SamplesPerFrame: cfg.FrameSize, Loop: cfg.WAVLoop, Pace: true}, nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", cfg.Source)
	}
}

// NewTranscriber builds the configured transcription gateway. The returned
// func releases its client.
func NewTranscriber(ctx context.Context, cfg *config.Configuration) (*stt.Instrumented, func() error, error) {
	noop := func() error { return nil }
	switch cfg.STT.Provider {
	case "mock", "":
		return stt.Instrument(sttmock.New()), noop, nil
	case "google":
		gcfg := sttgoogle.DefaultConfig()
		gcfg.LanguageCode = cfg.STT.LanguageCode
		gcfg.AudioEncoding = cfg.STT.AudioEncoding
		gcfg.SampleRateHz = cfg.Audio.SampleRate
		adapter, err := sttgoogle.New(ctx, gcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create google speech client: %w", err)
		}
		return stt.Instrument(adapter), adapter.Close, nil
	case "openai":
		return stt.Instrument(sttopenai.New(sttopenai.Config{
			APIKey:       cfg.STT.APIKey,
			BaseURL:      cfg.STT.BaseURL,
			Model:        cfg.STT.Model,
			LanguageCode: cfg.STT.LanguageCode,
		})), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
	}
}

// NewEnhancer builds the configured enhancement gateway.
func NewEnhancer(ctx context.Context, cfg *config.Configuration) (*enhance.Instrumented, error) {
	switch cfg.LLM.Provider {
	case "mock", "":
		return enhance.Instrument(enhancemock.New(), cfg.LLM.Timeout), nil
	case "openai":
		return enhance.Instrument(enhanceopenai.New(enhanceopenai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}), cfg.LLM.Timeout), nil
	case "gemini":
		e, err := enhancegemini.New(ctx, enhancegemini.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return enhance.Instrument(e, cfg.LLM.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Str("recordings", a.Store.Dir()).
		Msg("Recorder transcriber service starting")
	return nil
}

// Ready reports whether the service accepts traffic.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown stops the active session and releases all resources.
func (a *Application) Shutdown(ctx context.Context) {
	a.ready.Store(false)
	a.Logger.Info().Msg("Recorder transcriber service shutting down")
	if a.Machine != nil {
		a.Machine.Close(ctx)
	}
	a.close()
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn().Err(err).Msg("Error releasing resource")
		}
	}
	a.closers = nil
}
