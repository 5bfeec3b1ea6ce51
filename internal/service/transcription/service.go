// Package transcription implements the manual transcribe and enhance
// operations on top of the recording store and the two gateways.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/observability/logging"
	"recorder-transcriber-service/internal/service/enhance"
	"recorder-transcriber-service/internal/service/stt"
	"recorder-transcriber-service/internal/storage"
)

// ErrNoTranscript is returned when enhancement refers to a recording that
// has not been transcribed yet.
var ErrNoTranscript = errors.New("no transcript for recording")

// RecordingStore resolves recording ids.
type RecordingStore interface {
	Get(ctx context.Context, id string) (storage.Recording, error)
	ReadPCM(rec storage.Recording) (audio.Format, []byte, error)
}

// Transcript is the text produced for a recording.
type Transcript struct {
	RecordingID string
	Text        string
	GeneratedAt time.Time
}

// Note is an enhanced transcript.
type Note struct {
	enhance.Note
	RecordingID string
	CreatedAt   time.Time
}

// Service coordinates manual transcription and enhancement. Transcripts are
// cached in memory by recording id so that enhance can refer to them.
type Service struct {
	store    RecordingStore
	stt      stt.Adapter
	enhancer enhance.Enhancer
	now      func() time.Time
	log      zerolog.Logger

	mu          sync.RWMutex
	transcripts map[string]Transcript
}

// NewService creates the facade.
func NewService(store RecordingStore, adapter stt.Adapter, enhancer enhance.Enhancer) *Service {
	return &Service{
		store:       store,
		stt:         adapter,
		enhancer:    enhancer,
		now:         time.Now,
		log:         logging.WithComponent("transcription"),
		transcripts: make(map[string]Transcript),
	}
}

// Transcribe resolves recordingID and transcribes it. Unknown ids return
// storage.ErrNotFound. Gateway failures are returned as is, without retry.
func (s *Service) Transcribe(ctx context.Context, recordingID string) (Transcript, error) {
	rec, err := s.store.Get(ctx, recordingID)
	if err != nil {
		return Transcript{}, err
	}
	format, pcm, err := s.store.ReadPCM(rec)
	if err != nil {
		return Transcript{}, fmt.Errorf("read recording: %w", err)
	}
	return s.TranscribeRecording(ctx, rec, format, pcm)
}

// TranscribeRecording transcribes audio that is already in memory.
func (s *Service) TranscribeRecording(ctx context.Context, rec storage.Recording, format audio.Format, pcm []byte) (Transcript, error) {
	log := logging.WithRecording("transcription", rec.ID)

	out, err := s.stt.Transcribe(ctx, stt.Request{Path: rec.Path, PCM: pcm, Format: format})
	if err != nil {
		log.Error().Err(err).Str("provider", s.stt.Provider()).Msg("Transcription failed")
		return Transcript{}, err
	}

	t := Transcript{
		RecordingID: rec.ID,
		Text:        strings.TrimSpace(out.Text),
		GeneratedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.transcripts[rec.ID] = t
	s.mu.Unlock()

	log.Info().
		Int("chars", len(t.Text)).
		Float64("confidence", out.Confidence).
		Msg("Recording transcribed")
	return t, nil
}

// Cached returns the last transcript produced for recordingID.
func (s *Service) Cached(recordingID string) (Transcript, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transcripts[recordingID]
	return t, ok
}

// Enhance turns text into a note. When text is empty the cached transcript
// of recordingID is used; if there is none ErrNoTranscript is returned.
func (s *Service) Enhance(ctx context.Context, text, recordingID string) (Note, error) {
	if strings.TrimSpace(text) == "" {
		if recordingID == "" {
			return Note{}, enhance.ErrEmptyText
		}
		t, ok := s.Cached(recordingID)
		if !ok {
			return Note{}, fmt.Errorf("%w: %s", ErrNoTranscript, recordingID)
		}
		if t.Text == "" {
			return Note{}, enhance.ErrEmptyText
		}
		text = t.Text
	}

	note, err := s.enhancer.Enhance(ctx, text)
	if err != nil {
		s.log.Error().Err(err).Str("provider", s.enhancer.Provider()).Msg("Enhancement failed")
		return Note{}, err
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}
	return Note{Note: note, RecordingID: recordingID, CreatedAt: s.now().UTC()}, nil
}
