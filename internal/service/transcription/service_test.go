package transcription

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/service/enhance"
	enhancemock "recorder-transcriber-service/internal/service/enhance/mock"
	"recorder-transcriber-service/internal/service/stt"
	"recorder-transcriber-service/internal/storage"
)

type fakeSTT struct {
	text  string
	err   error
	calls int
}

func (f *fakeSTT) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	f.calls++
	if f.err != nil {
		return stt.Transcript{}, f.err
	}
	if len(req.PCM) == 0 {
		return stt.Transcript{}, errors.New("no audio")
	}
	return stt.Transcript{Text: f.text, Confidence: 0.9}, nil
}

func (f *fakeSTT) Provider() string { return "fake" }

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(dir, filepath.Join(dir, "index.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func saveTone(t *testing.T, store *storage.Store) storage.Recording {
	t.Helper()
	pcm := audio.Tone(audio.DefaultFormat, 500*time.Millisecond, 0.3)
	rec, err := store.Save(context.Background(), storage.OriginManual, pcm, audio.DefaultFormat, time.Now())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return rec
}

func TestTranscribe_KnownRecording(t *testing.T) {
	store := newStore(t)
	rec := saveTone(t, store)
	svc := NewService(store, &fakeSTT{text: "  buy milk  "}, enhancemock.New())

	tr, err := svc.Transcribe(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "buy milk" {
		t.Errorf("expected trimmed text, got %q", tr.Text)
	}
	if tr.RecordingID != rec.ID {
		t.Errorf("expected recording id %s, got %s", rec.ID, tr.RecordingID)
	}
	if tr.GeneratedAt.Location() != time.UTC {
		t.Error("expected UTC timestamp")
	}
	if _, ok := svc.Cached(rec.ID); !ok {
		t.Error("expected transcript to be cached")
	}
}

func TestTranscribe_UnknownRecording(t *testing.T) {
	fake := &fakeSTT{text: "x"}
	svc := NewService(newStore(t), fake, enhancemock.New())

	_, err := svc.Transcribe(context.Background(), "/nope/missing.wav")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if fake.calls != 0 {
		t.Error("gateway must not be called for unknown recordings")
	}
}

func TestTranscribe_GatewayFailureNotRetried(t *testing.T) {
	store := newStore(t)
	rec := saveTone(t, store)
	fake := &fakeSTT{err: errors.New("upstream 503")}
	svc := NewService(store, stt.Instrument(fake), enhancemock.New())

	_, err := svc.Transcribe(context.Background(), rec.ID)
	if !errors.Is(err, stt.ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("expected exactly one gateway call, got %d", fake.calls)
	}
}

func TestEnhance(t *testing.T) {
	store := newStore(t)
	rec := saveTone(t, store)
	svc := NewService(store, &fakeSTT{text: "plan the quarterly roadmap review"}, enhance.Instrument(enhancemock.New(), 0))
	if _, err := svc.Transcribe(context.Background(), rec.ID); err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	tests := []struct {
		name        string
		text        string
		recordingID string
		wantErr     error
		wantBody    string
	}{
		{"text used directly", "call mom", "", nil, "Call mom."},
		{"text wins over recording", "call mom", rec.ID, nil, "Call mom."},
		{"resolved from transcript", "", rec.ID, nil, "Plan the quarterly roadmap review."},
		{"untranscribed recording", "", "/tmp/other.wav", ErrNoTranscript, ""},
		{"nothing given", "  ", "", enhance.ErrEmptyText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note, err := svc.Enhance(context.Background(), tt.text, tt.recordingID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if note.Body != tt.wantBody {
				t.Errorf("body = %q, want %q", note.Body, tt.wantBody)
			}
			if note.RecordingID != tt.recordingID {
				t.Errorf("recording id = %q, want %q", note.RecordingID, tt.recordingID)
			}
			if note.CreatedAt.IsZero() || note.Tags == nil {
				t.Errorf("expected created_at and non-nil tags, got %+v", note)
			}
		})
	}
}
