package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"recorder-transcriber-service/internal/service/stt"
)

var audioReq = stt.Request{PCM: make([]byte, 320)}

func TestAdapter_New(t *testing.T) {
	adapter := New()
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if adapter.Provider() != "mock" {
		t.Errorf("expected provider 'mock', got %s", adapter.Provider())
	}
}

func TestAdapter_CyclesThroughUtterances(t *testing.T) {
	adapter := New()

	for i := 0; i < len(DefaultUtterances)+1; i++ {
		got, err := adapter.Transcribe(context.Background(), audioReq)
		if err != nil {
			t.Fatalf("Transcribe() error: %v", err)
		}
		want := DefaultUtterances[i%len(DefaultUtterances)]
		if got.Text != want.Final {
			t.Errorf("call %d: expected %q, got %q", i, want.Final, got.Text)
		}
		if got.Confidence != want.Confidence {
			t.Errorf("call %d: expected confidence %v, got %v", i, want.Confidence, got.Confidence)
		}
	}
}

func TestAdapter_NoAudio(t *testing.T) {
	if _, err := New().Transcribe(context.Background(), stt.Request{}); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestAdapter_ConfiguredError(t *testing.T) {
	boom := errors.New("provider down")
	adapter := &Adapter{Err: boom}

	if _, err := adapter.Transcribe(context.Background(), audioReq); !errors.Is(err, boom) {
		t.Errorf("expected configured error, got %v", err)
	}
	if adapter.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", adapter.Calls())
	}
}

func TestAdapter_LatencyRespectsContext(t *testing.T) {
	adapter := &Adapter{Latency: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := adapter.Transcribe(ctx, audioReq)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("expected cancellation to cut the simulated latency short")
	}
}

func TestDefaultUtterances(t *testing.T) {
	if len(DefaultUtterances) != 5 {
		t.Errorf("expected 5 default utterances, got %d", len(DefaultUtterances))
	}

	for i, utt := range DefaultUtterances {
		if utt.Final == "" {
			t.Errorf("utterance %d has empty final", i)
		}
		if utt.Confidence <= 0 || utt.Confidence > 1 {
			t.Errorf("utterance %d has invalid confidence %f", i, utt.Confidence)
		}
	}
}

func TestAdapter_ThreadSafety(t *testing.T) {
	adapter := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				adapter.Transcribe(context.Background(), audioReq)
			}
		}()
	}
	wg.Wait()

	if adapter.Calls() != 100 {
		t.Errorf("expected 100 calls, got %d", adapter.Calls())
	}
}

func TestInstrument_WrapsErrors(t *testing.T) {
	wrapped := stt.Instrument(&Adapter{Err: errors.New("boom")})

	_, err := wrapped.Transcribe(context.Background(), audioReq)
	if !errors.Is(err, stt.ErrTranscriptionFailed) {
		t.Errorf("expected ErrTranscriptionFailed, got %v", err)
	}
	if wrapped.Provider() != "mock" {
		t.Errorf("expected provider passthrough, got %s", wrapped.Provider())
	}
}
