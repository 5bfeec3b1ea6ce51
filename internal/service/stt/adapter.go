// Package stt defines the transcription gateway and its adapters.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/observability/metrics"
)

// ErrTranscriptionFailed wraps every adapter failure.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Request is one finished recording to transcribe. Adapters use whichever
// of Path or PCM suits their API.
type Request struct {
	Path   string
	PCM    []byte
	Format audio.Format
}

// Transcript is the gateway's answer.
type Transcript struct {
	Text       string
	Confidence float64
}

// Adapter defines the interface for STT providers.
type Adapter interface {
	// Transcribe blocks until the provider answers or ctx ends.
	Transcribe(ctx context.Context, req Request) (Transcript, error)

	// Provider names the backend for logs and metrics.
	Provider() string
}

// Instrumented records latency and errors and wraps failures in
// ErrTranscriptionFailed.
type Instrumented struct {
	Adapter
	metrics *metrics.Metrics
}

// Instrument decorates a.
func Instrument(a Adapter) *Instrumented {
	return &Instrumented{Adapter: a, metrics: metrics.DefaultMetrics}
}

// Transcribe calls the wrapped adapter.
func (i *Instrumented) Transcribe(ctx context.Context, req Request) (Transcript, error) {
	start := time.Now()
	t, err := i.Adapter.Transcribe(ctx, req)
	i.metrics.RecordGatewayCall("stt", i.Provider(), err, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrTranscriptionFailed) {
			return Transcript{}, err
		}
		return Transcript{}, fmt.Errorf("%w: %s: %v", ErrTranscriptionFailed, i.Provider(), err)
	}
	return t, nil
}
