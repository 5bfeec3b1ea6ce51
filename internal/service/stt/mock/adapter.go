// Package mock provides a mock STT adapter for running without cloud
// credentials. Each call returns the next canned utterance.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"recorder-transcriber-service/internal/service/stt"
)

// SimulatedUtterance is a canned transcript.
type SimulatedUtterance struct {
	Final      string
	Confidence float64
}

// DefaultUtterances provides sample dictation.
var DefaultUtterances = []SimulatedUtterance{
	{Final: "Remind me to call the dentist tomorrow morning", Confidence: 0.94},
	{Final: "Add oat milk and coffee beans to the shopping list", Confidence: 0.97},
	{Final: "Idea for the talk, start with the failure story and then show the fix", Confidence: 0.91},
	{Final: "The meeting with the design team moved to Thursday at three", Confidence: 0.89},
	{Final: "Note to self, the staging deploy needs a config review before Friday", Confidence: 0.98},
}

// Adapter implements stt.Adapter with canned responses.
type Adapter struct {
	// Latency simulates provider processing time.
	Latency time.Duration
	// Err, when set, is returned by every call.
	Err error

	mu    sync.Mutex
	next  int
	calls int
}

// New creates a new mock STT adapter.
func New() *Adapter {
	return &Adapter{}
}

// Provider returns "mock".
func (a *Adapter) Provider() string { return "mock" }

// Transcribe returns the next utterance, cycling through DefaultUtterances.
func (a *Adapter) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if a.Latency > 0 {
		t := time.NewTimer(a.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++

	if a.Err != nil {
		return stt.Transcript{}, a.Err
	}
	if len(req.PCM) == 0 && req.Path == "" {
		return stt.Transcript{}, errors.New("mock: no audio")
	}
	utt := DefaultUtterances[a.next%len(DefaultUtterances)]
	a.next++
	return stt.Transcript{Text: utt.Final, Confidence: utt.Confidence}, nil
}

// Calls returns how many times Transcribe ran.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
