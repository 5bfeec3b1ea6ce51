package wakeword

import (
	"time"

	"recorder-transcriber-service/internal/audio"
)

// EnergyDetector fires when the most recent Trigger span of audio stays
// above a loudness level. It is a stand-in for a keyword model: any
// sustained utterance wakes it.
type EnergyDetector struct {
	Keyword string
	// Trigger is the span of audio that must be loud.
	Trigger time.Duration
	// Level is the RMS level a frame must reach to count as loud.
	Level float64
	// Threshold is the fraction of loud frames in the span needed to fire.
	Threshold float64
}

// NewEnergyDetector returns a detector with the given trigger span and
// score threshold.
func NewEnergyDetector(keyword string, trigger time.Duration, threshold float64) *EnergyDetector {
	if trigger <= 0 {
		trigger = 240 * time.Millisecond
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &EnergyDetector{
		Keyword:   keyword,
		Trigger:   trigger,
		Level:     0.05,
		Threshold: threshold,
	}
}

// Detect scores the tail of the window.
func (d *EnergyDetector) Detect(w *Window) (Detection, error) {
	if w.Duration() < d.Trigger {
		return Detection{Keyword: d.Keyword}, nil
	}
	tail := w.Tail(d.Trigger)

	var loud, total time.Duration
	for _, f := range tail {
		if len(f.Data)%2 != 0 {
			return Detection{}, ErrInvalidFrame
		}
		dur := f.Duration()
		total += dur
		if audio.RMS(f.Data) >= d.Level {
			loud += dur
		}
	}
	if total == 0 {
		return Detection{Keyword: d.Keyword}, nil
	}
	score := float64(loud) / float64(total)
	return Detection{
		Detected: score >= d.Threshold,
		Keyword:  d.Keyword,
		Score:    score,
	}, nil
}

// Reset is a no-op; the detector keeps no state outside the window.
func (d *EnergyDetector) Reset() {}
