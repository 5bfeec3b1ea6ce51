package segment

// VAD classifies frames as voiced or silent using two RMS thresholds.
// Levels between the thresholds keep the previous classification, so a
// word trailing off does not flap between speech and silence.
type VAD struct {
	SpeechThreshold  float64
	SilenceThreshold float64

	voiced bool
}

// NewVAD returns a detector. A silence threshold above the speech threshold
// is clamped to it.
func NewVAD(speech, silence float64) *VAD {
	if silence > speech {
		silence = speech
	}
	return &VAD{SpeechThreshold: speech, SilenceThreshold: silence}
}

// Classify updates and returns the voiced state for a frame's RMS level.
func (v *VAD) Classify(rms float64) bool {
	switch {
	case rms >= v.SpeechThreshold:
		v.voiced = true
	case rms < v.SilenceThreshold:
		v.voiced = false
	}
	return v.voiced
}

// Reset returns the detector to silence.
func (v *VAD) Reset() { v.voiced = false }
