// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"recorder-transcriber-service/internal/service/stt"
)

// Config holds Google recognition settings.
type Config struct {
	LanguageCode    string
	SampleRateHz    int
	AudioEncoding   string
	AutoPunctuation bool
}

// DefaultConfig returns defaults matching the capture format.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		SampleRateHz:    16000,
		AudioEncoding:   "LINEAR16",
		AutoPunctuation: true,
	}
}

// SyncLimit is the longest audio synchronous Recognize accepts. Longer
// recordings go through LongRunningRecognize.
const SyncLimit = time.Minute

type (
	recognizeFunc     func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	longRecognizeFunc func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)
)

// Adapter implements stt.Adapter. Short audio uses synchronous recognition,
// anything over SyncLimit a long-running operation.
type Adapter struct {
	client        *speech.Client
	recognize     recognizeFunc
	longRecognize longRecognizeFunc
	cfg           Config
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		client: c,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		},
		longRecognize: func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
			op, err := c.LongRunningRecognize(ctx, req)
			if err != nil {
				return nil, err
			}
			return op.Wait(ctx)
		},
		cfg: cfg,
	}, nil
}

// Provider returns "google".
func (a *Adapter) Provider() string { return "google" }

// Transcribe sends the PCM content in one request and joins the top
// alternative of every result.
func (a *Adapter) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.PCM) == 0 {
		return stt.Transcript{}, errors.New("google: empty audio")
	}
	base := a.buildRequest(req)

	if a.duration(req) <= SyncLimit {
		resp, err := a.recognize(ctx, base)
		if err != nil {
			return stt.Transcript{}, err
		}
		return collect(resp.GetResults()), nil
	}

	resp, err := a.longRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: base.Config,
		Audio:  base.Audio,
	})
	if err != nil {
		return stt.Transcript{}, err
	}
	return collect(resp.GetResults()), nil
}

func (a *Adapter) duration(req stt.Request) time.Duration {
	f := req.Format
	if f.SampleRate <= 0 {
		f.SampleRate = a.cfg.SampleRateHz
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	return f.Duration(len(req.PCM))
}

func (a *Adapter) buildRequest(req stt.Request) *speechpb.RecognizeRequest {
	rate := a.cfg.SampleRateHz
	if req.Format.SampleRate > 0 {
		rate = req.Format.SampleRate
	}
	channels := req.Format.Channels
	if channels <= 0 {
		channels = 1
	}
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
			SampleRateHertz:            int32(rate),
			AudioChannelCount:          int32(channels),
			LanguageCode:               a.cfg.LanguageCode,
			EnableAutomaticPunctuation: a.cfg.AutoPunctuation,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: req.PCM},
		},
	}
}

func collect(results []*speechpb.SpeechRecognitionResult) stt.Transcript {
	var (
		parts []string
		conf  float64
		n     int
	)
	for _, r := range results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			parts = append(parts, text)
		}
		conf += float64(alt.Confidence)
		n++
	}
	t := stt.Transcript{Text: strings.Join(parts, " ")}
	if n > 0 {
		t.Confidence = conf / float64(n)
	}
	return t
}

// Close releases the client.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]; ok && v != 0 {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}
