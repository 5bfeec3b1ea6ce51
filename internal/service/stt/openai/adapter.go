// Package openai transcribes recordings with an OpenAI-compatible Whisper
// endpoint.
package openai

import (
	"bytes"
	"context"
	"errors"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/service/stt"
)

// Config selects the endpoint and model.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	LanguageCode string
}

type transcriber interface {
	CreateTranscription(ctx context.Context, request goopenai.AudioRequest) (goopenai.AudioResponse, error)
}

// Adapter implements stt.Adapter.
type Adapter struct {
	client transcriber
	cfg    Config
}

// New creates the adapter. BaseURL may point at any server that speaks the
// OpenAI audio API.
func New(cfg Config) *Adapter {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	return &Adapter{client: goopenai.NewClientWithConfig(clientCfg), cfg: cfg}
}

// Provider returns "openai".
func (a *Adapter) Provider() string { return "openai" }

// Transcribe uploads the recording file, or the PCM wrapped as WAV when no
// file is given.
func (a *Adapter) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	areq := goopenai.AudioRequest{
		Model:    a.cfg.Model,
		Language: language(a.cfg.LanguageCode),
		Format:   goopenai.AudioResponseFormatJSON,
	}
	switch {
	case req.Path != "":
		areq.FilePath = req.Path
	case len(req.PCM) > 0:
		var buf bytes.Buffer
		if err := audio.EncodeWAV(&buf, req.PCM, req.Format); err != nil {
			return stt.Transcript{}, err
		}
		areq.Reader = &buf
		areq.FilePath = "utterance.wav"
	default:
		return stt.Transcript{}, errors.New("openai: no audio")
	}

	resp, err := a.client.CreateTranscription(ctx, areq)
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{Text: strings.TrimSpace(resp.Text)}, nil
}

// language reduces a BCP-47 tag to the ISO-639-1 code Whisper expects.
func language(code string) string {
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return strings.ToLower(code)
}
