// Package gemini enhances transcripts with the Gemini API.
package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"recorder-transcriber-service/internal/service/enhance"
)

// Config selects the model and sampling parameters.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Enhancer implements enhance.Enhancer.
type Enhancer struct {
	generate generateFunc
	cfg      Config
}

// New creates a Gemini API client.
func New(ctx context.Context, cfg Config) (*Enhancer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &Enhancer{generate: client.Models.GenerateContent, cfg: cfg}, nil
}

// Provider returns "gemini".
func (e *Enhancer) Provider() string { return "gemini" }

// Enhance asks the model for a JSON note.
func (e *Enhancer) Enhance(ctx context.Context, text string) (enhance.Note, error) {
	temp := float32(e.cfg.Temperature)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(enhance.SystemPrompt, genai.RoleUser),
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
	}
	if e.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(e.cfg.MaxTokens)
	}

	resp, err := e.generate(ctx, e.cfg.Model, genai.Text(text), config)
	if err != nil {
		return enhance.Note{}, err
	}
	out := resp.Text()
	if out == "" {
		return enhance.Note{}, errors.New("model returned no text")
	}
	return enhance.ParseNote(out)
}
