// Package openai enhances transcripts with an OpenAI-compatible chat
// completion endpoint.
package openai

import (
	"context"
	"errors"

	goopenai "github.com/sashabaranov/go-openai"

	"recorder-transcriber-service/internal/service/enhance"
)

// Config selects the endpoint and sampling parameters.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Enhancer implements enhance.Enhancer.
type Enhancer struct {
	client chatClient
	cfg    Config
}

// New creates the enhancer.
func New(cfg Config) *Enhancer {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	return &Enhancer{client: goopenai.NewClientWithConfig(clientCfg), cfg: cfg}
}

// Provider returns "openai".
func (e *Enhancer) Provider() string { return "openai" }

// Enhance asks the model for a JSON note.
func (e *Enhancer) Enhance(ctx context.Context, text string) (enhance.Note, error) {
	resp, err := e.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: e.cfg.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: enhance.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: text},
		},
		Temperature: float32(e.cfg.Temperature),
		MaxTokens:   e.cfg.MaxTokens,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return enhance.Note{}, err
	}
	if len(resp.Choices) == 0 {
		return enhance.Note{}, errors.New("model returned no choices")
	}
	return enhance.ParseNote(resp.Choices[0].Message.Content)
}
