package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

func reply(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestEnhancer_Enhance(t *testing.T) {
	var gotModel string
	var gotConfig *genai.GenerateContentConfig
	e := &Enhancer{
		cfg: Config{Model: "gemini-test", Temperature: 0.3, MaxTokens: 128},
		generate: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gotModel = model
			gotConfig = config
			return reply(`{"title":"Ideas","body":"Try the new parser.","tags":["dev"]}`), nil
		},
	}

	note, err := e.Enhance(context.Background(), "try the new parser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note.Title != "Ideas" || note.Body != "Try the new parser." {
		t.Errorf("unexpected note %+v", note)
	}
	if gotModel != "gemini-test" {
		t.Errorf("expected model gemini-test, got %s", gotModel)
	}
	if gotConfig.ResponseMIMEType != "application/json" || gotConfig.MaxOutputTokens != 128 {
		t.Errorf("unexpected config %+v", gotConfig)
	}
	if gotConfig.SystemInstruction == nil {
		t.Error("expected system instruction")
	}
}

func TestEnhancer_Errors(t *testing.T) {
	failing := &Enhancer{generate: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("quota")
	}}
	if _, err := failing.Enhance(context.Background(), "x"); err == nil {
		t.Error("expected error from client")
	}

	empty := &Enhancer{generate: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return reply(""), nil
	}}
	if _, err := empty.Enhance(context.Background(), "x"); err == nil {
		t.Error("expected error for empty reply")
	}
}
