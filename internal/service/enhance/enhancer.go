// Package enhance turns raw transcripts into structured notes through an
// LLM gateway.
package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"recorder-transcriber-service/internal/observability/metrics"
)

// Errors returned by enhancers.
var (
	ErrEmptyText         = errors.New("text must not be empty")
	ErrEnhancementFailed = errors.New("enhancement failed")
)

// SystemPrompt instructs the model to answer with a JSON note.
const SystemPrompt = `You clean up dictated voice notes.
Rewrite the transcript as well-structured Markdown: fix punctuation and grammar, remove filler words, keep the speaker's meaning and wording where possible.
Reply with a single JSON object and nothing else:
{"title": "<short title>", "body": "<markdown body>", "tags": ["<3 to 5 lowercase tags>"]}`

// Note is a structured note.
type Note struct {
	Title string
	Body  string
	Tags  []string
}

// Enhancer is the enhancement gateway.
type Enhancer interface {
	Enhance(ctx context.Context, text string) (Note, error)
	Provider() string
}

// ParseNote decodes a model reply. Code fences around the JSON are
// tolerated and tags are normalized.
func ParseNote(raw string) (Note, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var reply struct {
		Title    string   `json:"title"`
		Body     string   `json:"body"`
		Markdown string   `json:"markdown"`
		Tags     []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return Note{}, fmt.Errorf("decode model reply: %w", err)
	}
	body := reply.Body
	if body == "" {
		body = reply.Markdown
	}
	if strings.TrimSpace(body) == "" {
		return Note{}, errors.New("model reply has no body")
	}
	title := strings.TrimSpace(reply.Title)
	if title == "" {
		title = "Untitled note"
	}
	return Note{Title: title, Body: strings.TrimSpace(body), Tags: NormalizeTags(reply.Tags)}, nil
}

// NormalizeTags lowercases, trims and de-duplicates tags, keeping at most five.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool)
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) == 5 {
			break
		}
	}
	return out
}

// Instrumented validates input, records metrics and wraps failures in
// ErrEnhancementFailed.
type Instrumented struct {
	Enhancer
	timeout time.Duration
	metrics *metrics.Metrics
}

// Instrument decorates e. A positive timeout bounds each call.
func Instrument(e Enhancer, timeout time.Duration) *Instrumented {
	return &Instrumented{Enhancer: e, timeout: timeout, metrics: metrics.DefaultMetrics}
}

// Enhance calls the wrapped enhancer.
func (i *Instrumented) Enhance(ctx context.Context, text string) (Note, error) {
	if strings.TrimSpace(text) == "" {
		return Note{}, ErrEmptyText
	}
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	note, err := i.Enhancer.Enhance(ctx, text)
	i.metrics.RecordGatewayCall("llm", i.Provider(), err, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrEnhancementFailed) {
			return Note{}, err
		}
		return Note{}, fmt.Errorf("%w: %s: %v", ErrEnhancementFailed, i.Provider(), err)
	}
	return note, nil
}
