// Package mock builds notes locally without a model.
package mock

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"recorder-transcriber-service/internal/service/enhance"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"then": true, "to": true, "of": true, "a": true, "an": true, "in": true, "on": true,
	"at": true, "is": true, "it": true, "me": true, "my": true, "be": true, "by": true,
	"self": true, "note": true, "needs": true, "before": true, "from": true,
}

// Enhancer derives a title from the first words and tags from the most
// frequent content words.
type Enhancer struct{}

// New returns the mock enhancer.
func New() *Enhancer { return &Enhancer{} }

// Provider returns "mock".
func (e *Enhancer) Provider() string { return "mock" }

// Enhance builds a note from text.
func (e *Enhancer) Enhance(ctx context.Context, text string) (enhance.Note, error) {
	text = strings.Join(strings.Fields(text), " ")
	body := sentence(text)

	words := strings.Fields(text)
	titleWords := words
	if len(titleWords) > 6 {
		titleWords = titleWords[:6]
	}
	title := strings.TrimRight(strings.Join(titleWords, " "), ".,;:!?")

	return enhance.Note{
		Title: sentence(title),
		Body:  body,
		Tags:  topWords(words, 3),
	}, nil
}

func sentence(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	out := string(r)
	if !strings.ContainsAny(out[len(out)-1:], ".!?") {
		out += "."
	}
	return out
}

func topWords(words []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }))
		if len(w) < 3 || stopwords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return enhance.NormalizeTags(order)
}
