// Package translate provides machine translation backends and the
// incremental chunking strategy that feeds them.
package translate

import (
	"context"
	"regexp"
	"strings"
)

// Translator converts text between languages. Implementations may run a
// local model or call a remote API.
type Translator interface {
	// Translate converts text from the source to the target language,
	// both ISO 639-1 codes.
	Translate(ctx context.Context, text, source, target string) (string, error)

	// Close releases resources held by the translator.
	Close() error
}

var (
	repeatedPunct = regexp.MustCompile(`([.!?]){2,}`)
	trailingPunct = regexp.MustCompile(`[.!?。！？]$`)
)

// Postprocess cleans up raw model output: collapses stuttered
// punctuation and guarantees a sentence-final mark.
func Postprocess(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	text = repeatedPunct.ReplaceAllString(text, "$1")
	if !trailingPunct.MatchString(text) {
		text += "."
	}
	return text
}
