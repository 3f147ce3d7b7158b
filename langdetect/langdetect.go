// Package langdetect detects the language of short text snippets.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// languages is the detection set, matching the translation model table.
var languages = []lingua.Language{
	lingua.Chinese,
	lingua.English,
	lingua.Japanese,
	lingua.Korean,
}

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// buildDetector lazily constructs the shared detector; model loading is
// expensive, so it happens on first use only.
func buildDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}

// Detect returns the ISO 639-1 code of the detected language, or ok=false
// when no language can be determined with reasonable confidence.
func Detect(text string) (code string, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	lang, found := buildDetector().DetectLanguageOf(text)
	if !found {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}
