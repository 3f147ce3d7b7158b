// Package asr provides speech recognition provider interfaces and the
// audio frontend that turns raw capture into text segments.
package asr

// Result is the outcome of transcribing one audio segment.
type Result struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Provider converts audio to text. Implementations may shell out to a
// local runner or call a remote API; all receive mono float32 PCM at
// 16000 Hz.
type Provider interface {
	// Transcribe converts audio samples to text.
	// language is the expected source language code, empty for auto-detect.
	Transcribe(audio []float32, language string) (*Result, error)

	// Close releases resources held by the provider.
	Close() error
}

// Punctuator restores punctuation on raw recognizer output. Streaming
// recognizers emit unpunctuated text; finalized segments pass through a
// punctuator before translation.
type Punctuator interface {
	Punctuate(text string) (string, error)
}

// NopPunctuator returns text unchanged. Used when punctuation restoration
// is disabled or the source language does not need it.
type NopPunctuator struct{}

func (NopPunctuator) Punctuate(text string) (string, error) { return text, nil }
