// Package tts provides speech synthesis backends and serialized playback.
package tts

import "context"

// Synthesizer converts text into encoded audio.
type Synthesizer interface {
	// Synthesize returns the audio for text, encoded per the backend's
	// configured output format.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Close releases resources held by the synthesizer.
	Close() error
}

// Player renders one clip of encoded audio and returns when playback
// finishes. Implementations own the audio output device.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}
