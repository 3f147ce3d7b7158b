package pipeline

import (
	"errors"

	"github.com/auralang/voxlate/audiocapture"
)

var (
	// ErrModelUnavailable means a required model could not be made ready.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrUnsupportedLanguagePair means no model combination serves the
	// requested source/target codes.
	ErrUnsupportedLanguagePair = errors.New("unsupported language pair")

	// ErrInvalidState means the operation is not legal in the
	// coordinator's current state.
	ErrInvalidState = errors.New("invalid pipeline state")

	// ErrDeviceUnavailable means the audio capture device could not be
	// acquired.
	ErrDeviceUnavailable = audiocapture.ErrDeviceUnavailable
)
