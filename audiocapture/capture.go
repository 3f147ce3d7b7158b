// Package audiocapture provides microphone capture behind an injectable
// audio source, so the pipeline never talks to device drivers directly.
package audiocapture

import (
	"errors"
	"sync"
)

// ErrAlreadyCapturing is returned when trying to start capture while already capturing.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// ErrDeviceUnavailable is returned when the underlying source cannot
// acquire the capture device.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Source is a device-level audio producer. Implementations own the
// physical device (or file, or network stream) for the duration between
// Start and Stop and deliver mono float32 samples in [-1, 1].
type Source interface {
	// Start begins producing audio at the given sample rate, invoking
	// callback from the source's own reader goroutine.
	Start(sampleRate int, callback func(samples []float32)) error

	// Stop releases the capture device. Safe to call when not started.
	Stop() error
}

// Capture fans audio from a Source out to registered callbacks.
type Capture struct {
	mu sync.RWMutex

	source     Source
	capturing  bool
	sampleRate int

	onAudio []func(samples []float32)
}

// Config holds configuration for audio capture.
type Config struct {
	Source     Source
	SampleRate int // default 16000 Hz
}

// DefaultConfig returns the default capture configuration (no source).
func DefaultConfig() Config {
	return Config{SampleRate: 16000}
}

// New creates a new audio capture instance over the given source.
func New(cfg Config) (*Capture, error) {
	if cfg.Source == nil {
		return nil, errors.New("audiocapture: source required")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}

	return &Capture{
		source:     cfg.Source,
		sampleRate: cfg.SampleRate,
	}, nil
}

// Start begins capturing audio. The microphone is exclusively owned by
// this capture until Stop.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return ErrAlreadyCapturing
	}

	if err := c.source.Start(c.sampleRate, c.handleAudio); err != nil {
		return errors.Join(ErrDeviceUnavailable, err)
	}

	c.capturing = true
	return nil
}

// Stop stops capturing audio and releases the device.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return nil
	}

	err := c.source.Stop()
	c.capturing = false
	return err
}

// IsCapturing returns true if currently capturing audio.
func (c *Capture) IsCapturing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capturing
}

// OnAudio registers a callback for audio data.
func (c *Capture) OnAudio(callback func(samples []float32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = append(c.onAudio, callback)
}

// SampleRate returns the configured sample rate.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

func (c *Capture) handleAudio(samples []float32) {
	c.mu.RLock()
	callbacks := c.onAudio
	c.mu.RUnlock()

	for _, cb := range callbacks {
		cb(samples)
	}
}
