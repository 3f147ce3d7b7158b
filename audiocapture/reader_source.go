package audiocapture

import (
	"encoding/binary"
	"io"
	"sync"
	"time"
)

// ReaderSource feeds the capture pipeline from an io.Reader carrying raw
// 16-bit little-endian PCM, pacing delivery at real time. It stands in
// for a microphone when audio arrives from a file or another process.
// Multi-channel input is downmixed to mono.
type ReaderSource struct {
	r        io.Reader
	chunkMS  int
	channels int

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewReaderSource creates a source reading s16le PCM from r, delivering
// chunkMS milliseconds of audio per callback.
func NewReaderSource(r io.Reader, chunkMS, channels int) *ReaderSource {
	if chunkMS <= 0 {
		chunkMS = 200
	}
	if channels <= 0 {
		channels = 1
	}
	return &ReaderSource{r: r, chunkMS: chunkMS, channels: channels}
}

// Start begins reading in a background goroutine. The callback stops
// being invoked once the reader is exhausted or Stop is called.
func (s *ReaderSource) Start(sampleRate int, callback func(samples []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyCapturing
	}
	s.running = true
	s.done = make(chan struct{})

	chunkSamples := sampleRate * s.chunkMS / 1000
	frameBytes := 2 * s.channels
	interval := time.Duration(s.chunkMS) * time.Millisecond
	channels := s.channels
	done := s.done

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		raw := make([]byte, chunkSamples*frameBytes)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			n, err := io.ReadFull(s.r, raw)
			if n > 0 {
				callback(decodePCM16(raw[:n-n%frameBytes], channels))
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

// Stop terminates the reader goroutine.
func (s *ReaderSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.done)
	return nil
}

// decodePCM16 converts little-endian int16 PCM to mono float32 in
// [-1, 1], averaging interleaved channels.
func decodePCM16(raw []byte, channels int) []float32 {
	frames := len(raw) / (2 * channels)
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(raw[(i*channels+c)*2:]))
			sum += float32(v) / 32768
		}
		samples[i] = sum / float32(channels)
	}
	return samples
}
