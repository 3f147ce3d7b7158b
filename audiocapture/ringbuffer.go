package audiocapture

import "sync"

// RingBuffer is a thread-safe circular buffer for audio samples, used to
// retain a short window of recent audio ahead of detected speech.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []float32
	writePos int
	size     int
	filled   int // how many samples have been written (up to size)
}

// NewRingBuffer creates a new ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		data: make([]float32, size),
		size: size,
	}
}

// Write adds samples to the buffer, overwriting the oldest data.
func (rb *RingBuffer) Write(samples []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return
	}
	for _, s := range samples {
		rb.data[rb.writePos] = s
		rb.writePos = (rb.writePos + 1) % rb.size
		if rb.filled < rb.size {
			rb.filled++
		}
	}
}

// Read returns the last n samples from the buffer.
func (rb *RingBuffer) Read(n int) []float32 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.filled {
		n = rb.filled
	}
	if n == 0 {
		return nil
	}

	result := make([]float32, n)
	startPos := (rb.writePos - n + rb.size) % rb.size
	for i := 0; i < n; i++ {
		result[i] = rb.data[(startPos+i)%rb.size]
	}
	return result
}

// Clear empties the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writePos = 0
	rb.filled = 0
}

// Len returns the number of samples in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.filled
}
