package asr

import "time"

// SegmentBuffer accumulates audio for the segment currently being
// recognized. It tracks where the segment sits on the session's sample
// clock so emitted segments carry millisecond timestamps.
type SegmentBuffer struct {
	samples    []float32
	sampleRate int
	startPos   int64 // sample-clock position of samples[0]
	endPos     int64
}

// NewSegmentBuffer creates a buffer for audio at the given sample rate.
func NewSegmentBuffer(sampleRate int) *SegmentBuffer {
	return &SegmentBuffer{
		samples:    make([]float32, 0, sampleRate*10),
		sampleRate: sampleRate,
	}
}

// Append adds samples arriving at the given sample-clock position.
func (b *SegmentBuffer) Append(samples []float32, pos int64) {
	if len(b.samples) == 0 {
		b.startPos = pos
	}
	b.samples = append(b.samples, samples...)
	b.endPos = pos + int64(len(samples))
}

// Take returns a copy of the buffered segment with its start and end on
// the session clock, then clears the buffer.
func (b *SegmentBuffer) Take() (samples []float32, start, end time.Duration) {
	if len(b.samples) == 0 {
		return nil, 0, 0
	}
	samples = make([]float32, len(b.samples))
	copy(samples, b.samples)
	start = b.toDuration(b.startPos)
	end = b.toDuration(b.endPos)
	b.samples = b.samples[:0]
	return samples, start, end
}

// Peek returns the buffered samples without clearing, for partial
// transcription while the segment is still open.
func (b *SegmentBuffer) Peek() (samples []float32, start, end time.Duration) {
	if len(b.samples) == 0 {
		return nil, 0, 0
	}
	return b.samples, b.toDuration(b.startPos), b.toDuration(b.endPos)
}

// Clear discards the buffered segment.
func (b *SegmentBuffer) Clear() {
	b.samples = b.samples[:0]
}

// Duration returns the length of buffered audio.
func (b *SegmentBuffer) Duration() time.Duration {
	return b.toDuration(int64(len(b.samples)))
}

// Len returns the number of buffered samples.
func (b *SegmentBuffer) Len() int { return len(b.samples) }

func (b *SegmentBuffer) toDuration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(b.sampleRate)
}
