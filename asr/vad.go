package asr

import (
	"math"
	"time"
)

// VADEvent classifies what a Detector observed in a chunk of audio.
type VADEvent int

const (
	VADNone VADEvent = iota
	VADSpeechStart
	VADSpeechContinue
	VADSpeechEnd    // silence closed a segment of sufficient length
	VADSpeechDrop   // silence closed a segment too short to keep
	VADMaxDuration  // speech ran past the maximum segment duration
)

// VADResult reports the event for one processed chunk. Start and End are
// positions on the detector's sample clock and are populated for
// VADSpeechEnd and VADMaxDuration.
type VADResult struct {
	Event VADEvent
	Start time.Duration
	End   time.Duration
}

// VADConfig holds detector thresholds.
type VADConfig struct {
	SampleRate  int
	Threshold   float32       // RMS level above which a chunk counts as speech
	MinSpeech   time.Duration // segments shorter than this are dropped
	MaxSpeech   time.Duration // speech longer than this is force-segmented
	SilenceHold time.Duration // silence needed to close a segment
}

// DefaultVADConfig returns thresholds tuned for 16 kHz microphone audio.
func DefaultVADConfig(sampleRate int) VADConfig {
	return VADConfig{
		SampleRate:  sampleRate,
		Threshold:   0.02,
		MinSpeech:   300 * time.Millisecond,
		MaxSpeech:   7 * time.Second,
		SilenceHold: 400 * time.Millisecond,
	}
}

// Detector is an energy-based voice activity detector. Unlike wall-clock
// detectors it runs on a sample clock, so processing a recorded file
// faster than real time yields the same segmentation as live capture.
type Detector struct {
	cfg VADConfig

	pos         int64 // samples processed so far
	inSpeech    bool
	speechStart int64
	lastSpeech  int64
}

// NewDetector creates a detector with the given configuration.
func NewDetector(cfg VADConfig) *Detector {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &Detector{cfg: cfg}
}

// Process advances the sample clock by one chunk and reports the event.
func (d *Detector) Process(samples []float32) VADResult {
	chunkStart := d.pos
	d.pos += int64(len(samples))
	now := d.pos

	isSpeech := RMS(samples) > d.cfg.Threshold
	res := VADResult{Event: VADNone}

	if isSpeech {
		if !d.inSpeech {
			d.inSpeech = true
			d.speechStart = chunkStart
			res.Event = VADSpeechStart
		} else {
			res.Event = VADSpeechContinue
		}
		d.lastSpeech = now
	}

	if !d.inSpeech {
		return res
	}

	speechDur := d.toDuration(now - d.speechStart)
	silenceDur := d.toDuration(now - d.lastSpeech)

	switch {
	case silenceDur > d.cfg.SilenceHold:
		d.inSpeech = false
		if speechDur-silenceDur > d.cfg.MinSpeech {
			res.Event = VADSpeechEnd
			res.Start = d.toDuration(d.speechStart)
			res.End = d.toDuration(d.lastSpeech)
		} else {
			res.Event = VADSpeechDrop
		}
	case speechDur >= d.cfg.MaxSpeech:
		res.Event = VADMaxDuration
		res.Start = d.toDuration(d.speechStart)
		res.End = d.toDuration(now)
		// Continuous speech keeps going; the next segment starts here.
		d.speechStart = now
	}

	return res
}

// InSpeech reports whether the detector is inside a speech segment.
func (d *Detector) InSpeech() bool { return d.inSpeech }

// Reset clears detector state without rewinding the sample clock.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechStart = 0
	d.lastSpeech = 0
}

func (d *Detector) toDuration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(d.cfg.SampleRate)
}

// RMS calculates the root mean square of audio samples.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
