package asr

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/auralang/voxlate/audiocapture"
	"github.com/auralang/voxlate/internal/types"
)

// FrontendConfig wires a Frontend to its capture source and recognizer.
type FrontendConfig struct {
	Capture    *audiocapture.Capture
	Provider   Provider
	Punctuator Punctuator // nil means NopPunctuator
	Language   string     // expected source language code
	SampleRate int        // default 16000

	// UseVAD enables energy-based segmentation. Without it segments are
	// cut purely by MaxSegmentDuration.
	UseVAD bool
	VAD    VADConfig // zero value means DefaultVADConfig

	MaxSegmentDuration time.Duration // default 7s
	PartialInterval    time.Duration // cadence of non-final segments, default 1s

	// PreRoll is how much audio from just before a detected speech onset
	// is kept and prepended to the segment, so the attack of the first
	// word is not clipped. VAD mode only; default 300ms.
	PreRoll time.Duration
}

// Frontend drives the capture-to-text half of the pipeline: it consumes
// raw audio, segments it with VAD, transcribes each segment, and emits
// types.Segment values. Non-final segments appear while speech is still
// open; exactly one final segment closes each utterance.
type Frontend struct {
	cfg      FrontendConfig
	detector *Detector
	buffer   *SegmentBuffer
	preroll  *audiocapture.RingBuffer // recent non-speech audio, worker only

	audioCh chan []float32
	out     chan types.Segment
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool

	clock       int64 // session sample clock, worker goroutine only
	lastPartial time.Duration
}

// NewFrontend creates a frontend over the given capture and provider.
func NewFrontend(cfg FrontendConfig) (*Frontend, error) {
	if cfg.Capture == nil {
		return nil, errors.New("asr: capture required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("asr: provider required")
	}
	if cfg.Punctuator == nil {
		cfg.Punctuator = NopPunctuator{}
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.MaxSegmentDuration == 0 {
		cfg.MaxSegmentDuration = 7 * time.Second
	}
	if cfg.PartialInterval == 0 {
		cfg.PartialInterval = time.Second
	}
	if cfg.PreRoll <= 0 {
		cfg.PreRoll = 300 * time.Millisecond
	}

	vadCfg := cfg.VAD
	if vadCfg.SampleRate == 0 {
		vadCfg = DefaultVADConfig(cfg.SampleRate)
	}
	vadCfg.MaxSpeech = cfg.MaxSegmentDuration

	prerollSamples := int(cfg.PreRoll.Seconds() * float64(cfg.SampleRate))
	f := &Frontend{
		cfg:      cfg,
		detector: NewDetector(vadCfg),
		buffer:   NewSegmentBuffer(cfg.SampleRate),
		preroll:  audiocapture.NewRingBuffer(prerollSamples),
		audioCh:  make(chan []float32, 64),
		out:      make(chan types.Segment, 16),
	}

	cfg.Capture.OnAudio(f.enqueue)
	return f, nil
}

// Segments returns the channel of recognized segments.
func (f *Frontend) Segments() <-chan types.Segment { return f.out }

// Start begins capture and recognition.
func (f *Frontend) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return errors.New("asr: frontend already running")
	}

	if err := f.cfg.Capture.Start(); err != nil {
		return err
	}

	f.done = make(chan struct{})
	f.running = true
	f.wg.Add(1)
	go f.worker(f.done)
	return nil
}

// Stop halts capture and recognition. Safe to call when not running.
func (f *Frontend) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	close(f.done)
	f.mu.Unlock()

	err := f.cfg.Capture.Stop()
	f.wg.Wait()
	return err
}

// enqueue is the capture callback. It must not block the audio thread;
// if recognition falls behind, the oldest pending chunk is dropped.
func (f *Frontend) enqueue(samples []float32) {
	f.mu.Lock()
	running := f.running
	f.mu.Unlock()
	if !running {
		return
	}

	chunk := make([]float32, len(samples))
	copy(chunk, samples)

	select {
	case f.audioCh <- chunk:
	default:
		select {
		case <-f.audioCh:
			slog.Warn("recognition lagging, dropped audio chunk")
		default:
		}
		select {
		case f.audioCh <- chunk:
		default:
		}
	}
}

func (f *Frontend) worker(done chan struct{}) {
	defer f.wg.Done()
	for {
		select {
		case <-done:
			f.flush(done)
			return
		case samples := <-f.audioCh:
			f.process(samples, done)
		}
	}
}

func (f *Frontend) process(samples []float32, done chan struct{}) {
	pos := f.clock
	f.clock += int64(len(samples))

	if !f.cfg.UseVAD {
		f.buffer.Append(samples, pos)
		if f.buffer.Duration() >= f.cfg.MaxSegmentDuration {
			f.finalize(done)
		} else {
			f.maybePartial(done)
		}
		return
	}

	res := f.detector.Process(samples)
	if res.Event == VADSpeechStart {
		// Seed the segment with audio retained from just before the
		// onset; the detector confirms speech one chunk late.
		if pre := f.preroll.Read(f.preroll.Len()); len(pre) > 0 {
			f.buffer.Append(pre, pos-int64(len(pre)))
			f.preroll.Clear()
		}
	}
	if f.detector.InSpeech() || res.Event == VADSpeechEnd || res.Event == VADSpeechDrop {
		f.buffer.Append(samples, pos)
	} else {
		f.preroll.Write(samples)
	}

	switch res.Event {
	case VADSpeechEnd, VADMaxDuration:
		f.finalize(done)
	case VADSpeechDrop:
		f.buffer.Clear()
	default:
		if f.detector.InSpeech() {
			f.maybePartial(done)
		}
	}
}

// maybePartial emits a non-final segment when enough new audio has
// accumulated since the last one.
func (f *Frontend) maybePartial(done chan struct{}) {
	samples, start, end := f.buffer.Peek()
	if samples == nil || end-f.lastPartial < f.cfg.PartialInterval {
		return
	}
	f.lastPartial = end

	result, err := f.cfg.Provider.Transcribe(samples, f.cfg.Language)
	if err != nil {
		slog.Warn("partial transcription failed", "error", err)
		return
	}
	if strings.TrimSpace(result.Text) == "" {
		return
	}

	f.emit(done, types.Segment{
		Text:       result.Text,
		IsFinal:    false,
		StartTime:  start.Milliseconds(),
		EndTime:    end.Milliseconds(),
		Confidence: result.Confidence,
	})
}

// finalize transcribes and punctuates the buffered segment and emits it
// as final. Empty recognizer output produces no segment.
func (f *Frontend) finalize(done chan struct{}) {
	samples, start, end := f.buffer.Take()
	f.lastPartial = end
	if samples == nil {
		return
	}

	result, err := f.cfg.Provider.Transcribe(samples, f.cfg.Language)
	if err != nil {
		slog.Warn("transcription failed, segment skipped", "error", err, "duration", end-start)
		return
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return
	}

	punctuated, err := f.cfg.Punctuator.Punctuate(text)
	if err != nil {
		slog.Warn("punctuation failed, using raw text", "error", err)
		punctuated = text
	}

	f.emit(done, types.Segment{
		Text:       punctuated,
		IsFinal:    true,
		StartTime:  start.Milliseconds(),
		EndTime:    end.Milliseconds(),
		Confidence: result.Confidence,
	})
}

// flush finalizes any open segment when the frontend stops.
func (f *Frontend) flush(done chan struct{}) {
	if f.buffer.Len() > 0 {
		f.finalize(done)
	}
}

func (f *Frontend) emit(done chan struct{}, seg types.Segment) {
	select {
	case f.out <- seg:
	case <-done:
		// A final flush still tries a non-blocking delivery.
		select {
		case f.out <- seg:
		default:
		}
	}
}
