package asr

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/auralang/voxlate/audiocapture"
	"github.com/auralang/voxlate/internal/types"
)

// manualSource lets the test push audio through the capture path.
type manualSource struct {
	mu       sync.Mutex
	callback func([]float32)
}

func (m *manualSource) Start(sampleRate int, callback func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = callback
	return nil
}

func (m *manualSource) Stop() error { return nil }

func (m *manualSource) push(samples []float32) {
	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

// scriptedProvider returns a fixed text for every transcription.
type scriptedProvider struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (p *scriptedProvider) Transcribe(audio []float32, language string) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Result{Text: p.text, Language: language, Confidence: 0.9}, nil
}

func (p *scriptedProvider) Close() error { return nil }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type suffixPunctuator struct{ suffix string }

func (s suffixPunctuator) Punctuate(text string) (string, error) {
	return text + s.suffix, nil
}

func newTestFrontend(t *testing.T, cfg FrontendConfig, src *manualSource) *Frontend {
	t.Helper()
	capture, err := audiocapture.New(audiocapture.Config{Source: src, SampleRate: 16000})
	if err != nil {
		t.Fatalf("audiocapture.New: %v", err)
	}
	cfg.Capture = capture
	f, err := NewFrontend(cfg)
	if err != nil {
		t.Fatalf("NewFrontend: %v", err)
	}
	return f
}

func collectSegments(t *testing.T, f *Frontend, n int) []types.Segment {
	t.Helper()
	var got []types.Segment
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case seg := <-f.Segments():
			got = append(got, seg)
		case <-timeout:
			t.Fatalf("timed out with %d of %d segments", len(got), n)
		}
	}
	return got
}

func TestFrontendDurationSegmentation(t *testing.T) {
	src := &manualSource{}
	f := newTestFrontend(t, FrontendConfig{
		Provider:           &scriptedProvider{text: "hello world"},
		Punctuator:         suffixPunctuator{"."},
		MaxSegmentDuration: 500 * time.Millisecond,
		PartialInterval:    200 * time.Millisecond,
	}, src)

	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	// Without VAD every chunk accumulates; 500ms of audio forces a
	// final segment, with partials every 200ms along the way.
	for i := 0; i < 5; i++ {
		src.push(makeSpeech(chunk100ms, 0.05))
	}

	segs := collectSegments(t, f, 3)
	if segs[0].IsFinal || segs[1].IsFinal {
		t.Errorf("first two segments should be partial: %+v", segs[:2])
	}
	final := segs[2]
	if !final.IsFinal {
		t.Fatalf("third segment not final: %+v", final)
	}
	if final.Text != "hello world." {
		t.Errorf("final text = %q, want punctuated text", final.Text)
	}
	if final.StartTime != 0 || final.EndTime != 500 {
		t.Errorf("final bounds = [%d, %d]ms, want [0, 500]", final.StartTime, final.EndTime)
	}
	if segs[0].Text != "hello world" {
		t.Errorf("partial text = %q, want unpunctuated text", segs[0].Text)
	}
}

func TestFrontendVADSegmentation(t *testing.T) {
	src := &manualSource{}
	f := newTestFrontend(t, FrontendConfig{
		Provider: &scriptedProvider{text: "你好世界"},
		UseVAD:   true,
		VAD: VADConfig{
			SampleRate:  16000,
			Threshold:   0.02,
			MinSpeech:   300 * time.Millisecond,
			SilenceHold: 400 * time.Millisecond,
		},
		PartialInterval: time.Minute, // suppress partials for this test
	}, src)

	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	for i := 0; i < 5; i++ {
		src.push(makeSpeech(chunk100ms, 0.05))
	}
	for i := 0; i < 6; i++ {
		src.push(makeSilence(chunk100ms))
	}

	segs := collectSegments(t, f, 1)
	if !segs[0].IsFinal {
		t.Errorf("segment not final: %+v", segs[0])
	}
	if segs[0].Text != "你好世界" {
		t.Errorf("text = %q", segs[0].Text)
	}
}

func TestFrontendVADPreRollExtendsSegmentStart(t *testing.T) {
	src := &manualSource{}
	f := newTestFrontend(t, FrontendConfig{
		Provider: &scriptedProvider{text: "你好"},
		UseVAD:   true,
		VAD: VADConfig{
			SampleRate:  16000,
			Threshold:   0.02,
			MinSpeech:   300 * time.Millisecond,
			SilenceHold: 400 * time.Millisecond,
		},
		PreRoll:         300 * time.Millisecond,
		PartialInterval: time.Minute,
	}, src)

	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	// 300ms of silence, then speech: the detected onset is at 300ms,
	// but the retained pre-roll pulls the segment back to 0.
	for i := 0; i < 3; i++ {
		src.push(makeSilence(chunk100ms))
	}
	for i := 0; i < 5; i++ {
		src.push(makeSpeech(chunk100ms, 0.05))
	}
	for i := 0; i < 5; i++ {
		src.push(makeSilence(chunk100ms))
	}

	segs := collectSegments(t, f, 1)
	if !segs[0].IsFinal {
		t.Fatalf("segment not final: %+v", segs[0])
	}
	if segs[0].StartTime != 0 || segs[0].EndTime != 1300 {
		t.Errorf("bounds = [%d, %d]ms, want [0, 1300]", segs[0].StartTime, segs[0].EndTime)
	}
}

func TestFrontendSkipsEmptyTranscription(t *testing.T) {
	src := &manualSource{}
	provider := &scriptedProvider{text: "   "}
	f := newTestFrontend(t, FrontendConfig{
		Provider:           provider,
		MaxSegmentDuration: 200 * time.Millisecond,
		PartialInterval:    time.Minute,
	}, src)

	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	for i := 0; i < 4; i++ {
		src.push(makeSpeech(chunk100ms, 0.05))
	}

	deadline := time.After(500 * time.Millisecond)
	for provider.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("provider never invoked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case seg := <-f.Segments():
		t.Errorf("unexpected segment for blank transcription: %+v", seg)
	default:
	}
}

func TestFrontendTranscriptionErrorSkipsSegment(t *testing.T) {
	src := &manualSource{}
	provider := &scriptedProvider{err: errors.New("runner crashed")}
	f := newTestFrontend(t, FrontendConfig{
		Provider:           provider,
		MaxSegmentDuration: 200 * time.Millisecond,
		PartialInterval:    time.Minute,
	}, src)

	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	for i := 0; i < 2; i++ {
		src.push(makeSpeech(chunk100ms, 0.05))
	}

	deadline := time.After(500 * time.Millisecond)
	for provider.callCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("provider never invoked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case seg := <-f.Segments():
		t.Errorf("unexpected segment after provider error: %+v", seg)
	default:
	}
}

func TestFrontendDoubleStart(t *testing.T) {
	src := &manualSource{}
	f := newTestFrontend(t, FrontendConfig{Provider: &scriptedProvider{text: "x"}}, src)

	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	if err := f.Start(); err == nil {
		t.Error("second Start succeeded")
	}
}

func TestFrontendStopFlushesOpenSegment(t *testing.T) {
	src := &manualSource{}
	f := newTestFrontend(t, FrontendConfig{
		Provider:           &scriptedProvider{text: "tail"},
		MaxSegmentDuration: time.Minute,
		PartialInterval:    time.Minute,
	}, src)

	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.push(makeSpeech(chunk100ms, 0.05))
	src.push(makeSpeech(chunk100ms, 0.05))

	// Give the worker a moment to drain the audio channel.
	time.Sleep(100 * time.Millisecond)
	if err := f.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case seg := <-f.Segments():
		if !seg.IsFinal || seg.Text != "tail" {
			t.Errorf("flushed segment = %+v", seg)
		}
	default:
		t.Error("no segment flushed on stop")
	}
}
