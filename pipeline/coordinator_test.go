package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/auralang/voxlate/internal/types"
	"github.com/auralang/voxlate/modelcache"
)

type fakeFrontend struct {
	mu       sync.Mutex
	segs     chan types.Segment
	startErr error
	started  int
	stopped  int
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{segs: make(chan types.Segment, 16)}
}

func (f *fakeFrontend) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeFrontend) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeFrontend) Segments() <-chan types.Segment { return f.segs }

func (f *fakeFrontend) push(text string, isFinal bool) {
	f.segs <- types.Segment{Text: text, IsFinal: isFinal}
}

// finalOnlyTranslator translates finals and holds partials, mimicking
// the chunking strategy with a large chunk size.
type finalOnlyTranslator struct {
	mu    sync.Mutex
	errOn string
	calls []string
}

func (ft *finalOnlyTranslator) Translate(ctx context.Context, text string, isFinal bool) (string, bool, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.calls = append(ft.calls, text)
	if text == ft.errOn {
		return "", false, errors.New("translator crashed")
	}
	if !isFinal {
		return "", false, nil
	}
	return "T:" + text, true, nil
}

func (ft *finalOnlyTranslator) Reset()       {}
func (ft *finalOnlyTranslator) Close() error { return nil }

func (ft *finalOnlyTranslator) callCount() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.calls)
}

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
}

func (fs *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.texts = append(fs.texts, text)
	return []byte("audio:" + text), nil
}

func (fs *fakeSynth) Close() error { return nil }

func (fs *fakeSynth) synthesized() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.texts...)
}

type fakePlayback struct {
	mu       sync.Mutex
	enqueued []string
	starts   int
	stops    int
}

func (fp *fakePlayback) Start() {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.starts++
}

func (fp *fakePlayback) Stop() {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.stops++
}

func (fp *fakePlayback) Enqueue(audio []byte) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.enqueued = append(fp.enqueued, string(audio))
	return nil
}

func (fp *fakePlayback) clips() []string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]string(nil), fp.enqueued...)
}

// seededModels returns a cache whose zh-en model set is already ready,
// so Initialize never touches the network.
func seededModels(t *testing.T) *modelcache.Cache {
	t.Helper()
	dir := t.TempDir()

	records := make(map[string]*modelcache.Record)
	for _, id := range []string{"opus-mt-zh-en", "paraformer-zh-streaming"} {
		artifact := filepath.Join(dir, id)
		if err := os.MkdirAll(artifact, 0755); err != nil {
			t.Fatal(err)
		}
		records[id] = &modelcache.Record{
			ModelID:   id,
			State:     modelcache.StateReady,
			LocalPath: artifact,
		}
	}
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model_status.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	c, err := modelcache.New(dir)
	if err != nil {
		t.Fatalf("modelcache.New: %v", err)
	}
	return c
}

type testHarness struct {
	coord    *Coordinator
	frontend *fakeFrontend
	trans    *finalOnlyTranslator
	synth    *fakeSynth
	playback *fakePlayback
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		frontend: newFakeFrontend(),
		trans:    &finalOnlyTranslator{},
		synth:    &fakeSynth{},
		playback: &fakePlayback{},
	}
	h.coord = New(Config{
		Models: seededModels(t),
		NewFrontend: func(ctx context.Context, pair types.LanguagePair) (Frontend, error) {
			return h.frontend, nil
		},
		NewTranslator: func(ctx context.Context, pair types.LanguagePair) (Translator, error) {
			return h.trans, nil
		},
		NewSynthesizer: func(pair types.LanguagePair) (Synthesizer, error) {
			return h.synth, nil
		},
		Playback: h.playback,
	})
	return h
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", desc)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartBeforeInitialize(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start = %v, want ErrInvalidState", err)
	}
	if got := h.coord.State(); got != StateUninitialized {
		t.Errorf("state = %s, want unchanged %s", got, StateUninitialized)
	}
}

func TestInitializeUnsupportedPair(t *testing.T) {
	h := newHarness(t)
	err := h.coord.Initialize(context.Background(), "fr", "de")
	if !errors.Is(err, ErrUnsupportedLanguagePair) {
		t.Errorf("Initialize = %v, want ErrUnsupportedLanguagePair", err)
	}
	if got := h.coord.State(); got != StateFailed {
		t.Errorf("state = %s, want %s", got, StateFailed)
	}
}

func TestInitializeRemoteBackendSkipsTranslationModel(t *testing.T) {
	h := newHarness(t)
	h.coord.cfg.RemoteTranslation = true

	// fr-de has no local translation artifact; a remote backend must
	// initialize anyway, without touching the model cache.
	if err := h.coord.Initialize(context.Background(), "fr", "de"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := h.coord.State(); got != StateReady {
		t.Errorf("state = %s, want ready", got)
	}
}

func TestFailedStateIsStickyUntilReinitialize(t *testing.T) {
	h := newHarness(t)
	bad := errors.New("model load blew up")
	h.coord.cfg.NewTranslator = func(ctx context.Context, pair types.LanguagePair) (Translator, error) {
		return nil, bad
	}

	if err := h.coord.Initialize(context.Background(), "zh", "en"); !errors.Is(err, bad) {
		t.Fatalf("Initialize = %v, want wrapped factory error", err)
	}
	if got := h.coord.State(); got != StateFailed {
		t.Fatalf("state = %s, want failed", got)
	}
	if err := h.coord.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start from failed = %v, want ErrInvalidState", err)
	}

	// Recovery path: a working Initialize brings it back to ready.
	h.coord.cfg.NewTranslator = func(ctx context.Context, pair types.LanguagePair) (Translator, error) {
		return h.trans, nil
	}
	if err := h.coord.Initialize(context.Background(), "zh", "en"); err != nil {
		t.Fatalf("re-Initialize: %v", err)
	}
	if got := h.coord.State(); got != StateReady {
		t.Errorf("state = %s, want ready", got)
	}
}

func TestExactlyOneSynthesisPerFinalSegment(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.Initialize(context.Background(), "zh", "en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var texts, translations []string
	var cbMu sync.Mutex
	h.coord.AddTextCallback(func(text string, isFinal bool) {
		cbMu.Lock()
		texts = append(texts, fmt.Sprintf("%s/%v", text, isFinal))
		cbMu.Unlock()
	})
	h.coord.AddTranslationCallback(func(text string, isFinal bool) {
		cbMu.Lock()
		translations = append(translations, text)
		cbMu.Unlock()
	})

	if err := h.coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.coord.State(); got != StateRunning {
		t.Fatalf("state = %s, want running", got)
	}

	h.frontend.push("你好", false)
	h.frontend.push("你好世界", true)

	waitFor(t, "synthesis", func() bool { return len(h.synth.synthesized()) == 1 })

	if got := h.synth.synthesized(); got[0] != "T:你好世界" {
		t.Errorf("synthesized %q, want final translation", got[0])
	}
	if got := h.playback.clips(); len(got) != 1 || got[0] != "audio:T:你好世界" {
		t.Errorf("playback clips = %v", got)
	}
	if h.trans.callCount() != 2 {
		t.Errorf("translator saw %d segments, want 2", h.trans.callCount())
	}

	cbMu.Lock()
	if len(texts) != 2 || texts[0] != "你好/false" || texts[1] != "你好世界/true" {
		t.Errorf("text callbacks = %v", texts)
	}
	if len(translations) != 1 || translations[0] != "T:你好世界" {
		t.Errorf("translation callbacks = %v", translations)
	}
	cbMu.Unlock()

	if got := h.coord.TranscriptText(); got != "你好世界" {
		t.Errorf("TranscriptText = %q, want final text only", got)
	}
	if entries := h.coord.Transcript(); len(entries) != 1 || entries[0].Translation != "T:你好世界" {
		t.Errorf("transcript entries = %+v", entries)
	}

	if err := h.coord.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := h.coord.State(); got != StateReady {
		t.Errorf("state after stop = %s, want ready", got)
	}
	// Stop is idempotent.
	if err := h.coord.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

// blockingTranslator stalls inside Translate until released, and
// reports the context error if cancellation arrives first.
type blockingTranslator struct {
	started chan struct{}
	release chan struct{}
}

func (bt *blockingTranslator) Translate(ctx context.Context, text string, isFinal bool) (string, bool, error) {
	bt.started <- struct{}{}
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-bt.release:
	}
	return "T:" + text, true, nil
}

func (bt *blockingTranslator) Reset()       {}
func (bt *blockingTranslator) Close() error { return nil }

func TestStopCompletesInFlightSegment(t *testing.T) {
	h := newHarness(t)
	bt := &blockingTranslator{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	h.coord.cfg.NewTranslator = func(ctx context.Context, pair types.LanguagePair) (Translator, error) {
		return bt, nil
	}

	if err := h.coord.Initialize(context.Background(), "zh", "en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.frontend.push("你好世界", true)
	<-bt.started

	stopDone := make(chan error, 1)
	go func() { stopDone <- h.coord.Stop() }()

	// Let Stop cancel the loop before the translator is released; the
	// in-flight segment must still see a live context.
	time.Sleep(20 * time.Millisecond)
	close(bt.release)

	if err := <-stopDone; err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := h.synth.synthesized(); len(got) != 1 || got[0] != "T:你好世界" {
		t.Errorf("synthesized = %v, want the in-flight segment completed", got)
	}
	if got := h.playback.clips(); len(got) != 1 {
		t.Errorf("playback clips = %v, want 1", got)
	}
	status := h.coord.Status()
	if status.Session.SkippedSegments != 0 {
		t.Errorf("SkippedSegments = %d, want 0", status.Session.SkippedSegments)
	}
	if got := h.coord.State(); got != StateReady {
		t.Errorf("state after stop = %s, want ready", got)
	}
}

func TestTranslatorFailureDoesNotBlockNextSegment(t *testing.T) {
	h := newHarness(t)
	h.trans.errOn = "坏句子"
	if err := h.coord.Initialize(context.Background(), "zh", "en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var cbErrs []error
	var cbMu sync.Mutex
	h.coord.AddErrorCallback(func(err error) {
		cbMu.Lock()
		cbErrs = append(cbErrs, err)
		cbMu.Unlock()
	})

	if err := h.coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.coord.Stop()

	h.frontend.push("坏句子", true)
	h.frontend.push("好句子", true)

	waitFor(t, "second segment synthesis", func() bool {
		return len(h.synth.synthesized()) == 1
	})

	if got := h.synth.synthesized(); got[0] != "T:好句子" {
		t.Errorf("synthesized %q", got[0])
	}
	if got := h.coord.State(); got != StateRunning {
		t.Errorf("state = %s, transient failure must not stop the session", got)
	}

	cbMu.Lock()
	defer cbMu.Unlock()
	if len(cbErrs) != 1 {
		t.Errorf("error callbacks = %v, want one transient report", cbErrs)
	}

	status := h.coord.Status()
	if status.Session.SkippedSegments != 1 {
		t.Errorf("SkippedSegments = %d, want 1", status.Session.SkippedSegments)
	}
}

func TestCallbackPanicIsIsolated(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.Initialize(context.Background(), "zh", "en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h.coord.AddTextCallback(func(text string, isFinal bool) {
		panic("observer bug")
	})

	if err := h.coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.coord.Stop()

	h.frontend.push("你好世界", true)
	waitFor(t, "synthesis despite panicking callback", func() bool {
		return len(h.synth.synthesized()) == 1
	})
}

func TestStopReturnsToReadyAndRestarts(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.Initialize(context.Background(), "zh", "en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := h.coord.Start(); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		if err := h.coord.Stop(); err != nil {
			t.Fatalf("Stop %d: %v", i, err)
		}
	}

	h.frontend.mu.Lock()
	starts, stops := h.frontend.started, h.frontend.stopped
	h.frontend.mu.Unlock()
	if starts != 2 || stops != 2 {
		t.Errorf("frontend starts/stops = %d/%d, want 2/2", starts, stops)
	}
}

func TestStartDeviceFailureTransitionsToFailed(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.Initialize(context.Background(), "zh", "en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h.frontend.startErr = fmt.Errorf("%w: mic busy", ErrDeviceUnavailable)

	err := h.coord.Start()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Start = %v, want ErrDeviceUnavailable", err)
	}
	if got := h.coord.State(); got != StateFailed {
		t.Errorf("state = %s, want failed", got)
	}
}

func TestInitializeWhileRunningRejected(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.Initialize(context.Background(), "zh", "en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.coord.Stop()

	if err := h.coord.Initialize(context.Background(), "zh", "ja"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Initialize while running = %v, want ErrInvalidState", err)
	}
}

func TestStatusSnapshot(t *testing.T) {
	h := newHarness(t)
	if err := h.coord.Initialize(context.Background(), "zh", "en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.coord.Stop()

	h.frontend.push("你好世界", true)
	waitFor(t, "segment processed", func() bool {
		return h.coord.Status().Session.SynthesisCount == 1
	})

	status := h.coord.Status()
	if status.State != string(StateRunning) {
		t.Errorf("State = %q", status.State)
	}
	if status.SourceLang != "zh" || status.TargetLang != "en" {
		t.Errorf("pair = %s-%s", status.SourceLang, status.TargetLang)
	}
	if status.Session.SessionID == "" {
		t.Error("missing session id")
	}
	if status.Session.TranslationCount != 1 || status.Session.SynthesisCount != 1 {
		t.Errorf("counts = %+v", status.Session)
	}
}
