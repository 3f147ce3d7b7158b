// Package pipeline coordinates the speech translation loop: it owns the
// lifecycle of the audio frontend, translator, and synthesizer, wires
// segments through them, and exposes callbacks to host applications.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auralang/voxlate/internal/types"
	"github.com/auralang/voxlate/modelcache"
)

// State is the coordinator's lifecycle phase.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateRunning       State = "running"
	StateFailed        State = "failed"
)

// Frontend produces recognized text segments from live audio.
type Frontend interface {
	Start() error
	Stop() error
	Segments() <-chan types.Segment
}

// Translator converts one segment's text. ok=false means the text is
// still accumulating and nothing should be emitted yet.
type Translator interface {
	Translate(ctx context.Context, text string, isFinal bool) (out string, ok bool, err error)
	Reset()
	Close() error
}

// Synthesizer converts translated text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Close() error
}

// Playback serializes synthesized audio so clips never overlap.
type Playback interface {
	Start()
	Stop()
	Enqueue(audio []byte) error
}

// Config wires the coordinator to its model cache and collaborator
// factories. Factories run during Initialize, after every required
// model is ready, so they may resolve artifact paths from Models.
type Config struct {
	Models         *modelcache.Cache
	UseVAD         bool
	UsePunctuation bool

	// RemoteTranslation marks a translator backend that needs no local
	// model artifact, so Initialize skips the translation download and
	// accepts any validated language pair.
	RemoteTranslation bool

	NewFrontend    func(ctx context.Context, pair types.LanguagePair) (Frontend, error)
	NewTranslator  func(ctx context.Context, pair types.LanguagePair) (Translator, error)
	NewSynthesizer func(pair types.LanguagePair) (Synthesizer, error)
	Playback       Playback
}

// Coordinator drives a translation session through its state machine:
// uninitialized → initializing → ready → running, stop returns to
// ready, and failed is sticky until the next Initialize.
type Coordinator struct {
	cfg Config

	mu         sync.Mutex
	state      State
	pair       types.LanguagePair
	frontend   Frontend
	translator Translator
	synth      Synthesizer

	loopCancel context.CancelFunc
	segCancel  context.CancelFunc
	loopDone   chan struct{}

	transcript *Transcript

	statsMu sync.Mutex
	stats   types.SessionStats

	cbMu           sync.Mutex
	textCBs        []func(text string, isFinal bool)
	translationCBs []func(text string, isFinal bool)
	errorCBs       []func(err error)
	statusCBs      []func(status types.PipelineStatus)
}

// New creates an uninitialized coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		state:      StateUninitialized,
		transcript: NewTranscript(0),
	}
}

// Initialize resolves the model set for the pair, downloads whatever is
// missing, and constructs the session collaborators. Legal from any
// state except running; a failed coordinator recovers only through a
// successful Initialize.
func (c *Coordinator) Initialize(ctx context.Context, source, target string) error {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot initialize while %s", ErrInvalidState, StateRunning)
	}
	c.closeCollaboratorsLocked()
	c.pair = types.LanguagePair{Source: source, Target: target}
	c.setStateLocked(StateInitializing)
	pair := c.pair
	c.mu.Unlock()

	if err := c.ensureModels(ctx, pair); err != nil {
		c.failWith(err)
		return err
	}

	frontend, err := c.cfg.NewFrontend(ctx, pair)
	if err != nil {
		err = fmt.Errorf("construct audio frontend: %w", err)
		c.failWith(err)
		return err
	}
	translator, err := c.cfg.NewTranslator(ctx, pair)
	if err != nil {
		err = fmt.Errorf("construct translator: %w", err)
		c.failWith(err)
		return err
	}
	synth, err := c.cfg.NewSynthesizer(pair)
	if err != nil {
		err = fmt.Errorf("construct synthesizer: %w", err)
		c.failWith(err)
		return err
	}

	c.mu.Lock()
	c.frontend = frontend
	c.translator = translator
	c.synth = synth
	c.setStateLocked(StateReady)
	c.mu.Unlock()

	slog.Info("pipeline initialized", "pair", pair.String())
	return nil
}

// ensureModels makes every required model ready, downloading as needed.
// Remote translation backends only need the recognition artifacts.
func (c *Coordinator) ensureModels(ctx context.Context, pair types.LanguagePair) error {
	var specs []modelcache.Spec
	if c.cfg.RemoteTranslation {
		specs = modelcache.RecognitionModels(pair, c.cfg.UseVAD, c.cfg.UsePunctuation)
	} else {
		var err error
		specs, err = modelcache.RequiredModels(pair, c.cfg.UseVAD, c.cfg.UsePunctuation)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedLanguagePair, pair.String())
		}
	}
	for _, spec := range specs {
		if err := c.cfg.Models.EnsureSpec(ctx, spec); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrModelUnavailable, spec.ID, err)
		}
	}
	return nil
}

// Start begins the streaming loop. Only legal from ready.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start requires %s, coordinator is %s", ErrInvalidState, StateReady, state)
	}

	c.resetStats()
	c.transcript.Reset()
	c.translator.Reset()
	if c.cfg.Playback != nil {
		c.cfg.Playback.Start()
	}

	if err := c.frontend.Start(); err != nil {
		c.setStateLocked(StateFailed)
		c.mu.Unlock()
		if c.cfg.Playback != nil {
			c.cfg.Playback.Stop()
		}
		c.reportError(err)
		return err
	}

	// Two contexts: the loop context only gates the segment boundary,
	// while the segment context stays live through Stop so in-flight
	// translation and synthesis always run to completion.
	loopCtx, loopCancel := context.WithCancel(context.Background())
	segCtx, segCancel := context.WithCancel(context.Background())
	c.loopCancel = loopCancel
	c.segCancel = segCancel
	c.loopDone = make(chan struct{})
	frontend := c.frontend
	c.setStateLocked(StateRunning)
	c.mu.Unlock()

	go c.loop(loopCtx, segCtx, frontend)

	slog.Info("translation session started", "session", c.sessionID())
	return nil
}

// Stop signals the loop to finish after the in-flight segment, releases
// the capture device, and returns the coordinator to ready. Calling it
// when not running is a no-op.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	cancel := c.loopCancel
	segCancel := c.segCancel
	done := c.loopDone
	frontend := c.frontend
	c.mu.Unlock()

	cancel()
	err := frontend.Stop()
	<-done
	// The in-flight segment has completed; release its context now.
	segCancel()
	if c.cfg.Playback != nil {
		c.cfg.Playback.Stop()
	}

	c.statsMu.Lock()
	c.stats.Runtime = time.Since(c.stats.StartedAt)
	c.statsMu.Unlock()

	c.mu.Lock()
	c.setStateLocked(StateReady)
	c.mu.Unlock()

	slog.Info("translation session stopped", "session", c.sessionID())
	return err
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a point-in-time snapshot of the coordinator.
func (c *Coordinator) Status() types.PipelineStatus {
	c.mu.Lock()
	state := c.state
	pair := c.pair
	c.mu.Unlock()

	c.statsMu.Lock()
	stats := c.stats
	c.statsMu.Unlock()
	if state == StateRunning && !stats.StartedAt.IsZero() {
		stats.Runtime = time.Since(stats.StartedAt)
	}

	return types.PipelineStatus{
		State:      string(state),
		SourceLang: pair.Source,
		TargetLang: pair.Target,
		Session:    stats,
	}
}

// Transcript returns the utterances recorded so far this session.
func (c *Coordinator) Transcript() []TranscriptEntry {
	return c.transcript.Entries()
}

// TranscriptText returns the complete source-language transcript.
func (c *Coordinator) TranscriptText() string {
	return c.transcript.Text()
}

// Close stops any active session and releases all collaborators.
func (c *Coordinator) Close() error {
	err := c.Stop()
	c.mu.Lock()
	c.closeCollaboratorsLocked()
	c.setStateLocked(StateUninitialized)
	c.mu.Unlock()
	return err
}

// AddTextCallback registers an observer for recognized text. Callbacks
// run synchronously on the loop; panics are isolated per callback.
func (c *Coordinator) AddTextCallback(cb func(text string, isFinal bool)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.textCBs = append(c.textCBs, cb)
}

// AddTranslationCallback registers an observer for translated text.
func (c *Coordinator) AddTranslationCallback(cb func(text string, isFinal bool)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.translationCBs = append(c.translationCBs, cb)
}

// AddErrorCallback registers an observer for pipeline errors, including
// transient per-segment failures.
func (c *Coordinator) AddErrorCallback(cb func(err error)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.errorCBs = append(c.errorCBs, cb)
}

// AddStatusCallback registers an observer for state transitions.
func (c *Coordinator) AddStatusCallback(cb func(status types.PipelineStatus)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.statusCBs = append(c.statusCBs, cb)
}

// loop consumes segments until cancelled. Cancellation is observed at
// segment boundaries only: segments run under segCtx, which Stop does
// not cancel, so the in-flight segment always completes.
func (c *Coordinator) loop(ctx, segCtx context.Context, frontend Frontend) {
	defer close(c.loopDone)
	for {
		// Check the boundary first so a pending segment never races a
		// stop request.
		select {
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-frontend.Segments():
			if !ok {
				return
			}
			c.handleSegment(segCtx, seg)
		}
	}
}

func (c *Coordinator) handleSegment(ctx context.Context, seg types.Segment) {
	c.statsMu.Lock()
	c.stats.SegmentCount++
	if seg.IsFinal {
		c.stats.TotalSourceLength += len([]rune(seg.Text))
	}
	c.statsMu.Unlock()
	if seg.IsFinal {
		c.transcript.AddSource(seg.Text, seg.StartTime, seg.EndTime)
	}

	c.fireText(seg.Text, seg.IsFinal)

	translated, ok, err := c.translator.Translate(ctx, seg.Text, seg.IsFinal)
	if err != nil {
		slog.Warn("segment translation failed, skipping",
			"error", err, "text", seg.Text, "isFinal", seg.IsFinal)
		c.markSkipped()
		c.reportError(fmt.Errorf("translate segment %q: %w", seg.Text, err))
		return
	}
	if !ok {
		return
	}

	c.statsMu.Lock()
	c.stats.TranslationCount++
	c.statsMu.Unlock()
	if seg.IsFinal {
		c.transcript.AddTranslation(translated)
	}
	c.fireTranslation(translated, seg.IsFinal)

	// Only final segments are spoken, and each exactly once.
	if !seg.IsFinal {
		return
	}

	audio, err := c.synth.Synthesize(ctx, translated)
	if err != nil {
		slog.Warn("segment synthesis failed, skipping", "error", err, "text", translated)
		c.markSkipped()
		c.reportError(fmt.Errorf("synthesize %q: %w", translated, err))
		return
	}

	if c.cfg.Playback != nil && len(audio) > 0 {
		if err := c.cfg.Playback.Enqueue(audio); err != nil {
			slog.Warn("playback enqueue failed", "error", err)
			c.reportError(err)
			return
		}
	}
	c.statsMu.Lock()
	c.stats.SynthesisCount++
	c.statsMu.Unlock()
}

func (c *Coordinator) resetStats() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = types.SessionStats{
		SessionID:  uuid.NewString(),
		SourceLang: c.pair.Source,
		TargetLang: c.pair.Target,
		StartedAt:  time.Now(),
	}
}

func (c *Coordinator) markSkipped() {
	c.statsMu.Lock()
	c.stats.SkippedSegments++
	c.statsMu.Unlock()
}

func (c *Coordinator) sessionID() string {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats.SessionID
}

// failWith records an unrecoverable error and transitions to failed.
func (c *Coordinator) failWith(err error) {
	c.mu.Lock()
	c.setStateLocked(StateFailed)
	c.mu.Unlock()
	slog.Error("pipeline failed", "error", err)
	c.reportError(err)
}

// setStateLocked transitions state and notifies status observers.
// Caller holds c.mu.
func (c *Coordinator) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	status := types.PipelineStatus{
		State:      string(s),
		SourceLang: c.pair.Source,
		TargetLang: c.pair.Target,
	}
	c.cbMu.Lock()
	cbs := slices.Clone(c.statusCBs)
	c.cbMu.Unlock()
	for _, cb := range cbs {
		invokeStatus(cb, status)
	}
}

func (c *Coordinator) closeCollaboratorsLocked() {
	if c.translator != nil {
		c.translator.Close()
		c.translator = nil
	}
	if c.synth != nil {
		c.synth.Close()
		c.synth = nil
	}
	c.frontend = nil
}

func (c *Coordinator) fireText(text string, isFinal bool) {
	c.cbMu.Lock()
	cbs := slices.Clone(c.textCBs)
	c.cbMu.Unlock()
	for _, cb := range cbs {
		invokeText(cb, text, isFinal)
	}
}

func (c *Coordinator) fireTranslation(text string, isFinal bool) {
	c.cbMu.Lock()
	cbs := slices.Clone(c.translationCBs)
	c.cbMu.Unlock()
	for _, cb := range cbs {
		invokeText(cb, text, isFinal)
	}
}

func (c *Coordinator) reportError(err error) {
	c.cbMu.Lock()
	cbs := slices.Clone(c.errorCBs)
	c.cbMu.Unlock()
	for _, cb := range cbs {
		invokeError(cb, err)
	}
}

// Callback invocations are isolated: a panicking observer is logged and
// never takes down the loop.

func invokeText(cb func(string, bool), text string, isFinal bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("text callback panicked", "panic", r)
		}
	}()
	cb(text, isFinal)
}

func invokeError(cb func(error), err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("error callback panicked", "panic", r)
		}
	}()
	cb(err)
}

func invokeStatus(cb func(types.PipelineStatus), status types.PipelineStatus) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("status callback panicked", "panic", r)
		}
	}()
	cb(status)
}
