package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when the playback backlog is at capacity.
var ErrQueueFull = errors.New("playback queue full")

// Queue serializes playback: clips play strictly in enqueue order and
// never overlap, no matter how fast synthesis runs ahead.
type Queue struct {
	player Player

	mu      sync.Mutex
	items   chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	running bool

	played int
}

// NewQueue creates a playback queue over the given player. capacity of
// zero selects a default backlog of 32 clips.
func NewQueue(player Player, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 32
	}
	return &Queue{
		player: player,
		items:  make(chan []byte, capacity),
	}
}

// Start launches the playback worker. Safe to call once per queue life.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.done = make(chan struct{})
	q.wg.Add(1)
	go q.worker(q.done)
}

// Stop halts playback after the current clip and discards the backlog.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()

	// Drain anything left behind.
	for {
		select {
		case <-q.items:
		default:
			return
		}
	}
}

// Enqueue adds a clip to the backlog. Empty clips are ignored.
func (q *Queue) Enqueue(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}
	select {
	case q.items <- audio:
		return nil
	default:
		return ErrQueueFull
	}
}

// Played returns how many clips have finished playing.
func (q *Queue) Played() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.played
}

func (q *Queue) worker(done chan struct{}) {
	defer q.wg.Done()
	for {
		select {
		case <-done:
			return
		case audio := <-q.items:
			ctx, cancel := contextForClip(done)
			err := q.player.Play(ctx, audio)
			cancel()
			if err != nil {
				slog.Warn("playback failed, clip skipped", "error", err, "bytes", len(audio))
				continue
			}
			q.mu.Lock()
			q.played++
			q.mu.Unlock()
		}
	}
}

// contextForClip cancels the clip's playback when the queue stops.
func contextForClip(done chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
