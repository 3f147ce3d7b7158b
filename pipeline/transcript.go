package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTranscriptMergeGap is the pause below which consecutive final
// segments are treated as one utterance.
const DefaultTranscriptMergeGap = 2 * time.Second

// TranscriptEntry is one utterance of a session transcript.
type TranscriptEntry struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Translation string `json:"translation"`
	StartMS     int64  `json:"startMs"`
	EndMS       int64  `json:"endMs"`
}

// Transcript accumulates the final segments of a session. Segments
// separated by less than the merge gap extend the previous entry, so a
// breath mid-sentence does not fragment the record.
type Transcript struct {
	mu      sync.Mutex
	gapMS   int64
	entries []TranscriptEntry
	nextID  int
}

// NewTranscript creates an empty transcript. gap <= 0 uses the default.
func NewTranscript(gap time.Duration) *Transcript {
	if gap <= 0 {
		gap = DefaultTranscriptMergeGap
	}
	return &Transcript{gapMS: gap.Milliseconds()}
}

// AddSource records a final recognized segment, merging it into the
// previous entry when the pause between them is under the merge gap.
// It returns the ID of the entry the segment landed in.
func (t *Transcript) AddSource(text string, startMS, endMS int64) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.entries); n > 0 {
		last := &t.entries[n-1]
		if startMS-last.EndMS < t.gapMS {
			last.Source = joinUtterance(last.Source, text)
			last.EndMS = endMS
			return last.ID
		}
	}

	t.nextID++
	entry := TranscriptEntry{
		ID:      fmt.Sprintf("seg-%d", t.nextID),
		Source:  text,
		StartMS: startMS,
		EndMS:   endMS,
	}
	t.entries = append(t.entries, entry)
	return entry.ID
}

// AddTranslation attaches translated text to the most recent entry.
func (t *Transcript) AddTranslation(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) == 0 {
		return
	}
	last := &t.entries[len(t.entries)-1]
	last.Translation = joinUtterance(last.Translation, text)
}

// Entries returns a copy of the transcript so far.
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TranscriptEntry(nil), t.entries...)
}

// Text returns the complete source-language transcript.
func (t *Transcript) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts := make([]string, len(t.entries))
	for i, e := range t.entries {
		parts[i] = e.Source
	}
	return strings.Join(parts, " ")
}

// Len returns the number of utterances recorded.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Reset clears the transcript for a new session.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.nextID = 0
}

func joinUtterance(existing, text string) string {
	if existing == "" {
		return text
	}
	return existing + " " + text
}
