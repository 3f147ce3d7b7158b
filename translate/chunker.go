package translate

import (
	"regexp"
	"strings"
)

const (
	// DefaultChunkSize is the character count that triggers translation
	// of a still-open segment.
	DefaultChunkSize = 128
	// DefaultOverlap is how many trailing characters carry over as
	// context for the next incremental chunk.
	DefaultOverlap = 32
)

var (
	sentenceEnd      = regexp.MustCompile(`[.!?。！？]`)
	sentenceEndFinal = regexp.MustCompile(`[.!?。！？]$`)
)

// Chunker implements incremental (simultaneous) translation chunking.
// Partial recognizer text is held back until it is long enough or
// reaches a sentence boundary; successive chunks overlap so the model
// keeps local context. Lengths are measured in runes, not bytes, so CJK
// text chunks the same way as Latin text.
type Chunker struct {
	chunkSize int
	overlap   int
	context   string
}

// NewChunker creates a chunker; zero values select the defaults.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// ShouldTranslate reports whether text warrants a translation pass now.
// Final text always does; open text only once it is long enough or
// contains a sentence-ending mark.
func (c *Chunker) ShouldTranslate(text string, isFinal bool) bool {
	if isFinal {
		return true
	}
	if len([]rune(text)) >= c.chunkSize {
		return true
	}
	return sentenceEnd.MatchString(text)
}

// Prepare returns the chunk to hand to the translator, or ok=false when
// the text should keep accumulating. Complete sentences and final text
// pass through whole and reset the carried context; open text is
// prefixed with the previous overlap and truncated near the chunk size.
func (c *Chunker) Prepare(text string, isFinal bool) (chunk string, ok bool) {
	if !c.ShouldTranslate(text, isFinal) {
		return "", false
	}

	if isFinal || sentenceEndFinal.MatchString(strings.TrimSpace(text)) {
		c.context = ""
		return text, true
	}

	combined := c.context + text
	runes := []rune(combined)
	if len(runes) > c.chunkSize+c.overlap {
		cutoff := c.chunkSize
		// Prefer a space near the cutoff so words stay whole.
		if idx := lastSpaceBefore(runes, cutoff); idx > 0 && idx > cutoff-20 {
			cutoff = idx
		}
		runes = runes[cutoff:]
		combined = string(runes)
	}

	if len(runes) > c.overlap {
		c.context = string(runes[len(runes)-c.overlap:])
	} else {
		c.context = combined
	}
	return combined, true
}

// Reset clears the carried context.
func (c *Chunker) Reset() {
	c.context = ""
}

func lastSpaceBefore(runes []rune, limit int) int {
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := limit - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}
