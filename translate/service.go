package translate

import (
	"context"
	"strings"
	"sync"

	"github.com/auralang/voxlate/internal/types"
)

// Service ties a Translator to the chunking strategy for one language
// pair. Partial recognizer text flows through the chunker and the
// incremental diff so listeners see only new translated material;
// final text always translates whole.
type Service struct {
	translator Translator
	pair       types.LanguagePair

	mu             sync.Mutex
	chunker        *Chunker
	lastTranslated string
}

// NewService creates a translation service for one language pair.
// chunkSize of zero selects the default.
func NewService(t Translator, pair types.LanguagePair, chunkSize int) *Service {
	return &Service{
		translator: t,
		pair:       pair,
		chunker:    NewChunker(chunkSize, DefaultOverlap),
	}
}

// Translate processes one recognizer segment. ok=false means the text
// is still accumulating (or the increment produced nothing new) and no
// output should be emitted.
func (s *Service) Translate(ctx context.Context, text string, isFinal bool) (out string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunker.Prepare(text, isFinal)
	if !ok {
		return "", false, nil
	}

	translated, err := s.translator.Translate(ctx, chunk, s.pair.Source, s.pair.Target)
	if err != nil {
		return "", false, err
	}
	translated = Postprocess(translated)
	if translated == "" {
		return "", false, nil
	}

	out = translated
	if !isFinal && s.lastTranslated != "" && strings.HasPrefix(translated, s.lastTranslated) {
		// Incremental result: report only the newly translated tail.
		out = strings.TrimSpace(strings.TrimPrefix(translated, s.lastTranslated))
		if out == "" {
			s.lastTranslated = translated
			return "", false, nil
		}
	}

	if isFinal {
		s.lastTranslated = ""
	} else {
		s.lastTranslated = translated
	}
	return out, true, nil
}

// Pair returns the language pair this service translates.
func (s *Service) Pair() types.LanguagePair { return s.pair }

// Reset clears chunking and incremental state, e.g. between sessions.
// Translators that keep conversational history are reset too.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunker.Reset()
	s.lastTranslated = ""
	if r, ok := s.translator.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// Close releases the underlying translator.
func (s *Service) Close() error {
	return s.translator.Close()
}
