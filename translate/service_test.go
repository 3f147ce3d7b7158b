package translate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/auralang/voxlate/internal/types"
)

// mapTranslator returns canned translations and records calls.
type mapTranslator struct {
	mu      sync.Mutex
	results map[string]string
	err     error
	calls   []string
}

func (m *mapTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, text)
	if m.err != nil {
		return "", m.err
	}
	if out, ok := m.results[text]; ok {
		return out, nil
	}
	return "[" + text + "]", nil
}

func (m *mapTranslator) Close() error { return nil }

func (m *mapTranslator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var zhEN = types.LanguagePair{Source: "zh", Target: "en"}

func TestServiceFinalSegment(t *testing.T) {
	mt := &mapTranslator{results: map[string]string{"你好世界": "Hello world"}}
	s := NewService(mt, zhEN, 0)

	out, ok, err := s.Translate(context.Background(), "你好世界", true)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !ok {
		t.Fatal("final segment must translate")
	}
	if out != "Hello world." {
		t.Errorf("out = %q, want postprocessed translation", out)
	}
}

func TestServiceHoldsShortPartials(t *testing.T) {
	mt := &mapTranslator{}
	s := NewService(mt, zhEN, 128)

	out, ok, err := s.Translate(context.Background(), "short partial", false)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if ok || out != "" {
		t.Errorf("short partial translated: (%q, %v)", out, ok)
	}
	if mt.callCount() != 0 {
		t.Errorf("backend called %d times for held text", mt.callCount())
	}
}

func TestServiceIncrementalDiff(t *testing.T) {
	mt := &mapTranslator{results: map[string]string{
		"first part.":             "First part.",
		"first part. second bit.": "First part. Second bit.",
	}}
	s := NewService(mt, zhEN, 128)

	out, ok, err := s.Translate(context.Background(), "first part.", false)
	if err != nil || !ok {
		t.Fatalf("first partial = (%q, %v, %v)", out, ok, err)
	}
	if out != "First part." {
		t.Errorf("first out = %q", out)
	}

	out, ok, err = s.Translate(context.Background(), "first part. second bit.", false)
	if err != nil || !ok {
		t.Fatalf("second partial = (%q, %v, %v)", out, ok, err)
	}
	if out != "Second bit." {
		t.Errorf("incremental out = %q, want only the new tail", out)
	}
}

func TestServiceErrorPropagates(t *testing.T) {
	mt := &mapTranslator{err: errors.New("backend down")}
	s := NewService(mt, zhEN, 0)

	_, ok, err := s.Translate(context.Background(), "失败的句子", true)
	if err == nil || ok {
		t.Fatalf("want error, got (%v, %v)", ok, err)
	}

	// A later segment is unaffected.
	mt.mu.Lock()
	mt.err = nil
	mt.mu.Unlock()
	out, ok, err := s.Translate(context.Background(), "下一句", true)
	if err != nil || !ok {
		t.Fatalf("next segment = (%q, %v, %v)", out, ok, err)
	}
}

func TestServiceResetClearsState(t *testing.T) {
	mt := &mapTranslator{}
	s := NewService(mt, zhEN, 16)

	if _, ok, _ := s.Translate(context.Background(), strings.Repeat("a", 20), false); !ok {
		t.Fatal("long partial should translate")
	}
	s.Reset()

	out, ok, err := s.Translate(context.Background(), "0123456789abcdef", false)
	if err != nil || !ok {
		t.Fatalf("Translate after reset: (%v, %v)", ok, err)
	}
	if strings.Contains(out, "aaaa") {
		t.Errorf("out = %q carries pre-reset context", out)
	}
}

// resettingTranslator is a mapTranslator whose history can be cleared.
type resettingTranslator struct {
	mapTranslator
	resets int
}

func (r *resettingTranslator) Reset() { r.resets++ }

func TestServiceResetPropagatesToTranslator(t *testing.T) {
	rt := &resettingTranslator{}
	s := NewService(rt, zhEN, 0)

	s.Reset()
	if rt.resets != 1 {
		t.Errorf("translator resets = %d, want 1", rt.resets)
	}
}
