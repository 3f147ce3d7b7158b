package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	key := GenerateKey("opus-mt-zh-en", "zh", "en", "你好世界")
	entry := &Entry{
		Text:      "Hello world",
		Usage:     Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		CreatedAt: time.Now(),
	}

	if err := c.Set(key, entry, DefaultTTL); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found := c.Get(key)
	if !found {
		t.Fatal("Get: entry not found")
	}
	if got.Text != "Hello world" {
		t.Errorf("Text = %q, want %q", got.Text, "Hello world")
	}
	if got.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", got.Usage.TotalTokens)
	}
}

func TestGetMissing(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, found := c.Get(GenerateKey("nothing", "here")); found {
		t.Error("Get of missing key reported found")
	}
}

func TestGenerateKeyStability(t *testing.T) {
	a := GenerateKey("m", "zh", "en", "text")
	b := GenerateKey("m", "zh", "en", "text")
	if a != b {
		t.Error("same parts produced different keys")
	}
	// Part boundaries matter: ("ab","c") must differ from ("a","bc").
	if GenerateKey("ab", "c") == GenerateKey("a", "bc") {
		t.Error("key collision across part boundaries")
	}
}
