package translate

import (
	"context"
	"time"

	"github.com/auralang/voxlate/cache"
)

// Cached wraps a Translator with a persistent result cache. Repeated
// segments skip the backend, which matters for filler phrases that come
// up constantly in live speech.
type Cached struct {
	inner Translator
	cache *cache.Cache
	name  string // backend name, part of the cache key
}

// NewCached wraps inner with the given cache. name distinguishes
// backends so switching models never serves stale results.
func NewCached(inner Translator, c *cache.Cache, name string) *Cached {
	return &Cached{inner: inner, cache: c, name: name}
}

// Translate checks the cache before delegating to the backend.
func (t *Cached) Translate(ctx context.Context, text, source, target string) (string, error) {
	key := cache.GenerateKey(t.name, source, target, text)
	if entry, ok := t.cache.Get(key); ok {
		return entry.Text, nil
	}

	out, err := t.inner.Translate(ctx, text, source, target)
	if err != nil {
		return "", err
	}

	// Caching is best effort.
	_ = t.cache.Set(key, &cache.Entry{Text: out, CreatedAt: time.Now()}, cache.DefaultTTL)
	return out, nil
}

func (t *Cached) Close() error { return t.inner.Close() }
