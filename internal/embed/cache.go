package embed

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// CachedEmbedder memoizes vectors by text in a bounded LRU. Query-time
// embedding of repeated questions hits the cache instead of the backend.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[xxh3.Uint128, []float32]
}

// WithCache wraps e with an LRU of size entries. size <= 0 returns e.
func WithCache(e Embedder, size int) Embedder {
	if size <= 0 || e == nil {
		return e
	}
	cache, err := lru.New[xxh3.Uint128, []float32](size)
	if err != nil {
		return e
	}
	return &CachedEmbedder{inner: e, cache: cache}
}

// Model returns the wrapped model name.
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := xxh3.HashString128(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// EmbedBatch serves hits from the cache and sends only misses to the
// wrapped embedder, in one call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
		keys      = make([]xxh3.Uint128, len(texts))
	)
	for i, t := range texts {
		keys[i] = xxh3.HashString128(t)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := checkBatch("cached embed", len(vs), len(missTexts)); err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vs[j]
		c.cache.Add(keys[i], vs[j])
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
