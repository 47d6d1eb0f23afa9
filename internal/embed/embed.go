// Package embed turns chunk text into vectors.
package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/config"
)

// Embedder produces vectors for text. Vectors from different models are
// never comparable, so every embedder reports its model name.
// Implementations: HashEmbedder (local), OpenAIEmbedder, OllamaEmbedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// New builds the embedder selected by cfg, wrapped with the configured
// timeout and LRU cache. It returns nil, nil for provider "none".
func New(cfg config.EmbedderConfig) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "", "hash":
		e = NewHashEmbedder(cfg.Dimension)
	case "openai":
		oe, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, err
		}
		e = oe
	case "ollama":
		e = NewOllamaEmbedder(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Token: cfg.APIKey})
	default:
		return nil, ckgerr.Errorf(ckgerr.InvalidArgument, "unknown embedder provider %q", cfg.Provider)
	}
	return WithCache(WithTimeout(e, cfg.Timeout), cfg.CacheSize), nil
}

// timeoutEmbedder bounds every call of the wrapped embedder.
type timeoutEmbedder struct {
	inner   Embedder
	timeout time.Duration
}

// WithTimeout bounds every call of e by d. Expired calls fail with
// ckgerr.Timeout. d <= 0 returns e unchanged.
func WithTimeout(e Embedder, d time.Duration) Embedder {
	if d <= 0 || e == nil {
		return e
	}
	return &timeoutEmbedder{inner: e, timeout: d}
}

func (t *timeoutEmbedder) Model() string { return t.inner.Model() }

func (t *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	v, err := t.inner.Embed(ctx, text)
	return v, deadline(ctx, err)
}

func (t *timeoutEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	vs, err := t.inner.EmbedBatch(ctx, texts)
	return vs, deadline(ctx, err)
}

func deadline(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return ckgerr.Wrap(ckgerr.Timeout, "embed", err)
	}
	return err
}

// unavailable wraps a backend failure.
func unavailable(backend string, err error) error {
	return ckgerr.Wrap(ckgerr.EmbedderUnavailable, backend, err)
}

// checkBatch verifies a backend returned one vector per input.
func checkBatch(backend string, got, want int) error {
	if got != want {
		return ckgerr.New(ckgerr.EmbedderUnavailable, fmt.Sprintf("%s: got %d vectors for %d inputs", backend, got, want))
	}
	return nil
}
