package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/ckg/internal/chunk"
	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/config"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	h := NewHashEmbedder(64)
	ctx := context.Background()
	a, err := h.Embed(ctx, "func GetUser(id string) *User")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "func GetUser(id string) *User")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, chunk.Cosine(a, a), 1e-5)
	assert.Equal(t, "hash-64", h.Model())
}

func TestHashEmbedder_SharedIdentifiersAreCloser(t *testing.T) {
	h := NewHashEmbedder(256)
	ctx := context.Background()
	query, _ := h.Embed(ctx, "get user by id")
	related, _ := h.Embed(ctx, "func getUserByID(id string) (*User, error)")
	unrelated, _ := h.Embed(ctx, "parse yaml config file into struct")
	assert.Greater(t, chunk.Cosine(query, related), chunk.Cosine(query, unrelated))
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	v, err := NewHashEmbedder(0).Embed(context.Background(), "  {} ")
	require.NoError(t, err)
	assert.Len(t, v, DefaultHashDimension)
	for _, f := range v {
		assert.Zero(t, f)
	}
}

func TestHashEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, "x")
	assert.True(t, ckgerr.HasCode(err, ckgerr.Timeout))
}

func TestIdentParts(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"getUserByID", []string{"get", "User", "By", "ID"}},
		{"get_user", []string{"get", "user"}},
		{"HTTPServer", []string{"HTTPServer"}},
		{"__init__", []string{"init"}},
		{"x", []string{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, identParts(tt.in))
		})
	}
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-m3", req.Model)
		resp := struct {
			Embeddings [][]float32 `json:"embeddings"`
		}{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	o := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL + "/", Model: "bge-m3", Token: "secret"})
	vs, err := o.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vs)
	assert.Equal(t, "Bearer secret", gotAuth)

	v, err := o.Embed(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, v)
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()
		_, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL}).Embed(context.Background(), "a")
		require.Error(t, err)
		assert.True(t, ckgerr.HasCode(err, ckgerr.EmbedderUnavailable))
		assert.Contains(t, err.Error(), "model not found")
	})
	t.Run("count mismatch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings":[[1,2]]}`))
		}))
		defer srv.Close()
		_, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL}).EmbedBatch(context.Background(), []string{"a", "b"})
		assert.True(t, ckgerr.HasCode(err, ckgerr.EmbedderUnavailable))
	})
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := NewOllamaEmbedder(OllamaConfig{BaseURL: url}).Embed(context.Background(), "a")
		assert.True(t, ckgerr.IsTransient(err))
	})
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultOpenAIModel, req.Model)
		assert.Equal(t, 3, req.Dimensions)

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		// Reversed on purpose: results are placed by index.
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Index: i, Embedding: []float64{float64(i), 0.5, 1}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer srv.Close()

	o, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Dimension: 3})
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, o.Model())

	vs, err := o.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0.5, 1}, {1, 0.5, 1}}, vs)
}

func TestOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.True(t, ckgerr.HasCode(err, ckgerr.InvalidArgument))
}

func TestOpenAIEmbedder_BadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	o, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	_, err = o.Embed(context.Background(), "a")
	assert.True(t, ckgerr.HasCode(err, ckgerr.EmbedderUnavailable))
}

// countingEmbedder records how many texts reach the backend.
type countingEmbedder struct {
	calls atomic.Int64
	texts atomic.Int64
	inner *HashEmbedder
}

func (c *countingEmbedder) Model() string { return c.inner.Model() }

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	c.texts.Add(1)
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int64(len(texts)))
	return c.inner.EmbedBatch(ctx, texts)
}

func TestWithCache(t *testing.T) {
	backend := &countingEmbedder{inner: NewHashEmbedder(16)}
	e := WithCache(backend, 8)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "alpha")
	require.NoError(t, err)
	a2, err := e.Embed(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.EqualValues(t, 1, backend.texts.Load())

	vs, err := e.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vs, 3)
	assert.Equal(t, a1, vs[0])
	assert.EqualValues(t, 3, backend.texts.Load(), "only misses reach the backend")
	assert.EqualValues(t, 2, backend.calls.Load())
	assert.Equal(t, 3, e.(*CachedEmbedder).Len())

	assert.Same(t, backend, WithCache(backend, 0))
}

// blockingEmbedder waits for cancellation.
type blockingEmbedder struct{}

func (blockingEmbedder) Model() string { return "block" }

func (blockingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	_, err := b.Embed(ctx, "")
	return nil, err
}

func TestWithTimeout(t *testing.T) {
	e := WithTimeout(blockingEmbedder{}, 20*time.Millisecond)
	_, err := e.Embed(context.Background(), "x")
	assert.True(t, ckgerr.HasCode(err, ckgerr.Timeout))
	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.True(t, ckgerr.HasCode(err, ckgerr.Timeout))
	assert.Equal(t, "block", e.Model())
}

func TestNew(t *testing.T) {
	cfg := config.Default().Embedder

	e, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "hash-256", e.Model())

	cfg.Provider = "none"
	e, err = New(cfg)
	require.NoError(t, err)
	assert.Nil(t, e)

	cfg.Provider = "ollama"
	cfg.Model = "bge-m3"
	e, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "bge-m3", e.Model())

	cfg.Provider = "openai"
	cfg.APIKey = ""
	_, err = New(cfg)
	assert.True(t, ckgerr.HasCode(err, ckgerr.InvalidArgument))

	cfg.Provider = "bogus"
	_, err = New(cfg)
	assert.Error(t, err)
}
