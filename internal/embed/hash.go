package embed

import (
	"context"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/viterin/vek/vek32"
	"github.com/zeebo/xxh3"

	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/tokens"
)

// DefaultHashDimension is used when NewHashEmbedder gets no dimension.
const DefaultHashDimension = 256

// HashEmbedder is a deterministic local model: feature hashing of the
// identifier words and their camel/snake parts, L2-normalised. Texts
// sharing identifiers land close together, which is enough for offline
// use and tests.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder with dim buckets.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

// Model names the embedder and its dimension.
func (h *HashEmbedder) Model() string { return "hash-" + strconv.Itoa(h.dim) }

// Embed hashes text into a unit vector. Text without words yields the zero
// vector.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, ckgerr.Wrap(ckgerr.Timeout, "hash embed", err)
	}
	v := make([]float32, h.dim)
	for _, t := range tokens.Scan(text) {
		if !t.Word {
			continue
		}
		h.add(v, strings.ToLower(t.Text), 1)
		if parts := identParts(t.Text); len(parts) > 1 {
			for _, p := range parts {
				h.add(v, strings.ToLower(p), 0.5)
			}
		}
	}
	if norm := math.Sqrt(float64(vek32.Dot(v, v))); norm > 0 {
		vek32.DivNumber_Inplace(v, float32(norm))
	}
	return v, nil
}

// EmbedBatch embeds each text in turn.
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	sum := xxh3.HashString(feature)
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

// identParts splits an identifier at underscores and lower-to-upper case
// changes, so "getUserByID" and "get_user" share the feature "user".
func identParts(ident string) []string {
	var parts []string
	start := 0
	runes := []rune(ident)
	for i := 0; i <= len(runes); i++ {
		switch {
		case i == len(runes), runes[i] == '_':
			if i > start {
				parts = append(parts, string(runes[start:i]))
			}
			start = i + 1
		case i > start && unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]):
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return parts
}
