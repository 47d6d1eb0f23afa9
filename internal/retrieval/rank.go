package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/symbolic"
)

// ranked returns the candidates in assembly order. With rerank set they are
// scored by the weighted sum of their signals, otherwise they keep discovery
// order (symbolic hits first, then semantic hits by similarity).
func (s *buildState) ranked(ctx context.Context, rerank bool) []*candidate {
	out := make([]*candidate, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	if !rerank {
		sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
		for _, c := range out {
			c.score = c.scores.Exact + c.scores.Semantic
		}
		return out
	}

	s.recency(ctx, out)
	w := s.cfg.Weights
	for _, c := range out {
		c.scores.Proximity = symbolic.Proximity(c.chunk.FilePath, s.opts.HintFile)
		c.score = w.Exact*c.scores.Exact +
			w.Semantic*c.scores.Semantic +
			w.Recency*c.scores.Recency +
			w.Proximity*c.scores.Proximity
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].chunk.FilePath != out[j].chunk.FilePath {
			return out[i].chunk.FilePath < out[j].chunk.FilePath
		}
		if out[i].chunk.StartLine != out[j].chunk.StartLine {
			return out[i].chunk.StartLine < out[j].chunk.StartLine
		}
		return out[i].chunk.ID < out[j].chunk.ID
	})
	return out
}

// recency sets each candidate's recency signal from its file's modification
// time, min-max normalised across the candidates.
func (s *buildState) recency(ctx context.Context, cands []*candidate) {
	modTimes := make(map[string]float64)
	for _, c := range cands {
		if _, ok := modTimes[c.chunk.FilePath]; ok {
			continue
		}
		t, err := s.modTime(ctx, c.chunk.FilePath)
		if err != nil {
			s.degrade(fmt.Sprintf("recency lookup timed out: %v", err))
			break
		}
		modTimes[c.chunk.FilePath] = t
	}

	values := make([]float64, len(cands))
	for i, c := range cands {
		values[i] = modTimes[c.chunk.FilePath]
	}
	normalize(values)
	for i, c := range cands {
		c.scores.Recency = values[i]
	}
}

// modTime returns the file's recorded modification time in unix seconds,
// or 0 when unknown. Only a store timeout is returned as an error.
func (s *buildState) modTime(ctx context.Context, path string) (float64, error) {
	n, err := storeCall(ctx, s.storeTimeout, func(ctx context.Context) (*graph.Node, error) {
		return s.graph.GetNode(ctx, graph.NodeID(s.projectID, path, graph.KindFile, path, 1))
	})
	if timedOut(err) {
		return 0, err
	}
	if err != nil || n == nil {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, n.Meta(graph.MetaModTime))
	if err != nil {
		return 0, nil
	}
	return float64(t.Unix()), nil
}

// normalize scales values to [0,1] in place. Equal values carry no signal
// and all become 0.5.
func normalize(values []float64) {
	if len(values) == 0 {
		return
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi == lo {
		for i := range values {
			values[i] = 0.5
		}
		return
	}
	for i := range values {
		values[i] = (values[i] - lo) / (hi - lo)
	}
}
