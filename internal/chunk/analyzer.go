package chunk

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/dusk-indust/ckg/internal/tokens"
)

// Registry names of the code analyzer used by the bleve text index.
const (
	codeTokenizerName = "ckg_code_tokenizer"
	codeAnalyzerName  = "ckg_code"
)

func init() {
	registry.RegisterTokenizer(codeTokenizerName, func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
		return codeTokenizer{}, nil
	})
	registry.RegisterAnalyzer(codeAnalyzerName, newCodeAnalyzer)
}

// codeTokenizer emits the identifier runs of the shared token unit.
// Punctuation tokens carry no search signal and are dropped.
type codeTokenizer struct{}

func (codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	var out analysis.TokenStream
	pos := 1
	for _, t := range tokens.Scan(string(input)) {
		if !t.Word {
			continue
		}
		out = append(out, &analysis.Token{
			Term:     []byte(t.Text),
			Start:    t.Start,
			End:      t.End,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}
	return out
}

// newCodeAnalyzer chains the code tokenizer with lowercasing.
func newCodeAnalyzer(_ map[string]interface{}, cache *registry.Cache) (analysis.Analyzer, error) {
	tokenizer, err := cache.TokenizerNamed(codeTokenizerName)
	if err != nil {
		return nil, err
	}
	lower, err := cache.TokenFilterNamed(lowercase.Name)
	if err != nil {
		return nil, err
	}
	return &analysis.DefaultAnalyzer{
		Tokenizer:    tokenizer,
		TokenFilters: []analysis.TokenFilter{lower},
	}, nil
}
