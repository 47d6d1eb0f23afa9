// Package extract turns a parsed file into graph nodes, edges, refs and
// semantic chunks.
package extract

import (
	"sort"
	"strconv"

	"github.com/dusk-indust/ckg/internal/chunk"
	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/parse"
)

// ImportResolver maps raw import specifiers to project file paths.
type ImportResolver interface {
	ResolveImport(projectID, specifier, fromFile string, lang graph.Language) (string, bool)
}

// Result is the extraction of one file. Err is set when the syntax tree
// carried parse errors; the other fields then hold the partial result.
type Result struct {
	Nodes  []graph.Node
	Edges  []graph.Edge
	Refs   []graph.Ref
	Chunks []chunk.Chunk
	Err    error
}

// FileGraph returns the graph part of r for filePath.
func (r Result) FileGraph(projectID, filePath string) graph.FileGraph {
	return graph.FileGraph{ProjectID: projectID, FilePath: filePath, Nodes: r.Nodes, Edges: r.Edges, Refs: r.Refs}
}

// NodeIDs returns the ids of every node in r.
func (r Result) NodeIDs() []string {
	ids := make([]string, len(r.Nodes))
	for i, n := range r.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Pipeline extracts files. It is safe for concurrent use; Extract is pure
// given the same tree and resolver state.
type Pipeline struct {
	resolver  ImportResolver
	maxTokens int
}

// NewPipeline creates a Pipeline. resolver may be nil, in which case every
// import is unresolved. maxTokens caps chunk size (<= 0 disables splitting).
func NewPipeline(resolver ImportResolver, maxTokens int) *Pipeline {
	return &Pipeline{resolver: resolver, maxTokens: maxTokens}
}

// kindOf maps a language-level symbol kind to a graph node kind.
func kindOf(k parse.SymbolKind) graph.NodeKind {
	switch k {
	case parse.SymbolFunction, parse.SymbolMethod:
		return graph.KindFunction
	case parse.SymbolClass:
		return graph.KindClass
	case parse.SymbolInterface, parse.SymbolType, parse.SymbolEnum:
		return graph.KindType
	default:
		return graph.KindVariable
	}
}

// symbolNode pairs an extracted node with its source symbol.
type symbolNode struct {
	node graph.Node
	sym  parse.Symbol
}

// Extract builds the graph records and chunks of one parsed file.
func (p *Pipeline) Extract(filePath string, tree *parse.SyntaxTree, projectID string) Result {
	var res Result
	lang := tree.Language

	fileNode := graph.Node{
		ID:        graph.NodeID(projectID, filePath, graph.KindFile, filePath, 1),
		ProjectID: projectID,
		Kind:      graph.KindFile,
		Name:      filePath,
		FilePath:  filePath,
		Language:  lang,
		StartLine: 1,
		EndLine:   max(tree.Lines, 1),
		Metadata: map[string]string{
			graph.MetaLOC:         strconv.Itoa(tree.Lines),
			graph.MetaContentHash: chunk.Hash(string(tree.Source)),
		},
	}
	if tree.ErrorCount > 0 {
		fileNode.Metadata[graph.MetaParseErrors] = strconv.Itoa(tree.ErrorCount)
		res.Err = ckgerr.Errorf(ckgerr.ParseFailed, "%s: %d syntax errors", filePath, tree.ErrorCount)
	}
	res.Nodes = append(res.Nodes, fileNode)

	symbols := p.symbolNodes(projectID, filePath, lang, tree.Symbols)
	for _, sn := range symbols {
		res.Nodes = append(res.Nodes, sn.node)
		res.Edges = append(res.Edges, graph.Edge{
			ID:           graph.EdgeID(projectID, fileNode.ID, sn.node.ID, graph.RelDefines),
			ProjectID:    projectID,
			FromID:       fileNode.ID,
			ToID:         sn.node.ID,
			Relationship: graph.RelDefines,
			Weight:       1,
			FilePath:     filePath,
		})
	}

	p.imports(&res, projectID, filePath, lang, fileNode, tree.Imports)
	res.Refs = append(res.Refs, useRefs(projectID, filePath, fileNode, symbols, tree)...)

	res.Chunks = p.chunks(projectID, filePath, fileNode, symbols, tree)

	graph.SortNodes(res.Nodes)
	sortEdges(res.Edges)
	sortRefs(res.Refs)
	return res
}

func (p *Pipeline) symbolNodes(projectID, filePath string, lang graph.Language, symbols []parse.Symbol) []symbolNode {
	seen := make(map[string]bool, len(symbols))
	out := make([]symbolNode, 0, len(symbols))
	for _, s := range symbols {
		kind := kindOf(s.Kind)
		id := graph.NodeID(projectID, filePath, kind, s.Name, s.StartLine)
		if seen[id] {
			continue
		}
		seen[id] = true
		visibility := "private"
		if s.Exported {
			visibility = "public"
		}
		meta := map[string]string{
			graph.MetaSignature:  s.Signature,
			graph.MetaVisibility: visibility,
			graph.MetaExported:   strconv.FormatBool(s.Exported),
			graph.MetaHasDoc:     strconv.FormatBool(s.Doc != ""),
			graph.MetaSymbolKind: string(s.Kind),
		}
		if s.EntryPoint {
			meta[graph.MetaEntryPoint] = "true"
		}
		if s.Parent != "" {
			meta[graph.MetaParent] = s.Parent
		}
		out = append(out, symbolNode{
			node: graph.Node{
				ID:        id,
				ProjectID: projectID,
				Kind:      kind,
				Name:      s.Name,
				FilePath:  filePath,
				Language:  lang,
				StartLine: s.StartLine,
				EndLine:   s.EndLine,
				Metadata:  meta,
			},
			sym: s,
		})
	}
	return out
}

// imports turns resolved imports into refs on the file node and unresolved
// ones into Endpoint nodes linked by an imports edge flagged unresolved.
func (p *Pipeline) imports(res *Result, projectID, filePath string, lang graph.Language, file graph.Node, imports []parse.Import) {
	resolvedSeen := make(map[string]bool)
	endpointSeen := make(map[string]bool)
	for _, imp := range imports {
		if imp.Specifier == "" {
			continue
		}
		if p.resolver != nil {
			if target, ok := p.resolver.ResolveImport(projectID, imp.Specifier, filePath, lang); ok {
				if resolvedSeen[target] {
					continue
				}
				resolvedSeen[target] = true
				res.Refs = append(res.Refs, graph.Ref{
					ID:           graph.RefID(projectID, filePath, file.ID, target, graph.RelImports, imp.Line, 0),
					ProjectID:    projectID,
					FilePath:     filePath,
					FromID:       file.ID,
					Name:         target,
					Relationship: graph.RelImports,
					Line:         imp.Line,
				})
				continue
			}
		}
		if endpointSeen[imp.Specifier] {
			continue
		}
		endpointSeen[imp.Specifier] = true
		endpoint := graph.Node{
			ID:        graph.NodeID(projectID, filePath, graph.KindEndpoint, imp.Specifier, imp.Line),
			ProjectID: projectID,
			Kind:      graph.KindEndpoint,
			Name:      imp.Specifier,
			FilePath:  filePath,
			Language:  lang,
			StartLine: imp.Line,
			EndLine:   imp.Line,
			Metadata: map[string]string{
				graph.MetaSpecifier:  imp.Specifier,
				graph.MetaUnresolved: "true",
			},
		}
		res.Nodes = append(res.Nodes, endpoint)
		res.Edges = append(res.Edges, graph.Edge{
			ID:           graph.EdgeID(projectID, file.ID, endpoint.ID, graph.RelImports),
			ProjectID:    projectID,
			FromID:       file.ID,
			ToID:         endpoint.ID,
			Relationship: graph.RelImports,
			Weight:       1,
			FilePath:     filePath,
			Metadata: map[string]string{
				graph.MetaSpecifier:  imp.Specifier,
				graph.MetaUnresolved: "true",
			},
		})
	}
}

// useRefs emits a ref for every call, reference and heritage clause, owned
// by the innermost enclosing symbol (or the file node at top level).
func useRefs(projectID, filePath string, file graph.Node, symbols []symbolNode, tree *parse.SyntaxTree) []graph.Ref {
	var refs []graph.Ref
	ordinals := make(map[string]int)
	add := func(fromID, name string, rel graph.Relationship, line int) {
		if name == "" {
			return
		}
		key := fromID + "\x00" + name + "\x00" + string(rel) + "\x00" + strconv.Itoa(line)
		ord := ordinals[key]
		ordinals[key] = ord + 1
		refs = append(refs, graph.Ref{
			ID:           graph.RefID(projectID, filePath, fromID, name, rel, line, ord),
			ProjectID:    projectID,
			FilePath:     filePath,
			FromID:       fromID,
			Name:         name,
			Relationship: rel,
			Line:         line,
		})
	}

	for _, u := range tree.Uses {
		from := enclosing(symbols, u.Line)
		fromID := file.ID
		if from != nil {
			// A declaration's own name is not a use of itself.
			if from.node.Name == u.Name && u.Line == from.node.StartLine {
				continue
			}
			fromID = from.node.ID
		}
		rel := graph.RelReferences
		if u.Kind == parse.UseCall {
			rel = graph.RelCalls
		}
		add(fromID, u.Name, rel, u.Line)
	}

	for _, h := range tree.Heritage {
		fromID := ""
		for _, sn := range symbols {
			if sn.node.Name == h.Type && (sn.node.Kind == graph.KindClass || sn.node.Kind == graph.KindType) {
				fromID = sn.node.ID
				break
			}
		}
		if fromID == "" {
			fromID = file.ID
		}
		add(fromID, h.Super, graph.RelExtends, h.Line)
	}
	return refs
}

// enclosing returns the smallest symbol whose span contains line.
func enclosing(symbols []symbolNode, line int) *symbolNode {
	var best *symbolNode
	for i := range symbols {
		sn := &symbols[i]
		if line < sn.node.StartLine || line > sn.node.EndLine {
			continue
		}
		if best == nil || sn.node.EndLine-sn.node.StartLine < best.node.EndLine-best.node.StartLine {
			best = sn
		}
	}
	return best
}

func sortEdges(edges []graph.Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}

func sortRefs(refs []graph.Ref) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
}
