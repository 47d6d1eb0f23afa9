package graph

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

type idSet map[string]struct{}

func (s idSet) add(id string) { s[id] = struct{}{} }

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex;
// every write holds the lock for its whole call, which makes it atomic.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[string]Node
	edges map[string]Edge
	refs  map[string]Ref

	projectNodes map[string]idSet // project -> node ids
	projectEdges map[string]idSet // project -> edge ids
	projectRefs  map[string]idSet // project -> ref ids
	fileNodes    map[string]idSet // fileKey -> node ids
	fileEdges    map[string]idSet // fileKey -> owned edge ids
	fileRefs     map[string]idSet // fileKey -> ref ids
	out          map[string]idSet // node id -> outgoing edge ids
	in           map[string]idSet // node id -> incoming edge ids
	names        map[string]idSet // nameKey -> node ids
	refNames     map[string]idSet // nameKey -> ref ids
	symbolEdges  map[string]idSet // nameKey -> derived edge ids
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:        make(map[string]Node),
		edges:        make(map[string]Edge),
		refs:         make(map[string]Ref),
		projectNodes: make(map[string]idSet),
		projectEdges: make(map[string]idSet),
		projectRefs:  make(map[string]idSet),
		fileNodes:    make(map[string]idSet),
		fileEdges:    make(map[string]idSet),
		fileRefs:     make(map[string]idSet),
		out:          make(map[string]idSet),
		in:           make(map[string]idSet),
		names:        make(map[string]idSet),
		refNames:     make(map[string]idSet),
		symbolEdges:  make(map[string]idSet),
	}
}

// fileKey builds the composite lookup key for a project file.
func fileKey(projectID, filePath string) string {
	return projectID + "\x00" + filePath
}

// nameKey builds the composite lookup key for a project-scoped name.
func nameKey(projectID, name string) string {
	return projectID + "\x00" + name
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// UpsertNodes inserts or replaces nodes keyed by id.
func (m *MemStore) UpsertNodes(ctx context.Context, nodes []Node) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := validateNodes(nodes); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		m.putNode(n)
	}
	return nil
}

// UpsertEdges inserts or replaces edges keyed by id. The batch is rejected
// as a whole if any endpoint is missing.
func (m *MemStore) UpsertEdges(ctx context.Context, edges []Edge) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.validateEdges(edges, nil, nil); err != nil {
		return err
	}
	for _, e := range edges {
		m.putEdge(e)
	}
	return nil
}

// DeleteByFile removes everything owned by or touching the file's nodes.
func (m *MemStore) DeleteByFile(ctx context.Context, projectID, filePath string) ([]string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteFile(projectID, filePath), nil
}

// ReplaceFile swaps the file's previous extraction for fg in one step.
func (m *MemStore) ReplaceFile(ctx context.Context, fg FileGraph) ([]string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := validateFileGraph(fg); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make(map[string]Node, len(fg.Nodes))
	for _, n := range fg.Nodes {
		pending[n.ID] = n
	}
	if err := m.validateEdges(fg.Edges, pending, m.fileNodes[fileKey(fg.ProjectID, fg.FilePath)]); err != nil {
		return nil, err
	}

	removed := m.deleteFile(fg.ProjectID, fg.FilePath)
	for _, n := range fg.Nodes {
		m.putNode(n)
	}
	for _, e := range fg.Edges {
		m.putEdge(e)
	}
	for _, r := range fg.Refs {
		m.putRef(r)
	}
	return removed, nil
}

// ReplaceEdges deletes remove and upserts add under one lock.
func (m *MemStore) ReplaceEdges(ctx context.Context, projectID string, remove []string, add []Edge) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	for _, e := range add {
		if e.ProjectID != projectID {
			return ckgerr.Errorf(ckgerr.InvalidArgument, "edge %s belongs to project %q, not %q", e.ID, e.ProjectID, projectID)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.validateEdges(add, nil, nil); err != nil {
		return err
	}
	for _, id := range remove {
		if e, ok := m.edges[id]; ok && e.ProjectID == projectID {
			m.deleteEdge(id)
		}
	}
	for _, e := range add {
		m.putEdge(e)
	}
	return nil
}

// GetNode returns the node with id, or nil if not found.
func (m *MemStore) GetNode(_ context.Context, id string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

// FindEdges returns the edges of nodeID in the given direction, optionally
// filtered by relationship.
func (m *MemStore) FindEdges(_ context.Context, nodeID string, dir Direction, rels ...Relationship) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := relFilter(rels)
	var out []Edge
	collect := func(ids idSet) {
		for id := range ids {
			e := m.edges[id]
			if want(e.Relationship) {
				out = append(out, e)
			}
		}
	}
	switch dir {
	case DirectionOut:
		collect(m.out[nodeID])
	case DirectionIn:
		collect(m.in[nodeID])
	default:
		collect(m.out[nodeID])
		for id := range m.in[nodeID] {
			if _, dup := m.out[nodeID][id]; dup {
				continue
			}
			if e := m.edges[id]; want(e.Relationship) {
				out = append(out, e)
			}
		}
	}
	sortEdges(out)
	return out, nil
}

// NodesByFile returns the nodes extracted from one file.
func (m *MemStore) NodesByFile(_ context.Context, projectID, filePath string) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectNodes(m.fileNodes[fileKey(projectID, filePath)], nil), nil
}

// NodesByName returns nodes named name. With foldCase the match is
// case-insensitive.
func (m *MemStore) NodesByName(_ context.Context, projectID, name string, foldCase bool) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !foldCase {
		return m.collectNodes(m.names[nameKey(projectID, name)], nil), nil
	}
	return m.collectNodes(m.projectNodes[projectID], func(n Node) bool {
		return strings.EqualFold(n.Name, name)
	}), nil
}

// NodesByKind returns all nodes of the given kinds (all kinds when empty).
func (m *MemStore) NodesByKind(_ context.Context, projectID string, kinds ...NodeKind) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectNodes(m.projectNodes[projectID], func(n Node) bool {
		if len(kinds) == 0 {
			return true
		}
		for _, k := range kinds {
			if n.Kind == k {
				return true
			}
		}
		return false
	}), nil
}

// EdgesByRelationship returns all project edges with one of rels (all when
// empty).
func (m *MemStore) EdgesByRelationship(_ context.Context, projectID string, rels ...Relationship) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := relFilter(rels)
	var out []Edge
	for id := range m.projectEdges[projectID] {
		if e := m.edges[id]; want(e.Relationship) {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// EdgesBySymbol returns the derived edges whose symbol metadata is in names.
func (m *MemStore) EdgesBySymbol(_ context.Context, projectID string, names []string) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Edge
	for _, name := range names {
		for id := range m.symbolEdges[nameKey(projectID, name)] {
			out = append(out, m.edges[id])
		}
	}
	sortEdges(out)
	return out, nil
}

// RefsByName returns the refs whose name is in names.
func (m *MemStore) RefsByName(_ context.Context, projectID string, names []string) ([]Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Ref
	for _, name := range names {
		for id := range m.refNames[nameKey(projectID, name)] {
			out = append(out, m.refs[id])
		}
	}
	sortRefs(out)
	return out, nil
}

// RefsByFile returns the refs found in one file.
func (m *MemStore) RefsByFile(_ context.Context, projectID, filePath string) ([]Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Ref
	for id := range m.fileRefs[fileKey(projectID, filePath)] {
		out = append(out, m.refs[id])
	}
	sortRefs(out)
	return out, nil
}

// Neighbors performs a BFS from nodeID, one frontier per hop.
func (m *MemStore) Neighbors(_ context.Context, nodeID string, dir Direction, depth, maxDepth int) ([]Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	depth = clampDepth(depth, maxDepth)
	if depth <= 0 {
		return nil, nil
	}

	visited := map[string]bool{nodeID: true}
	queue := []string{nodeID}
	var result []Neighbor

	for d := 1; d <= depth && len(queue) > 0; d++ {
		var next []string
		for _, id := range queue {
			for _, nb := range m.adjacent(id, dir) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				result = append(result, Neighbor{Node: m.nodes[nb], Depth: d})
				next = append(next, nb)
			}
		}
		queue = next
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Depth != result[j].Depth {
			return result[i].Depth < result[j].Depth
		}
		return result[i].Node.ID < result[j].Node.ID
	})
	return result, nil
}

// adjacent returns node ids one hop from id along dir.
func (m *MemStore) adjacent(id string, dir Direction) []string {
	var result []string
	if dir == DirectionOut || dir == DirectionBoth {
		for eid := range m.out[id] {
			result = append(result, m.edges[eid].ToID)
		}
	}
	if dir == DirectionIn || dir == DirectionBoth {
		for eid := range m.in[id] {
			result = append(result, m.edges[eid].FromID)
		}
	}
	sort.Strings(result)
	return result
}

// Stats returns node, edge and ref counts for one project.
func (m *MemStore) Stats(_ context.Context, projectID string) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := &Stats{
		Edges: len(m.projectEdges[projectID]),
		Refs:  len(m.projectRefs[projectID]),
	}
	for id := range m.projectNodes[projectID] {
		switch k := m.nodes[id].Kind; {
		case k == KindFile:
			st.Files++
		case k == KindEndpoint:
			st.Endpoints++
		default:
			st.Symbols++
		}
	}
	return st, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

// ---------- Internal mutation helpers (caller holds m.mu) ----------

func (m *MemStore) putNode(n Node) {
	if old, ok := m.nodes[n.ID]; ok {
		m.unindexNode(old)
	}
	n.Metadata = maps.Clone(n.Metadata)
	m.nodes[n.ID] = n
	ensure(m.projectNodes, n.ProjectID).add(n.ID)
	ensure(m.fileNodes, fileKey(n.ProjectID, n.FilePath)).add(n.ID)
	ensure(m.names, nameKey(n.ProjectID, n.Name)).add(n.ID)
}

func (m *MemStore) unindexNode(n Node) {
	drop(m.projectNodes, n.ProjectID, n.ID)
	drop(m.fileNodes, fileKey(n.ProjectID, n.FilePath), n.ID)
	drop(m.names, nameKey(n.ProjectID, n.Name), n.ID)
}

func (m *MemStore) deleteNode(id string) {
	n, ok := m.nodes[id]
	if !ok {
		return
	}
	for eid := range m.out[id] {
		m.deleteEdge(eid)
	}
	for eid := range m.in[id] {
		m.deleteEdge(eid)
	}
	delete(m.out, id)
	delete(m.in, id)
	m.unindexNode(n)
	delete(m.nodes, id)
}

func (m *MemStore) putEdge(e Edge) {
	if _, ok := m.edges[e.ID]; ok {
		m.deleteEdge(e.ID)
	}
	e.Metadata = maps.Clone(e.Metadata)
	m.edges[e.ID] = e
	ensure(m.projectEdges, e.ProjectID).add(e.ID)
	ensure(m.fileEdges, fileKey(e.ProjectID, e.FilePath)).add(e.ID)
	ensure(m.out, e.FromID).add(e.ID)
	ensure(m.in, e.ToID).add(e.ID)
	if sym := e.Meta(MetaSymbol); sym != "" {
		ensure(m.symbolEdges, nameKey(e.ProjectID, sym)).add(e.ID)
	}
}

func (m *MemStore) deleteEdge(id string) {
	e, ok := m.edges[id]
	if !ok {
		return
	}
	drop(m.projectEdges, e.ProjectID, id)
	drop(m.fileEdges, fileKey(e.ProjectID, e.FilePath), id)
	drop(m.out, e.FromID, id)
	drop(m.in, e.ToID, id)
	if sym := e.Meta(MetaSymbol); sym != "" {
		drop(m.symbolEdges, nameKey(e.ProjectID, sym), id)
	}
	delete(m.edges, id)
}

func (m *MemStore) putRef(r Ref) {
	if old, ok := m.refs[r.ID]; ok {
		m.deleteRef(old.ID)
	}
	m.refs[r.ID] = r
	ensure(m.projectRefs, r.ProjectID).add(r.ID)
	ensure(m.fileRefs, fileKey(r.ProjectID, r.FilePath)).add(r.ID)
	ensure(m.refNames, nameKey(r.ProjectID, r.Name)).add(r.ID)
}

func (m *MemStore) deleteRef(id string) {
	r, ok := m.refs[id]
	if !ok {
		return
	}
	drop(m.projectRefs, r.ProjectID, id)
	drop(m.fileRefs, fileKey(r.ProjectID, r.FilePath), id)
	drop(m.refNames, nameKey(r.ProjectID, r.Name), id)
	delete(m.refs, id)
}

// deleteFile removes a file's nodes, refs, owned edges and touching edges.
func (m *MemStore) deleteFile(projectID, filePath string) []string {
	key := fileKey(projectID, filePath)

	for eid := range m.fileEdges[key] {
		m.deleteEdge(eid)
	}
	for rid := range m.fileRefs[key] {
		m.deleteRef(rid)
	}
	removed := make([]string, 0, len(m.fileNodes[key]))
	for id := range m.fileNodes[key] {
		removed = append(removed, id)
	}
	for _, id := range removed {
		m.deleteNode(id)
	}
	sort.Strings(removed)
	return removed
}

// validateEdges checks that every endpoint exists among pending or the
// stored nodes not listed in removing.
func (m *MemStore) validateEdges(edges []Edge, pending map[string]Node, removing idSet) error {
	lookup := func(id string) (Node, bool) {
		if n, ok := pending[id]; ok {
			return n, true
		}
		if _, gone := removing[id]; gone {
			return Node{}, false
		}
		n, ok := m.nodes[id]
		return n, ok
	}
	for _, e := range edges {
		if e.ID == "" || e.ProjectID == "" {
			return ckgerr.Errorf(ckgerr.InvalidArgument, "edge %q: id and project are required", e.ID)
		}
		for _, end := range []string{e.FromID, e.ToID} {
			n, ok := lookup(end)
			if !ok {
				return ckgerr.Errorf(ckgerr.IndexCorruption, "edge %s (%s) references missing node %s", e.ID, e.Relationship, end)
			}
			if n.ProjectID != e.ProjectID {
				return ckgerr.Errorf(ckgerr.InvalidArgument, "edge %s crosses projects %q and %q", e.ID, e.ProjectID, n.ProjectID)
			}
		}
	}
	return nil
}

func (m *MemStore) collectNodes(ids idSet, keep func(Node) bool) []Node {
	var out []Node
	for id := range ids {
		n := m.nodes[id]
		if keep == nil || keep(n) {
			out = append(out, n)
		}
	}
	SortNodes(out)
	return out
}

func ensure(idx map[string]idSet, key string) idSet {
	s, ok := idx[key]
	if !ok {
		s = make(idSet)
		idx[key] = s
	}
	return s
}

func drop(idx map[string]idSet, key, id string) {
	s, ok := idx[key]
	if !ok {
		return
	}
	delete(s, id)
	if len(s) == 0 {
		delete(idx, key)
	}
}
