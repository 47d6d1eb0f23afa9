//go:build cgo

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

// KuzuStore implements the Store interface using KuzuDB as the graph backend.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
// A single connection is shared, so calls are serialized by mu.
type KuzuStore struct {
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given path. KuzuDB creates the leaf itself for new databases.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "kuzu: open database", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "kuzu: open connection", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by InitSchema.
// Node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Node(
		id STRING,
		project STRING,
		kind STRING,
		name STRING,
		file_path STRING,
		language STRING,
		start_line INT64,
		end_line INT64,
		metadata STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Ref(
		id STRING,
		project STRING,
		file_path STRING,
		from_id STRING,
		name STRING,
		relationship STRING,
		line INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS Link(
		FROM Node TO Node,
		id STRING,
		project STRING,
		relationship STRING,
		weight DOUBLE,
		file_path STRING,
		symbol STRING,
		metadata STRING
	)`,
}

// InitSchema creates all tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return ckgerr.Wrap(ckgerr.StoreUnavailable, "kuzu: init schema", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Write operations ----------

// UpsertNodes merges nodes by id in one transaction.
func (s *KuzuStore) UpsertNodes(ctx context.Context, nodes []Node) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := validateNodes(nodes); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx(func() error {
		for _, n := range nodes {
			if err := s.putNode(n); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertEdges replaces edges by id in one transaction, rolling back if any
// endpoint is missing.
func (s *KuzuStore) UpsertEdges(ctx context.Context, edges []Edge) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx(func() error {
		return s.putEdges(edges)
	})
}

// DeleteByFile removes the file's nodes (detaching every touching edge),
// its refs, and the edges it owns.
func (s *KuzuStore) DeleteByFile(ctx context.Context, projectID, filePath string) ([]string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	err := s.tx(func() error {
		var err error
		removed, err = s.deleteFile(projectID, filePath)
		return err
	})
	return removed, err
}

// ReplaceFile deletes the previous extraction and inserts fg in one
// transaction.
func (s *KuzuStore) ReplaceFile(ctx context.Context, fg FileGraph) ([]string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := validateFileGraph(fg); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	err := s.tx(func() error {
		var err error
		if removed, err = s.deleteFile(fg.ProjectID, fg.FilePath); err != nil {
			return err
		}
		for _, n := range fg.Nodes {
			if err := s.putNode(n); err != nil {
				return err
			}
		}
		if err := s.putEdges(fg.Edges); err != nil {
			return err
		}
		for _, r := range fg.Refs {
			if err := s.putRef(r); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// ReplaceEdges deletes remove and inserts add in one transaction.
func (s *KuzuStore) ReplaceEdges(ctx context.Context, projectID string, remove []string, add []Edge) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	for _, e := range add {
		if e.ProjectID != projectID {
			return ckgerr.Errorf(ckgerr.InvalidArgument, "edge %s belongs to project %q, not %q", e.ID, e.ProjectID, projectID)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx(func() error {
		for _, id := range remove {
			if err := s.exec(
				"MATCH ()-[r:Link {id: $id, project: $p}]->() DELETE r",
				map[string]any{"id": id, "p": projectID},
			); err != nil {
				return err
			}
		}
		return s.putEdges(add)
	})
}

func (s *KuzuStore) putNode(n Node) error {
	return s.exec(
		`MERGE (n:Node {id: $id})
		 SET n.project = $project,
			n.kind = $kind,
			n.name = $name,
			n.file_path = $fp,
			n.language = $lang,
			n.start_line = $sl,
			n.end_line = $el,
			n.metadata = $meta`,
		map[string]any{
			"id":      n.ID,
			"project": n.ProjectID,
			"kind":    string(n.Kind),
			"name":    n.Name,
			"fp":      n.FilePath,
			"lang":    string(n.Language),
			"sl":      int64(n.StartLine),
			"el":      int64(n.EndLine),
			"meta":    encodeMeta(n.Metadata),
		},
	)
}

// putEdges checks endpoints, then replaces each edge by id.
func (s *KuzuStore) putEdges(edges []Edge) error {
	projects := map[string]string{}
	for _, e := range edges {
		if e.ID == "" || e.ProjectID == "" {
			return ckgerr.Errorf(ckgerr.InvalidArgument, "edge %q: id and project are required", e.ID)
		}
		for _, end := range []string{e.FromID, e.ToID} {
			p, ok := projects[end]
			if !ok {
				rows, err := s.query("MATCH (n:Node {id: $id}) RETURN n.project", map[string]any{"id": end})
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					return ckgerr.Errorf(ckgerr.IndexCorruption, "edge %s (%s) references missing node %s", e.ID, e.Relationship, end)
				}
				p = toString(rows[0][0])
				projects[end] = p
			}
			if p != e.ProjectID {
				return ckgerr.Errorf(ckgerr.InvalidArgument, "edge %s crosses projects %q and %q", e.ID, e.ProjectID, p)
			}
		}

		if err := s.exec("MATCH ()-[r:Link {id: $id}]->() DELETE r", map[string]any{"id": e.ID}); err != nil {
			return err
		}
		if err := s.exec(
			`MATCH (a:Node {id: $from}), (b:Node {id: $to})
			 CREATE (a)-[:Link {
				id: $id,
				project: $project,
				relationship: $rel,
				weight: $w,
				file_path: $fp,
				symbol: $sym,
				metadata: $meta
			 }]->(b)`,
			map[string]any{
				"from":    e.FromID,
				"to":      e.ToID,
				"id":      e.ID,
				"project": e.ProjectID,
				"rel":     string(e.Relationship),
				"w":       e.Weight,
				"fp":      e.FilePath,
				"sym":     e.Meta(MetaSymbol),
				"meta":    encodeMeta(e.Metadata),
			},
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *KuzuStore) putRef(r Ref) error {
	return s.exec(
		`MERGE (r:Ref {id: $id})
		 SET r.project = $project,
			r.file_path = $fp,
			r.from_id = $from,
			r.name = $name,
			r.relationship = $rel,
			r.line = $line`,
		map[string]any{
			"id":      r.ID,
			"project": r.ProjectID,
			"fp":      r.FilePath,
			"from":    r.FromID,
			"name":    r.Name,
			"rel":     string(r.Relationship),
			"line":    int64(r.Line),
		},
	)
}

func (s *KuzuStore) deleteFile(projectID, filePath string) ([]string, error) {
	params := map[string]any{"p": projectID, "fp": filePath}
	rows, err := s.query("MATCH (n:Node {project: $p, file_path: $fp}) RETURN n.id", params)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(rows))
	for _, r := range rows {
		removed = append(removed, toString(r[0]))
	}
	sort.Strings(removed)

	for _, stmt := range []string{
		"MATCH ()-[r:Link {project: $p, file_path: $fp}]->() DELETE r",
		"MATCH (n:Node {project: $p, file_path: $fp}) DETACH DELETE n",
		"MATCH (r:Ref {project: $p, file_path: $fp}) DELETE r",
	} {
		if err := s.exec(stmt, params); err != nil {
			return nil, err
		}
	}
	return removed, nil
}

// ---------- Read operations ----------

const (
	nodeColumns = "n.id, n.project, n.kind, n.name, n.file_path, n.language, n.start_line, n.end_line, n.metadata"
	edgeColumns = "r.id, r.project, a.id, b.id, r.relationship, r.weight, r.file_path, r.metadata"
	refColumns  = "r.id, r.project, r.file_path, r.from_id, r.name, r.relationship, r.line"
)

// GetNode retrieves a node by id, or returns nil if not found.
func (s *KuzuStore) GetNode(_ context.Context, id string) (*Node, error) {
	nodes, err := s.locked().nodes("MATCH (n:Node {id: $id}) RETURN "+nodeColumns, map[string]any{"id": id})
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return &nodes[0], nil
}

// FindEdges returns edges of nodeID in the given direction.
func (s *KuzuStore) FindEdges(_ context.Context, nodeID string, dir Direction, rels ...Relationship) ([]Edge, error) {
	var patterns []string
	switch dir {
	case DirectionOut:
		patterns = []string{"MATCH (a:Node {id: $id})-[r:Link]->(b:Node) RETURN " + edgeColumns}
	case DirectionIn:
		patterns = []string{"MATCH (a:Node)-[r:Link]->(b:Node {id: $id}) RETURN " + edgeColumns}
	default:
		patterns = []string{
			"MATCH (a:Node {id: $id})-[r:Link]->(b:Node) RETURN " + edgeColumns,
			"MATCH (a:Node)-[r:Link]->(b:Node {id: $id}) WHERE a.id <> $id RETURN " + edgeColumns,
		}
	}

	q := s.locked()
	want := relFilter(rels)
	var out []Edge
	for _, p := range patterns {
		edges, err := q.edges(p, map[string]any{"id": nodeID})
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if want(e.Relationship) {
				out = append(out, e)
			}
		}
	}
	sortEdges(out)
	return out, nil
}

// NodesByFile returns the nodes extracted from one file.
func (s *KuzuStore) NodesByFile(_ context.Context, projectID, filePath string) ([]Node, error) {
	return s.locked().nodes(
		"MATCH (n:Node {project: $p, file_path: $fp}) RETURN "+nodeColumns,
		map[string]any{"p": projectID, "fp": filePath},
	)
}

// NodesByName returns nodes named name, optionally ignoring case.
func (s *KuzuStore) NodesByName(_ context.Context, projectID, name string, foldCase bool) ([]Node, error) {
	cypher := "MATCH (n:Node {project: $p, name: $name}) RETURN " + nodeColumns
	if foldCase {
		cypher = "MATCH (n:Node {project: $p}) WHERE lower(n.name) = lower($name) RETURN " + nodeColumns
	}
	return s.locked().nodes(cypher, map[string]any{"p": projectID, "name": name})
}

// NodesByKind returns project nodes of the given kinds.
func (s *KuzuStore) NodesByKind(_ context.Context, projectID string, kinds ...NodeKind) ([]Node, error) {
	q := s.locked()
	if len(kinds) == 0 {
		return q.nodes("MATCH (n:Node {project: $p}) RETURN "+nodeColumns, map[string]any{"p": projectID})
	}
	var out []Node
	for _, k := range kinds {
		nodes, err := q.nodes(
			"MATCH (n:Node {project: $p, kind: $k}) RETURN "+nodeColumns,
			map[string]any{"p": projectID, "k": string(k)},
		)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	SortNodes(out)
	return out, nil
}

// EdgesByRelationship returns project edges with one of rels.
func (s *KuzuStore) EdgesByRelationship(_ context.Context, projectID string, rels ...Relationship) ([]Edge, error) {
	q := s.locked()
	if len(rels) == 0 {
		return q.edges("MATCH (a:Node)-[r:Link {project: $p}]->(b:Node) RETURN "+edgeColumns, map[string]any{"p": projectID})
	}
	var out []Edge
	for _, rel := range rels {
		edges, err := q.edges(
			"MATCH (a:Node)-[r:Link {project: $p, relationship: $rel}]->(b:Node) RETURN "+edgeColumns,
			map[string]any{"p": projectID, "rel": string(rel)},
		)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	sortEdges(out)
	return out, nil
}

// EdgesBySymbol returns the derived edges whose symbol is in names.
func (s *KuzuStore) EdgesBySymbol(_ context.Context, projectID string, names []string) ([]Edge, error) {
	q := s.locked()
	var out []Edge
	for _, name := range names {
		edges, err := q.edges(
			"MATCH (a:Node)-[r:Link {project: $p, symbol: $sym}]->(b:Node) RETURN "+edgeColumns,
			map[string]any{"p": projectID, "sym": name},
		)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	sortEdges(out)
	return out, nil
}

// RefsByName returns refs whose name is in names.
func (s *KuzuStore) RefsByName(_ context.Context, projectID string, names []string) ([]Ref, error) {
	q := s.locked()
	var out []Ref
	for _, name := range names {
		refs, err := q.refs(
			"MATCH (r:Ref {project: $p, name: $name}) RETURN "+refColumns,
			map[string]any{"p": projectID, "name": name},
		)
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}
	sortRefs(out)
	return out, nil
}

// RefsByFile returns the refs found in one file.
func (s *KuzuStore) RefsByFile(_ context.Context, projectID, filePath string) ([]Ref, error) {
	return s.locked().refs(
		"MATCH (r:Ref {project: $p, file_path: $fp}) RETURN "+refColumns,
		map[string]any{"p": projectID, "fp": filePath},
	)
}

// ---------- Graph traversal ----------

// Neighbors performs a bounded BFS, querying one hop at a time.
func (s *KuzuStore) Neighbors(ctx context.Context, nodeID string, dir Direction, depth, maxDepth int) ([]Neighbor, error) {
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
			if err := ctxErr(ctx); err != nil {
				return nil, err
			}
			adj, err := s.adjacent(id, dir)
			if err != nil {
				return nil, err
			}
			for _, nb := range adj {
				if visited[nb.ID] {
					continue
				}
				visited[nb.ID] = true
				result = append(result, Neighbor{Node: nb, Depth: d})
				next = append(next, nb.ID)
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

// adjacent returns nodes one hop from id along dir.
func (s *KuzuStore) adjacent(id string, dir Direction) ([]Node, error) {
	var patterns []string
	if dir == DirectionOut || dir == DirectionBoth {
		patterns = append(patterns, "MATCH (a:Node {id: $id})-[:Link]->(n:Node) RETURN DISTINCT "+nodeColumns)
	}
	if dir == DirectionIn || dir == DirectionBoth {
		patterns = append(patterns, "MATCH (n:Node)-[:Link]->(a:Node {id: $id}) RETURN DISTINCT "+nodeColumns)
	}
	q := s.locked()
	var out []Node
	for _, p := range patterns {
		nodes, err := q.nodes(p, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}

// ---------- Stats ----------

// Stats returns node, edge and ref counts for one project.
func (s *KuzuStore) Stats(_ context.Context, projectID string) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := map[string]any{"p": projectID}
	rows, err := s.query("MATCH (n:Node {project: $p}) RETURN n.kind, count(n)", p)
	if err != nil {
		return nil, err
	}
	st := &Stats{}
	for _, r := range rows {
		switch NodeKind(toString(r[0])) {
		case KindFile:
			st.Files += toInt(r[1])
		case KindEndpoint:
			st.Endpoints += toInt(r[1])
		default:
			st.Symbols += toInt(r[1])
		}
	}
	if st.Edges, err = s.count("MATCH ()-[r:Link {project: $p}]->() RETURN count(r)", p); err != nil {
		return nil, err
	}
	if st.Refs, err = s.count("MATCH (r:Ref {project: $p}) RETURN count(r)", p); err != nil {
		return nil, err
	}
	return st, nil
}

// ---------- Internal helpers ----------

// tx runs fn inside an explicit transaction. Caller holds s.mu.
func (s *KuzuStore) tx(fn func() error) error {
	if err := s.exec("BEGIN TRANSACTION", nil); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := s.exec("ROLLBACK", nil); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return s.exec("COMMIT", nil)
}

// exec runs a Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	var (
		res *kuzu.QueryResult
		err error
	)
	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return ckgerr.Wrap(ckgerr.StoreUnavailable, "kuzu: prepare", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return ckgerr.Wrap(ckgerr.StoreUnavailable, "kuzu: execute", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order. Caller holds s.mu.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "kuzu: prepare", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "kuzu: query", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "kuzu: next", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "kuzu: row values", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func (s *KuzuStore) count(cypher string, params map[string]any) (int, error) {
	rows, err := s.query(cypher, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// lockedReader runs read queries under the store mutex.
type lockedReader struct{ s *KuzuStore }

func (s *KuzuStore) locked() lockedReader { return lockedReader{s: s} }

func (q lockedReader) rows(cypher string, params map[string]any) ([][]any, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	return q.s.query(cypher, params)
}

func (q lockedReader) nodes(cypher string, params map[string]any) ([]Node, error) {
	rows, err := q.rows(cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToNode(r))
	}
	SortNodes(out)
	return out, nil
}

func (q lockedReader) edges(cypher string, params map[string]any) ([]Edge, error) {
	rows, err := q.rows(cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]Edge, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToEdge(r))
	}
	sortEdges(out)
	return out, nil
}

func (q lockedReader) refs(cypher string, params map[string]any) ([]Ref, error) {
	rows, err := q.rows(cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]Ref, 0, len(rows))
	for _, r := range rows {
		out = append(out, Ref{
			ID:           toString(r[0]),
			ProjectID:    toString(r[1]),
			FilePath:     toString(r[2]),
			FromID:       toString(r[3]),
			Name:         toString(r[4]),
			Relationship: Relationship(toString(r[5])),
			Line:         toInt(r[6]),
		})
	}
	sortRefs(out)
	return out, nil
}

// rowToNode converts a nodeColumns row into a Node.
func rowToNode(r []any) Node {
	return Node{
		ID:        toString(r[0]),
		ProjectID: toString(r[1]),
		Kind:      NodeKind(toString(r[2])),
		Name:      toString(r[3]),
		FilePath:  toString(r[4]),
		Language:  Language(toString(r[5])),
		StartLine: toInt(r[6]),
		EndLine:   toInt(r[7]),
		Metadata:  decodeMeta(toString(r[8])),
	}
}

// rowToEdge converts an edgeColumns row into an Edge.
func rowToEdge(r []any) Edge {
	return Edge{
		ID:           toString(r[0]),
		ProjectID:    toString(r[1]),
		FromID:       toString(r[2]),
		ToID:         toString(r[3]),
		Relationship: Relationship(toString(r[4])),
		Weight:       toFloat64(r[5]),
		FilePath:     toString(r[6]),
		Metadata:     decodeMeta(toString(r[7])),
	}
}

func encodeMeta(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeMeta(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
