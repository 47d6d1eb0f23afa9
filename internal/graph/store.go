package graph

import (
	"context"
	"io"
)

// DefaultMaxDepth bounds Neighbors traversal when the caller passes no limit.
const DefaultMaxDepth = 3

// Store is the interface for the knowledge graph backend.
// Implementations: KuzuStore (persistent), MemStore (embedded and tests).
// Every query is scoped by project. Driver failures surface as
// ckgerr.StoreUnavailable; absent data is an empty result, never an error.
type Store interface {
	io.Closer

	// Schema setup, idempotent.
	InitSchema(ctx context.Context) error

	// Write operations. Each call applies fully or not at all. Edges whose
	// endpoints do not exist are rejected with ckgerr.IndexCorruption.
	UpsertNodes(ctx context.Context, nodes []Node) error
	UpsertEdges(ctx context.Context, edges []Edge) error

	// DeleteByFile removes the file's nodes and refs, the edges it owns, and
	// every edge touching a removed node. It returns the removed node ids.
	DeleteByFile(ctx context.Context, projectID, filePath string) ([]string, error)

	// ReplaceFile runs DeleteByFile followed by inserting fg in a single
	// transaction, returning the ids of the nodes that were removed.
	ReplaceFile(ctx context.Context, fg FileGraph) ([]string, error)

	// ReplaceEdges deletes the edges in remove and upserts add atomically.
	ReplaceEdges(ctx context.Context, projectID string, remove []string, add []Edge) error

	// Read operations.
	GetNode(ctx context.Context, id string) (*Node, error)
	FindEdges(ctx context.Context, nodeID string, dir Direction, rels ...Relationship) ([]Edge, error)
	NodesByFile(ctx context.Context, projectID, filePath string) ([]Node, error)
	NodesByName(ctx context.Context, projectID, name string, foldCase bool) ([]Node, error)
	NodesByKind(ctx context.Context, projectID string, kinds ...NodeKind) ([]Node, error)
	EdgesByRelationship(ctx context.Context, projectID string, rels ...Relationship) ([]Edge, error)
	EdgesBySymbol(ctx context.Context, projectID string, names []string) ([]Edge, error)
	RefsByName(ctx context.Context, projectID string, names []string) ([]Ref, error)
	RefsByFile(ctx context.Context, projectID, filePath string) ([]Ref, error)

	// Graph traversal. Neighbors runs a breadth-first search of at most
	// min(depth, maxDepth) hops; maxDepth <= 0 means DefaultMaxDepth.
	Neighbors(ctx context.Context, nodeID string, dir Direction, depth, maxDepth int) ([]Neighbor, error)

	// Stats.
	Stats(ctx context.Context, projectID string) (*Stats, error)
}

// Direction controls which edges of a node are followed.
type Direction string

const (
	DirectionOut  Direction = "out"  // edges where the node is the source
	DirectionIn   Direction = "in"   // edges where the node is the target
	DirectionBoth Direction = "both" // either
)

// Neighbor is a node reached by Neighbors, with its hop distance.
type Neighbor struct {
	Node  Node `json:"node"`
	Depth int  `json:"depth"`
}

// clampDepth applies the DefaultMaxDepth bound.
func clampDepth(depth, maxDepth int) int {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if depth > maxDepth {
		return maxDepth
	}
	return depth
}
