package graph

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// idNamespace scopes every derived UUID to this engine.
var idNamespace = uuid.MustParse("6f1d8a52-93c4-4b7e-9a0e-1c5b2d7e4f30")

func derive(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "\x00"))).String()
}

// NodeID returns the deterministic id of a node. Re-extracting an unchanged
// file yields the same ids.
func NodeID(projectID, filePath string, kind NodeKind, name string, startLine int) string {
	return derive("node", projectID, filePath, string(kind), name, strconv.Itoa(startLine))
}

// EdgeID returns the deterministic id of an edge.
func EdgeID(projectID, fromID, toID string, rel Relationship) string {
	return derive("edge", projectID, fromID, toID, string(rel))
}

// RefID returns the deterministic id of a ref. ordinal disambiguates
// repeated references on the same line.
func RefID(projectID, filePath, fromID, name string, rel Relationship, line, ordinal int) string {
	return derive("ref", projectID, filePath, fromID, name, string(rel), strconv.Itoa(line), strconv.Itoa(ordinal))
}
