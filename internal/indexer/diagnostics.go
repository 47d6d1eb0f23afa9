package indexer

import (
	"sort"
	"sync"
	"time"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

// Diagnostic records why a file is missing from, or stale in, the index.
type Diagnostic struct {
	Path    string      `json:"path"`
	Code    ckgerr.Code `json:"code"`
	Message string      `json:"message"`
	Time    time.Time   `json:"time"`
}

// diagnostics keeps the latest diagnostic per file, per project. A file
// that indexes cleanly clears its entry.
type diagnostics struct {
	mu     sync.RWMutex
	byProj map[string]map[string]Diagnostic
}

func newDiagnostics() *diagnostics {
	return &diagnostics{byProj: make(map[string]map[string]Diagnostic)}
}

func (d *diagnostics) record(projectID, path string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.byProj[projectID]
	if m == nil {
		m = make(map[string]Diagnostic)
		d.byProj[projectID] = m
	}
	m[path] = Diagnostic{Path: path, Code: ckgerr.CodeOf(err), Message: err.Error(), Time: time.Now()}
}

func (d *diagnostics) clear(projectID, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byProj[projectID], path)
}

func (d *diagnostics) list(projectID string) []Diagnostic {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Diagnostic, 0, len(d.byProj[projectID]))
	for _, diag := range d.byProj[projectID] {
		out = append(out, diag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// staleFiles holds files whose last apply failed after it may have written
// part of the file. They are re-extracted regardless of their stored hash
// until an apply succeeds.
type staleFiles struct {
	mu     sync.Mutex
	byProj map[string]map[string]bool
}

func newStaleFiles() *staleFiles {
	return &staleFiles{byProj: make(map[string]map[string]bool)}
}

func (s *staleFiles) mark(projectID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.byProj[projectID]
	if m == nil {
		m = make(map[string]bool)
		s.byProj[projectID] = m
	}
	m[path] = true
}

func (s *staleFiles) clear(projectID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byProj[projectID], path)
}

func (s *staleFiles) has(projectID, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byProj[projectID][path]
}

// all returns every stale file as project id -> sorted paths.
func (s *staleFiles) all() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.byProj))
	for projectID, m := range s.byProj {
		for p := range m {
			out[projectID] = append(out[projectID], p)
		}
		sort.Strings(out[projectID])
	}
	return out
}
