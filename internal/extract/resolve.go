package extract

import (
	"bufio"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dusk-indust/ckg/internal/graph"
)

// Resolver rewrites raw import specifiers into repo-relative file paths that
// match File node names. It tracks the project's current file set and any
// workspace metadata (package.json workspaces, go.mod) found at the root.
// Resolution never touches the filesystem; only Rescan does.
type Resolver struct {
	mu           sync.RWMutex
	repoRoot     string
	fileSet      map[string]bool
	dirIndex     map[string]map[string]bool
	tsWorkspaces map[string]*tsWorkspace
	goModPath    string
}

// tsWorkspace holds metadata about a single npm/bun workspace package.
type tsWorkspace struct {
	dir            string            // repo-relative directory (e.g. "packages/db")
	mainFile       string            // default export target, repo-relative
	subpathExports map[string]string // "./queries" → "packages/db/src/queries.ts"
}

// NewResolver builds a Resolver from the repository root and the set of
// known repo-relative file paths. repoRoot may be empty, which disables
// workspace-aware resolution.
func NewResolver(repoRoot string, knownFiles []string) *Resolver {
	r := &Resolver{
		repoRoot: repoRoot,
		fileSet:  make(map[string]bool, len(knownFiles)),
		dirIndex: make(map[string]map[string]bool),
	}
	for _, f := range knownFiles {
		r.addLocked(f)
	}
	r.Rescan()
	return r
}

// AddFile makes p resolvable.
func (r *Resolver) AddFile(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(p)
}

// RemoveFile forgets p.
func (r *Resolver) RemoveFile(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p = path.Clean(filepath.ToSlash(p))
	delete(r.fileSet, p)
	if files := r.dirIndex[path.Dir(p)]; files != nil {
		delete(files, p)
	}
}

// Has reports whether p is a known file.
func (r *Resolver) Has(p string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fileSet[p]
}

// PackageFiles returns the known files sharing p's directory, sorted.
func (r *Resolver) PackageFiles(p string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for f := range r.dirIndex[path.Dir(p)] {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FilesUnder returns the known files below dir, sorted. An empty dir or
// "." returns every file.
func (r *Resolver) FilesUnder(dir string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dir = path.Clean(filepath.ToSlash(dir))
	var out []string
	for f := range r.fileSet {
		if dir == "." || strings.HasPrefix(f, dir+"/") {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Resolver) addLocked(p string) {
	p = path.Clean(filepath.ToSlash(p))
	r.fileSet[p] = true
	dir := path.Dir(p)
	if r.dirIndex[dir] == nil {
		r.dirIndex[dir] = make(map[string]bool)
	}
	r.dirIndex[dir][p] = true
}

// Rescan reloads workspace metadata from the repository root.
func (r *Resolver) Rescan() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tsWorkspaces = make(map[string]*tsWorkspace)
	r.goModPath = ""
	if r.repoRoot == "" {
		return
	}
	r.scanTSWorkspaces()
	r.scanGoMod()
}

// Resolve maps specifier, imported from fromFile, to a known file path.
func (r *Resolver) Resolve(specifier, fromFile string, lang graph.Language) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch lang {
	case graph.LangTypeScript, graph.LangJavaScript:
		return r.resolveTS(specifier, fromFile)
	case graph.LangGo:
		return r.resolveGo(specifier)
	case graph.LangPython:
		return r.resolvePython(specifier, fromFile)
	case graph.LangRust:
		return r.resolveRust(specifier, fromFile)
	}
	return "", false
}

// --- TypeScript / JavaScript resolution ---

var tsExtensions = []string{
	".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs",
	"/index.ts", "/index.tsx", "/index.js", "/index.jsx",
}

func (r *Resolver) resolveTS(importPath, sourceFile string) (string, bool) {
	// Relative imports.
	if strings.HasPrefix(importPath, "./") || strings.HasPrefix(importPath, "../") {
		base := path.Join(path.Dir(sourceFile), importPath)
		if resolved, ok := r.probeFile(base, tsExtensions); ok {
			return resolved, true
		}
		// ESM sources import "./x.js" while the file on disk is x.ts.
		if ext := path.Ext(base); ext == ".js" || ext == ".mjs" || ext == ".cjs" || ext == ".jsx" {
			return r.probeFile(strings.TrimSuffix(base, ext), tsExtensions)
		}
		return "", false
	}

	// Workspace package imports.
	return r.resolveTSWorkspace(importPath)
}

func (r *Resolver) resolveTSWorkspace(importPath string) (string, bool) {
	// Try exact match first (e.g. "@test/logger" → mainFile).
	if ws, ok := r.tsWorkspaces[importPath]; ok {
		if ws.mainFile != "" {
			return ws.mainFile, true
		}
		return "", false // workspace has no default export
	}

	// Try splitting into package + subpath.
	// For scoped packages: "@scope/pkg/sub/path" → package="@scope/pkg", subpath="./sub/path"
	// For unscoped: "pkg/sub/path" → package="pkg", subpath="./sub/path"
	var pkgName, subpath string
	if strings.HasPrefix(importPath, "@") {
		afterScope := strings.Index(importPath[1:], "/")
		if afterScope == -1 {
			return "", false // bare @scope (invalid)
		}
		scopeEnd := afterScope + 1
		secondSlash := strings.Index(importPath[scopeEnd+1:], "/")
		if secondSlash == -1 {
			return "", false
		}
		splitAt := scopeEnd + 1 + secondSlash
		pkgName = importPath[:splitAt]
		subpath = "./" + importPath[splitAt+1:]
	} else {
		slash := strings.Index(importPath, "/")
		if slash == -1 {
			return "", false // bare package, exact match already failed
		}
		pkgName = importPath[:slash]
		subpath = "./" + importPath[slash+1:]
	}

	ws, ok := r.tsWorkspaces[pkgName]
	if !ok {
		return "", false // external package
	}
	if target, ok := ws.subpathExports[subpath]; ok {
		return target, true
	}
	// Fallback: try resolving subpath as a file relative to the workspace dir.
	return r.probeFile(path.Join(ws.dir, subpath[2:]), tsExtensions)
}

// --- Go resolution ---

// resolveGo maps an in-module import path to the first non-test file of the
// package directory. The linker widens Go imports to the whole package.
func (r *Resolver) resolveGo(importPath string) (string, bool) {
	if r.goModPath == "" {
		return "", false
	}
	if importPath != r.goModPath && !strings.HasPrefix(importPath, r.goModPath+"/") {
		return "", false // stdlib or external module
	}
	relDir := strings.TrimPrefix(strings.TrimPrefix(importPath, r.goModPath), "/")
	if relDir == "" {
		relDir = "."
	}
	files := make([]string, 0, len(r.dirIndex[relDir]))
	for f := range r.dirIndex[relDir] {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		if strings.HasSuffix(f, ".go") && !strings.HasSuffix(f, "_test.go") {
			return f, true
		}
	}
	return "", false
}

// --- Python resolution ---

func (r *Resolver) resolvePython(importPath, sourceFile string) (string, bool) {
	if !strings.HasPrefix(importPath, ".") {
		// Absolute import: only modules inside the repository resolve.
		base := strings.ReplaceAll(importPath, ".", "/")
		return r.probeFile(base, []string{".py", "/__init__.py"})
	}

	// Count leading dots for parent directory traversal.
	dots := 0
	for _, c := range importPath {
		if c != '.' {
			break
		}
		dots++
	}
	modulePart := importPath[dots:]

	// One dot = same package (current dir), two dots = parent, etc.
	baseDir := path.Dir(sourceFile)
	for i := 1; i < dots; i++ {
		baseDir = path.Dir(baseDir)
	}

	if modulePart == "" {
		return r.probeFile(path.Join(baseDir, "__init__"), []string{".py"})
	}
	base := path.Join(baseDir, strings.ReplaceAll(modulePart, ".", "/"))
	return r.probeFile(base, []string{".py", "/__init__.py"})
}

// --- Rust resolution ---

var rustExtensions = []string{".rs", "/mod.rs"}

func (r *Resolver) resolveRust(importPath, sourceFile string) (string, bool) {
	// Strip use-lists and aliases: "crate::model::{A, B}" → "crate::model".
	if idx := strings.Index(importPath, "::{"); idx != -1 {
		importPath = importPath[:idx]
	}
	if idx := strings.Index(importPath, " as "); idx != -1 {
		importPath = importPath[:idx]
	}
	importPath = strings.TrimSuffix(importPath, "::*")

	var bases []string
	var segments []string
	switch {
	case strings.HasPrefix(importPath, "crate::"):
		segments = strings.Split(strings.TrimPrefix(importPath, "crate::"), "::")
		bases = []string{"src", "."}
		if srcDir := findCrateRoot(sourceFile); srcDir != "" {
			bases = append(bases, srcDir)
		}
	case strings.HasPrefix(importPath, "self::"):
		segments = strings.Split(strings.TrimPrefix(importPath, "self::"), "::")
		bases = []string{path.Dir(sourceFile)}
	case strings.HasPrefix(importPath, "super::"):
		segments = strings.Split(strings.TrimPrefix(importPath, "super::"), "::")
		bases = []string{path.Dir(path.Dir(sourceFile))}
	default:
		return "", false // external crate
	}

	// The path may end in an item rather than a module: try the longest
	// module prefix first.
	for n := len(segments); n > 0; n-- {
		rel := strings.Join(segments[:n], "/")
		for _, base := range bases {
			if resolved, ok := r.probeFile(path.Join(base, rel), rustExtensions); ok {
				return resolved, true
			}
		}
	}
	return "", false
}

// findCrateRoot walks up from a file path to find the nearest "src" directory,
// which is the conventional Rust crate source root.
func findCrateRoot(filePath string) string {
	dir := path.Dir(filePath)
	for dir != "." && dir != "/" && dir != "" {
		if path.Base(dir) == "src" {
			return dir
		}
		dir = path.Dir(dir)
	}
	return ""
}

// --- Shared helpers ---

// probeFile checks if basePath (with any of the given extensions appended)
// exists in the known file set.
func (r *Resolver) probeFile(basePath string, extensions []string) (string, bool) {
	basePath = path.Clean(basePath)
	if r.fileSet[basePath] {
		return basePath, true
	}
	for _, ext := range extensions {
		if candidate := basePath + ext; r.fileSet[candidate] {
			return candidate, true
		}
	}
	return "", false
}

// --- Workspace / module scanning ---

// packageJSON is a minimal representation for reading package.json files.
type packageJSON struct {
	Name       string          `json:"name"`
	Main       string          `json:"main"`
	Workspaces json.RawMessage `json:"workspaces"`
	Exports    json.RawMessage `json:"exports"`
}

func (r *Resolver) scanTSWorkspaces() {
	data, err := os.ReadFile(filepath.Join(r.repoRoot, "package.json"))
	if err != nil {
		return
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return
	}

	for _, pattern := range parseWorkspacePatterns(pkg.Workspaces) {
		matches, err := filepath.Glob(filepath.Join(r.repoRoot, pattern))
		if err != nil {
			continue
		}
		for _, dir := range matches {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				r.loadWorkspacePackage(dir)
			}
		}
	}
}

// parseWorkspacePatterns accepts ["packages/*"] or {"packages": ["packages/*"]}.
func parseWorkspacePatterns(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Packages
	}
	return nil
}

func (r *Resolver) loadWorkspacePackage(absDir string) {
	data, err := os.ReadFile(filepath.Join(absDir, "package.json"))
	if err != nil {
		return
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil || pkg.Name == "" {
		return
	}
	rel, err := filepath.Rel(r.repoRoot, absDir)
	if err != nil {
		return
	}
	relDir := filepath.ToSlash(rel)

	ws := &tsWorkspace{dir: relDir, subpathExports: make(map[string]string)}
	r.parseExports(ws, pkg.Exports)

	if ws.mainFile == "" && pkg.Main != "" {
		if resolved, ok := r.probeFile(path.Join(relDir, pkg.Main), tsExtensions); ok {
			ws.mainFile = resolved
		}
	}
	// Last resort: index.ts / index.js in the package root or src/.
	if ws.mainFile == "" {
		for _, try := range []string{path.Join(relDir, "src", "index"), path.Join(relDir, "index")} {
			if resolved, ok := r.probeFile(try, tsExtensions); ok {
				ws.mainFile = resolved
				break
			}
		}
	}
	r.tsWorkspaces[pkg.Name] = ws
}

func (r *Resolver) parseExports(ws *tsWorkspace, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	// "exports": "./src/index.ts"
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if resolved, ok := r.probeFile(path.Join(ws.dir, str), tsExtensions); ok {
			ws.mainFile = resolved
		}
		return
	}
	// "exports": {".": "./src/index.ts", "./queries": "./src/queries.ts"}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return
	}
	for key, val := range obj {
		target := resolveExportValue(val)
		if target == "" {
			continue
		}
		finalPath, ok := r.probeFile(path.Join(ws.dir, target), tsExtensions)
		if !ok {
			continue
		}
		if key == "." {
			ws.mainFile = finalPath
		} else {
			ws.subpathExports[key] = finalPath
		}
	}
}

// resolveExportValue extracts a file path from an export value, which can be
// a string or a conditional object {"import": "...", "require": "...", "default": "..."}.
func resolveExportValue(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"import", "default", "require"} {
		if v, ok := obj[key]; ok {
			return resolveExportValue(v)
		}
	}
	return ""
}

func (r *Resolver) scanGoMod() {
	f, err := os.Open(filepath.Join(r.repoRoot, "go.mod"))
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "module ") {
			r.goModPath = strings.TrimSpace(strings.TrimPrefix(line, "module"))
			return
		}
	}
}

// Resolvers holds one Resolver per project.
type Resolvers struct {
	mu   sync.RWMutex
	byID map[string]*Resolver
}

// NewResolvers creates an empty registry.
func NewResolvers() *Resolvers {
	return &Resolvers{byID: make(map[string]*Resolver)}
}

// Set installs the resolver of projectID.
func (rs *Resolvers) Set(projectID string, r *Resolver) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.byID[projectID] = r
}

// Get returns the resolver of projectID, creating an empty one on first use.
func (rs *Resolvers) Get(projectID string) *Resolver {
	rs.mu.RLock()
	r := rs.byID[projectID]
	rs.mu.RUnlock()
	if r != nil {
		return r
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if r = rs.byID[projectID]; r == nil {
		r = NewResolver("", nil)
		rs.byID[projectID] = r
	}
	return r
}

// ResolveImport implements ImportResolver.
func (rs *Resolvers) ResolveImport(projectID, specifier, fromFile string, lang graph.Language) (string, bool) {
	return rs.Get(projectID).Resolve(specifier, fromFile, lang)
}
