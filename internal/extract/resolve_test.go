package extract

import (
	"testing"

	"github.com/dusk-indust/ckg/internal/graph"
)

const tsMonorepo = "../../testdata/fixtures/ts_monorepo"

var tsMonorepoFiles = []string{
	"packages/logger/src/index.ts",
	"packages/db/src/index.ts",
	"packages/db/src/queries.ts",
	"src/app.ts",
	"src/utils.ts",
}

type resolveCase struct {
	name      string
	specifier string
	from      string
	want      string
	wantOK    bool
}

func runResolveCases(t *testing.T, r *Resolver, lang graph.Language, tests []resolveCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.specifier, tt.from, lang)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.specifier, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.specifier, got, tt.want)
			}
		})
	}
}

// --- TypeScript / JavaScript ---

func TestResolveTS_Relative(t *testing.T) {
	r := NewResolver("", []string{
		"src/index.ts",
		"src/service.ts",
		"src/types.ts",
		"src/sub/handler.ts",
		"src/components/index.ts",
	})
	runResolveCases(t, r, graph.LangTypeScript, []resolveCase{
		{"dot-slash exact", "./service", "src/index.ts", "src/service.ts", true},
		{"parent dir", "../types", "src/sub/handler.ts", "src/types.ts", true},
		{"index file", "./components", "src/index.ts", "src/components/index.ts", true},
		{"esm js suffix on ts file", "./service.js", "src/index.ts", "src/service.ts", true},
		{"not found", "./nonexistent", "src/index.ts", "", false},
		{"external package", "lodash", "src/index.ts", "", false},
	})
}

func TestResolveJS_Relative(t *testing.T) {
	r := NewResolver("", []string{"a.js", "b.js", "lib/util.mjs"})
	runResolveCases(t, r, graph.LangJavaScript, []resolveCase{
		{"explicit extension", "./b.js", "a.js", "b.js", true},
		{"probed extension", "./b", "a.js", "b.js", true},
		{"mjs", "./lib/util", "a.js", "lib/util.mjs", true},
	})
}

func TestResolveTS_Workspaces(t *testing.T) {
	r := NewResolver(tsMonorepo, tsMonorepoFiles)
	if len(r.tsWorkspaces) != 2 {
		t.Fatalf("expected 2 workspaces, found %d", len(r.tsWorkspaces))
	}
	runResolveCases(t, r, graph.LangTypeScript, []resolveCase{
		{"main field", "@test/logger", "src/app.ts", "packages/logger/src/index.ts", true},
		{"exports dot", "@test/db", "src/app.ts", "packages/db/src/index.ts", true},
		{"conditional subpath export", "@test/db/queries", "src/app.ts", "packages/db/src/queries.ts", true},
		{"unknown scope", "@other/pkg", "src/app.ts", "", false},
	})
}

// --- Go ---

func TestResolveGo(t *testing.T) {
	r := NewResolver("", []string{
		"internal/graph/store.go",
		"internal/graph/schema.go",
		"internal/graph/schema_test.go",
		"cmd/main.go",
		"root.go",
	})
	r.goModPath = "github.com/example/project"
	runResolveCases(t, r, graph.LangGo, []resolveCase{
		{"local package", "github.com/example/project/internal/graph", "cmd/main.go", "internal/graph/schema.go", true},
		{"module root", "github.com/example/project", "cmd/main.go", "root.go", true},
		{"stdlib", "fmt", "cmd/main.go", "", false},
		{"external module", "github.com/other/lib", "cmd/main.go", "", false},
		{"module path prefix only", "github.com/example/projectx/pkg", "cmd/main.go", "", false},
	})
}

func TestResolveGo_ReadsGoMod(t *testing.T) {
	r := NewResolver("../../testdata/fixtures/go_module", []string{
		"cmd/app/main.go",
		"internal/store/helpers.go",
		"internal/store/store.go",
	})
	got, ok := r.Resolve("example.com/shop/internal/store", "cmd/app/main.go", graph.LangGo)
	if !ok || got != "internal/store/helpers.go" {
		t.Fatalf("Resolve = %q, %v; want internal/store/helpers.go", got, ok)
	}
}

// --- Python ---

func TestResolvePython(t *testing.T) {
	r := NewResolver("", []string{
		"pkg/__init__.py",
		"pkg/service.py",
		"pkg/models.py",
		"pkg/sub/handler.py",
		"app/main.py",
	})
	runResolveCases(t, r, graph.LangPython, []resolveCase{
		{"relative", ".models", "pkg/service.py", "pkg/models.py", true},
		{"parent relative", "..models", "pkg/sub/handler.py", "pkg/models.py", true},
		{"bare dot", ".", "pkg/service.py", "pkg/__init__.py", true},
		{"absolute in repo", "pkg.models", "app/main.py", "pkg/models.py", true},
		{"absolute package", "pkg", "app/main.py", "pkg/__init__.py", true},
		{"external", "numpy", "app/main.py", "", false},
	})
}

// --- Rust ---

func TestResolveRust(t *testing.T) {
	r := NewResolver("", []string{
		"src/main.rs",
		"src/model.rs",
		"src/service.rs",
		"src/handlers/mod.rs",
		"src/handlers/users.rs",
	})
	runResolveCases(t, r, graph.LangRust, []resolveCase{
		{"crate use list", "crate::model::{Repository, User}", "src/service.rs", "src/model.rs", true},
		{"crate item", "crate::model::User", "src/service.rs", "src/model.rs", true},
		{"mod dir", "crate::handlers", "src/main.rs", "src/handlers/mod.rs", true},
		{"self", "self::users", "src/handlers/mod.rs", "src/handlers/users.rs", true},
		{"super", "super::model", "src/handlers/users.rs", "src/model.rs", true},
		{"glob", "crate::handlers::*", "src/main.rs", "src/handlers/mod.rs", true},
		{"external crate", "std::collections::HashMap", "src/main.rs", "", false},
	})
}

// --- File set maintenance ---

func TestResolver_AddRemoveFile(t *testing.T) {
	r := NewResolver("", []string{"a.js"})
	if _, ok := r.Resolve("./b", "a.js", graph.LangJavaScript); ok {
		t.Fatal("b.js is not known yet")
	}
	r.AddFile("b.js")
	if got, ok := r.Resolve("./b", "a.js", graph.LangJavaScript); !ok || got != "b.js" {
		t.Fatalf("Resolve after AddFile = %q, %v", got, ok)
	}
	if !r.Has("b.js") {
		t.Error("Has(b.js) = false")
	}
	r.RemoveFile("b.js")
	if _, ok := r.Resolve("./b", "a.js", graph.LangJavaScript); ok {
		t.Fatal("b.js should be forgotten")
	}
}

func TestResolver_PackageFiles(t *testing.T) {
	r := NewResolver("", []string{"pkg/b.go", "pkg/a.go", "other/c.go"})
	got := r.PackageFiles("pkg/a.go")
	if len(got) != 2 || got[0] != "pkg/a.go" || got[1] != "pkg/b.go" {
		t.Fatalf("PackageFiles = %v", got)
	}
}

func TestResolver_FilesUnder(t *testing.T) {
	r := NewResolver("", []string{"pkg/b.go", "pkg/sub/a.go", "pkgx/c.go", "root.go"})
	got := r.FilesUnder("pkg")
	if len(got) != 2 || got[0] != "pkg/b.go" || got[1] != "pkg/sub/a.go" {
		t.Fatalf("FilesUnder(pkg) = %v", got)
	}
	if all := r.FilesUnder("."); len(all) != 4 {
		t.Fatalf("FilesUnder(.) = %v", all)
	}
}

func TestResolver_NoWorkspaceMetadata(t *testing.T) {
	r := NewResolver("/tmp/nonexistent-dir-12345", []string{"src/app.ts", "src/utils.ts"})
	if len(r.tsWorkspaces) != 0 {
		t.Errorf("expected no workspaces, got %d", len(r.tsWorkspaces))
	}
	if r.goModPath != "" {
		t.Errorf("expected empty goModPath, got %q", r.goModPath)
	}
	if got, ok := r.Resolve("./utils", "src/app.ts", graph.LangTypeScript); !ok || got != "src/utils.ts" {
		t.Fatalf("relative import should resolve without package.json, got %q, %v", got, ok)
	}
}

func TestResolvers_PerProject(t *testing.T) {
	rs := NewResolvers()
	rs.Set("p1", NewResolver("", []string{"a.js", "b.js"}))
	if got, ok := rs.ResolveImport("p1", "./b", "a.js", graph.LangJavaScript); !ok || got != "b.js" {
		t.Fatalf("p1 resolve = %q, %v", got, ok)
	}
	if _, ok := rs.ResolveImport("p2", "./b", "a.js", graph.LangJavaScript); ok {
		t.Fatal("p2 has no files")
	}
	if rs.Get("p2") != rs.Get("p2") {
		t.Fatal("Get should return a stable resolver")
	}
}
