package parse

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/graph"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// findSymbol returns the first Symbol whose Name matches, or nil.
func findSymbol(symbols []Symbol, name string) *Symbol {
	for i := range symbols {
		if symbols[i].Name == name {
			return &symbols[i]
		}
	}
	return nil
}

func importSpecs(st *SyntaxTree) []string {
	out := make([]string, 0, len(st.Imports))
	for _, imp := range st.Imports {
		out = append(out, imp.Specifier)
	}
	return out
}

func usedNames(st *SyntaxTree, kind UseKind) []string {
	var out []string
	for _, u := range st.Uses {
		if u.Kind == kind {
			out = append(out, u.Name)
		}
	}
	return out
}

// readFixture reads a test fixture file relative to the project root.
// Tests run from internal/parse/, so the relative path is ../../testdata/...
func readFixture(t *testing.T, relPath string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../" + relPath)
	require.NoError(t, err, "reading fixture %s", relPath)
	return data
}

// assertLineRange checks that StartLine and EndLine are populated and valid.
func assertLineRange(t *testing.T, sym *Symbol) {
	t.Helper()
	assert.Greater(t, sym.StartLine, 0, "StartLine should be > 0 for %s", sym.Name)
	assert.LessOrEqual(t, sym.StartLine, sym.EndLine, "StartLine <= EndLine for %s", sym.Name)
}

func parse(t *testing.T, path, src string, lang graph.Language) *SyntaxTree {
	t.Helper()
	p := NewTreeSitterParser()
	defer p.Close()
	st, err := p.Parse(context.Background(), path, []byte(src), lang)
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

// ---------------------------------------------------------------------------
// TestTreeSitterParser_SupportedLanguages
// ---------------------------------------------------------------------------

func TestTreeSitterParser_SupportedLanguages(t *testing.T) {
	p := NewTreeSitterParser()
	defer p.Close()

	assert.Equal(t, []graph.Language{
		graph.LangGo, graph.LangJavaScript, graph.LangPython, graph.LangRust, graph.LangTypeScript,
	}, p.SupportedLanguages())

	only := NewTreeSitterParser(graph.LangGo)
	assert.Equal(t, []graph.Language{graph.LangGo}, only.SupportedLanguages())
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]graph.Language{
		"main.go":      graph.LangGo,
		"src/app.tsx":  graph.LangTypeScript,
		"lib/util.mjs": graph.LangJavaScript,
		"pkg/mod.py":   graph.LangPython,
		"src/lib.rs":   graph.LangRust,
		"web/INDEX.JS": graph.LangJavaScript,
	}
	for path, want := range cases {
		got, ok := DetectLanguage(path)
		assert.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}
	_, ok := DetectLanguage("README.md")
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// TestTreeSitterParser_Go
// ---------------------------------------------------------------------------

func TestTreeSitterParser_Go(t *testing.T) {
	p := NewTreeSitterParser()
	defer p.Close()
	ctx := context.Background()

	t.Run("model.go", func(t *testing.T) {
		src := readFixture(t, "testdata/fixtures/go_project/model.go")
		st, err := p.Parse(ctx, "model.go", src, graph.LangGo)
		require.NoError(t, err)

		assert.Equal(t, "model.go", st.Path)
		assert.Equal(t, graph.LangGo, st.Language)
		assert.Greater(t, st.Lines, 0)
		assert.Zero(t, st.ErrorCount)

		user := findSymbol(st.Symbols, "User")
		require.NotNil(t, user, "User symbol should exist")
		assert.Equal(t, SymbolType, user.Kind)
		assert.True(t, user.Exported)
		assert.Contains(t, user.Doc, "represents a system user")
		assertLineRange(t, user)

		repo := findSymbol(st.Symbols, "Repository")
		require.NotNil(t, repo, "Repository symbol should exist")
		assert.Equal(t, SymbolInterface, repo.Kind)

		newUser := findSymbol(st.Symbols, "newUser")
		require.NotNil(t, newUser, "newUser symbol should exist")
		assert.Equal(t, SymbolFunction, newUser.Kind)
		assert.False(t, newUser.Exported)
		assert.Empty(t, newUser.Doc)
		assert.Equal(t, "func newUser(name, email string) *User", newUser.Signature)
		assertLineRange(t, newUser)

		assert.Empty(t, st.Imports, "model.go has no imports")
	})

	t.Run("service.go", func(t *testing.T) {
		src := readFixture(t, "testdata/fixtures/go_project/service.go")
		st, err := p.Parse(ctx, "service.go", src, graph.LangGo)
		require.NoError(t, err)

		gu := findSymbol(st.Symbols, "GetUser")
		require.NotNil(t, gu, "GetUser symbol should exist")
		assert.Equal(t, SymbolMethod, gu.Kind)
		assert.Equal(t, "UserService", gu.Parent)
		assert.True(t, gu.Exported)
		assert.Greater(t, gu.BodyLine, 0)

		assert.Equal(t, []string{"fmt"}, importSpecs(st))

		calls := usedNames(st, UseCall)
		assert.Contains(t, calls, "newUser")
		assert.Contains(t, calls, "Errorf")
		assert.Contains(t, usedNames(st, UseReference), "Repository")
	})

	t.Run("entry points", func(t *testing.T) {
		st := parse(t, "cmd/main.go", "package main\n\nfunc main() {}\n\nfunc init() {}\n\nfunc helper() {}\n", graph.LangGo)
		assert.True(t, findSymbol(st.Symbols, "main").EntryPoint)
		assert.True(t, findSymbol(st.Symbols, "init").EntryPoint)
		assert.False(t, findSymbol(st.Symbols, "helper").EntryPoint)

		st = parse(t, "x_test.go", "package x\n\nfunc TestThing(t *testing.T) {}\n", graph.LangGo)
		assert.True(t, findSymbol(st.Symbols, "TestThing").EntryPoint)
	})

	t.Run("constants and variables", func(t *testing.T) {
		st := parse(t, "c.go", "package c\n\nconst Max = 3\n\nvar counter int\n", graph.LangGo)
		max := findSymbol(st.Symbols, "Max")
		require.NotNil(t, max)
		assert.Equal(t, SymbolConstant, max.Kind)
		assert.True(t, max.Exported)
		counter := findSymbol(st.Symbols, "counter")
		require.NotNil(t, counter)
		assert.Equal(t, SymbolVariable, counter.Kind)
		assert.False(t, counter.Exported)
	})
}

// ---------------------------------------------------------------------------
// TestTreeSitterParser_TypeScript
// ---------------------------------------------------------------------------

func TestTreeSitterParser_TypeScript(t *testing.T) {
	src := `import { helper } from "./util";
import * as path from "path";

/** Shape is a drawable thing. */
export interface Shape {
  area(): number;
}

export class Circle extends Base implements Shape {
  constructor(private r: number) { super(); }

  area(): number {
    return helper(this.r);
  }

  private secret(): void {}
}

export type ID = string;

export enum Color { Red, Green }

export const compute = (x: number): number => helper(x);

const LIMIT = 10;

function internal() {
  return new Circle(LIMIT);
}
`
	st := parse(t, "src/shape.ts", src, graph.LangTypeScript)
	assert.Zero(t, st.ErrorCount)

	shape := findSymbol(st.Symbols, "Shape")
	require.NotNil(t, shape)
	assert.Equal(t, SymbolInterface, shape.Kind)
	assert.True(t, shape.Exported)
	assert.Contains(t, shape.Doc, "drawable")

	circle := findSymbol(st.Symbols, "Circle")
	require.NotNil(t, circle)
	assert.Equal(t, SymbolClass, circle.Kind)
	assertLineRange(t, circle)

	area := findSymbol(st.Symbols, "area")
	require.NotNil(t, area)
	assert.Equal(t, SymbolMethod, area.Kind)
	assert.Equal(t, "Circle", area.Parent)
	assert.True(t, area.Exported)

	secret := findSymbol(st.Symbols, "secret")
	require.NotNil(t, secret)
	assert.False(t, secret.Exported)

	id := findSymbol(st.Symbols, "ID")
	require.NotNil(t, id)
	assert.Equal(t, SymbolType, id.Kind)

	color := findSymbol(st.Symbols, "Color")
	require.NotNil(t, color)
	assert.Equal(t, SymbolEnum, color.Kind)

	compute := findSymbol(st.Symbols, "compute")
	require.NotNil(t, compute)
	assert.Equal(t, SymbolFunction, compute.Kind)
	assert.True(t, compute.Exported)

	limit := findSymbol(st.Symbols, "LIMIT")
	require.NotNil(t, limit)
	assert.False(t, limit.Exported)

	internal := findSymbol(st.Symbols, "internal")
	require.NotNil(t, internal)
	assert.False(t, internal.Exported)

	assert.Equal(t, []string{"./util", "path"}, importSpecs(st))
	assert.Contains(t, usedNames(st, UseCall), "helper")
	assert.Contains(t, usedNames(st, UseReference), "Circle")

	supers := map[string]bool{}
	for _, h := range st.Heritage {
		if h.Type == "Circle" {
			supers[h.Super] = true
		}
	}
	assert.True(t, supers["Base"], "Circle extends Base")
	assert.True(t, supers["Shape"], "Circle implements Shape")
}

func TestTreeSitterParser_JavaScript(t *testing.T) {
	src := `const fs = require("fs");
import { b } from "./b.js";

export function a() {
  return b();
}

async function lazy() {
  const m = await import("./lazy.js");
  return m;
}
`
	st := parse(t, "a.js", src, graph.LangJavaScript)
	a := findSymbol(st.Symbols, "a")
	require.NotNil(t, a)
	assert.Equal(t, SymbolFunction, a.Kind)
	assert.True(t, a.Exported)
	assert.Equal(t, 4, a.StartLine)
	assert.Equal(t, 6, a.EndLine)

	specs := importSpecs(st)
	assert.Contains(t, specs, "fs")
	assert.Contains(t, specs, "./b.js")
	assert.Contains(t, specs, "./lazy.js")
	assert.Contains(t, usedNames(st, UseCall), "b")
}

// ---------------------------------------------------------------------------
// TestTreeSitterParser_Python
// ---------------------------------------------------------------------------

func TestTreeSitterParser_Python(t *testing.T) {
	src := `import os
from .models import User

MAX_USERS = 100
_cache = {}


class UserService(BaseService):
    """Handles users."""

    def get(self, uid):
        return load(uid)

    def _private(self):
        pass


@decorator
def main():
    svc = UserService()
    svc.get(1)


def _helper():
    return os.getcwd()
`
	st := parse(t, "app/service.py", src, graph.LangPython)
	assert.Zero(t, st.ErrorCount)

	svc := findSymbol(st.Symbols, "UserService")
	require.NotNil(t, svc)
	assert.Equal(t, SymbolClass, svc.Kind)
	assert.True(t, svc.Exported)
	assert.Contains(t, svc.Doc, "Handles users.")

	get := findSymbol(st.Symbols, "get")
	require.NotNil(t, get)
	assert.Equal(t, SymbolMethod, get.Kind)
	assert.Equal(t, "UserService", get.Parent)
	assert.True(t, get.Exported)

	private := findSymbol(st.Symbols, "_private")
	require.NotNil(t, private)
	assert.False(t, private.Exported)

	main := findSymbol(st.Symbols, "main")
	require.NotNil(t, main)
	assert.True(t, main.EntryPoint)
	assert.Equal(t, 18, main.StartLine, "decorator is part of the span")

	maxUsers := findSymbol(st.Symbols, "MAX_USERS")
	require.NotNil(t, maxUsers)
	assert.Equal(t, SymbolConstant, maxUsers.Kind)

	cache := findSymbol(st.Symbols, "_cache")
	require.NotNil(t, cache)
	assert.Equal(t, SymbolVariable, cache.Kind)
	assert.False(t, cache.Exported)

	assert.Equal(t, []string{"os", ".models"}, importSpecs(st))
	calls := usedNames(st, UseCall)
	assert.Contains(t, calls, "load")
	assert.Contains(t, calls, "UserService")
	assert.Contains(t, calls, "getcwd")

	require.Len(t, st.Heritage, 1)
	assert.Equal(t, Heritage{Type: "UserService", Super: "BaseService", Line: 8}, st.Heritage[0])
}

// ---------------------------------------------------------------------------
// TestTreeSitterParser_Rust
// ---------------------------------------------------------------------------

func TestTreeSitterParser_Rust(t *testing.T) {
	src := `use crate::store::Store;
use std::fmt;

/// A configuration holder.
#[derive(Debug)]
pub struct Config {
    name: String,
}

pub trait Named {
    fn name(&self) -> String;
}

impl Named for Config {
    fn name(&self) -> String {
        self.name.clone()
    }
}

impl Config {
    pub fn new(name: &str) -> Config {
        Config { name: name.to_string() }
    }
}

pub enum Mode { Fast, Slow }

const LIMIT: u32 = 4;

fn main() {
    let c = Config::new("x");
    helper(c);
}

fn helper(_c: Config) {}
`
	st := parse(t, "src/main.rs", src, graph.LangRust)
	assert.Zero(t, st.ErrorCount)

	cfg := findSymbol(st.Symbols, "Config")
	require.NotNil(t, cfg)
	assert.Equal(t, SymbolType, cfg.Kind)
	assert.True(t, cfg.Exported)
	assert.Contains(t, cfg.Doc, "A configuration holder.")

	named := findSymbol(st.Symbols, "Named")
	require.NotNil(t, named)
	assert.Equal(t, SymbolInterface, named.Kind)

	newFn := findSymbol(st.Symbols, "new")
	require.NotNil(t, newFn)
	assert.Equal(t, SymbolMethod, newFn.Kind)
	assert.Equal(t, "Config", newFn.Parent)
	assert.True(t, newFn.Exported)

	mode := findSymbol(st.Symbols, "Mode")
	require.NotNil(t, mode)
	assert.Equal(t, SymbolEnum, mode.Kind)

	limit := findSymbol(st.Symbols, "LIMIT")
	require.NotNil(t, limit)
	assert.Equal(t, SymbolConstant, limit.Kind)
	assert.False(t, limit.Exported)

	main := findSymbol(st.Symbols, "main")
	require.NotNil(t, main)
	assert.True(t, main.EntryPoint)
	assert.False(t, main.Exported)

	assert.Equal(t, []string{"crate::store::Store", "std::fmt"}, importSpecs(st))
	calls := usedNames(st, UseCall)
	assert.Contains(t, calls, "new")
	assert.Contains(t, calls, "helper")
	assert.Contains(t, calls, "clone")

	require.Len(t, st.Heritage, 1)
	assert.Equal(t, "Config", st.Heritage[0].Type)
	assert.Equal(t, "Named", st.Heritage[0].Super)
}

// ---------------------------------------------------------------------------
// Edge cases
// ---------------------------------------------------------------------------

func TestTreeSitterParser_UnsupportedLanguage(t *testing.T) {
	p := NewTreeSitterParser(graph.LangGo)
	_, err := p.Parse(context.Background(), "a.py", []byte("x = 1\n"), graph.LangPython)
	require.Error(t, err)
	assert.True(t, ckgerr.HasCode(err, ckgerr.UnsupportedLanguage))
}

func TestTreeSitterParser_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewTreeSitterParser()
	_, err := p.Parse(ctx, "a.go", []byte("package a\n"), graph.LangGo)
	require.Error(t, err)
	assert.True(t, ckgerr.HasCode(err, ckgerr.Timeout))
}

func TestTreeSitterParser_EmptyFile(t *testing.T) {
	st := parse(t, "empty.go", "", graph.LangGo)
	assert.Zero(t, st.Lines)
	assert.Empty(t, st.Symbols)
}

func TestTreeSitterParser_SyntaxErrors(t *testing.T) {
	st := parse(t, "broken.go", "package broken\n\nfunc ok() {}\n\nfunc bad( {\n", graph.LangGo)
	assert.Greater(t, st.ErrorCount, 0)
	assert.NotNil(t, findSymbol(st.Symbols, "ok"), "valid declarations survive syntax errors")
}

func TestCountLOC(t *testing.T) {
	assert.Equal(t, 0, countLOC(nil))
	assert.Equal(t, 1, countLOC([]byte("a")))
	assert.Equal(t, 1, countLOC([]byte("a\n")))
	assert.Equal(t, 2, countLOC([]byte("a\nb")))
}
