package main

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/namespace"
)

func scratchProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vela.toml"), []byte("[project]\nname = \"scratch\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func value(t *testing.T, path, src string) namespace.Command {
	t.Helper()
	e, err := compiler.ParseExpr(src)
	if err != nil {
		t.Fatal(err)
	}
	dp, err := namespace.ParseDefinitionPath(path)
	if err != nil {
		t.Fatal(err)
	}
	return namespace.AddDefinition{Path: dp, Content: namespace.Value{Body: e}}
}

func remove(t *testing.T, path string) namespace.Command {
	t.Helper()
	dp, err := namespace.ParseDefinitionPath(path)
	if err != nil {
		t.Fatal(err)
	}
	return namespace.RemoveDefinition{Path: dp}
}

func boundNames(p *project) []string {
	return slices.Sorted(maps.Keys(p.codebase().Bindings()))
}

func TestApplyCommandsContinuesPastFailures(t *testing.T) {
	dir := scratchProject(t)
	p := openProject(dir)
	res := applyCommands(p, p.namespaces(), []namespace.Command{
		value(t, "a", "1"), value(t, "b", "2"), value(t, "c", "3"),
	})
	if res.Succeeded != 3 || res.Failed != 0 {
		t.Fatalf("add: %+v", res)
	}

	p = openProject(dir)
	res = applyCommands(p, p.namespaces(), []namespace.Command{
		remove(t, "a"), remove(t, "missing"), remove(t, "c"),
	})
	if res.Succeeded != 2 || res.Failed != 1 {
		t.Errorf("rm: %+v", res)
	}
	if got := boundNames(openProject(dir)); !slices.Equal(got, []string{"b"}) {
		t.Errorf("after rm: %v", got)
	}
}

func TestReplayedLogMatchesSnapshot(t *testing.T) {
	dir := scratchProject(t)
	p := openProject(dir)
	applyCommands(p, p.namespaces(), []namespace.Command{
		namespace.UseNamespace{Namespace: namespace.MustParsePath("math")},
		value(t, "one", "1"),
	})
	// A later invocation starts at the root again.
	p = openProject(dir)
	applyCommands(p, p.namespaces(), []namespace.Command{value(t, "top", "2")})

	live := openProject(dir)
	replayed := live.replayed()
	defer replayed.Close()
	if got, want := replayed.Codebase().Bindings(), live.codebase().Bindings(); !maps.Equal(got, want) {
		t.Errorf("replayed %v, snapshot %v", slices.Sorted(maps.Keys(got)), boundNames(live))
	}
}
