package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/vela/namespace"
	"github.com/chazu/vela/testengine"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "shapes"
version = "0.1.0"

[source]
dirs = ["defs", "lib"]

[storage]
path = "out/shapes.vbin"
cache_path = "out/cache"
cache_backend = "badger"

[namespace]
policy = "reject"
log_path = "out/ns.log"

[test]
max_tests = 25
property = false
timeout = "250ms"
parallel = true
threads = 3
fail_fast = true
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "shapes" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if m.StoragePath() != filepath.Join(m.Dir, "out", "shapes.vbin") {
		t.Errorf("storage path = %q", m.StoragePath())
	}
	if m.CachePath() != filepath.Join(m.Dir, "out", "cache") {
		t.Errorf("cache path = %q", m.CachePath())
	}
	if m.LogPath() != filepath.Join(m.Dir, "out", "ns.log") {
		t.Errorf("log path = %q", m.LogPath())
	}
	if m.CacheBackend() != testengine.BackendBadger {
		t.Errorf("backend = %q", m.CacheBackend())
	}
	if m.Policy() != namespace.Reject {
		t.Errorf("policy = %v", m.Policy())
	}

	gen := m.GenConfig()
	if gen.MaxTestsPerFunction != 25 || gen.EnablePropertyTests || !gen.EnableEdgeCases {
		t.Errorf("gen config = %+v", gen)
	}
	run := m.RunConfig()
	if run.Timeout != 250*time.Millisecond || !run.Parallel || run.NumThreads != 3 || !run.FailFast {
		t.Errorf("run config = %+v", run)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.StoragePath() != filepath.Join(m.Dir, ".vela", "codebase.vbin") {
		t.Errorf("default storage path = %q", m.StoragePath())
	}
	if m.CacheBackend() != testengine.BackendSQLite || m.Policy() != namespace.Overwrite {
		t.Errorf("defaults: %q %v", m.CacheBackend(), m.Policy())
	}
	gen := m.GenConfig()
	if gen.MaxTestsPerFunction != 10 || !gen.EnablePropertyTests || !gen.EnableEdgeCases {
		t.Errorf("default gen config = %+v", gen)
	}
	if m.RunConfig().Timeout != 5*time.Second {
		t.Errorf("default timeout = %v", m.RunConfig().Timeout)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[project\nname = 1", "parse error"},
		{"policy", "[namespace]\npolicy = \"merge\"", "redefinition policy"},
		{"backend", "[storage]\ncache_backend = \"redis\"", "backend"},
		{"timeout", "[test]\ntimeout = \"soon\"", "test.timeout"},
		{"threads", "[test]\nthreads = -2", "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no vela.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "/abs/lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/src" {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/abs/lib" {
		t.Errorf("paths[1] = %q, want /abs/lib", paths[1])
	}
}
