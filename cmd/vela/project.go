package main

import (
	"os"
	"path/filepath"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/manifest"
	"github.com/chazu/vela/namespace"
	"github.com/chazu/vela/vbin"
)

// project bundles what every command needs: settings, the snapshot
// storage and the manager loaded from it.
type project struct {
	m       *manifest.Manifest
	storage *vbin.Storage
	mgr     *codebase.Manager
}

func openProject(dir string) *project {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		fatalf("loading manifest: %v", err)
	}
	if m == nil {
		def := manifest.Default()
		def.Dir, err = filepath.Abs(dir)
		if err != nil {
			fatalf("%v", err)
		}
		m = &def
	}

	storage := vbin.Open(m.StoragePath())
	mgr := codebase.NewManager(m.StoragePath(), codebase.WithStorage(storage))
	if err := mgr.Load(); err != nil {
		fatalf("loading %s: %v", m.StoragePath(), err)
	}
	return &project{m: m, storage: storage, mgr: mgr}
}

func (p *project) codebase() *codebase.Codebase { return p.mgr.Codebase() }

func (p *project) save() {
	if err := os.MkdirAll(filepath.Dir(p.m.StoragePath()), 0755); err != nil {
		fatalf("%v", err)
	}
	if err := p.mgr.Save(); err != nil {
		fatalf("saving %s: %v", p.m.StoragePath(), err)
	}
}

// namespaces returns a namespace store over the loaded codebase, starting
// at the root. Executed commands are appended to the project's command log,
// after a record of that starting namespace.
func (p *project) namespaces() *namespace.Store {
	if err := os.MkdirAll(filepath.Dir(p.m.LogPath()), 0755); err != nil {
		fatalf("%v", err)
	}
	lf, _, err := namespace.OpenLog(p.m.LogPath())
	if err != nil {
		fatalf("opening command log: %v", err)
	}
	return namespace.New(p.codebase(), namespace.WithPolicy(p.m.Policy()), namespace.WithLog(lf))
}

// replayed rebuilds a namespace store from the command log alone.
func (p *project) replayed() *namespace.Store {
	if err := os.MkdirAll(filepath.Dir(p.m.LogPath()), 0755); err != nil {
		fatalf("%v", err)
	}
	s, err := namespace.Open(p.m.LogPath(), codebase.New(), namespace.WithPolicy(p.m.Policy()))
	if err != nil {
		fatalf("replaying command log: %v", err)
	}
	return s
}

func (p *project) find(ref string) *codebase.Term {
	t, err := p.codebase().Find(ref)
	if err != nil {
		fatalf("%v", err)
	}
	return t
}
