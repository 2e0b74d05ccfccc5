package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
	"github.com/chazu/vela/namespace"
	"github.com/chazu/vela/vbin"
	"github.com/dustin/go-humanize"
)

func handleListCommand(p *project, args []string) {
	flags := flag.NewFlagSet("list", flag.ExitOnError)
	namespaces := flags.Bool("namespaces", false, "List namespaces instead of definitions")
	flags.Parse(args)

	store := namespace.New(p.codebase())
	if *namespaces {
		for _, ns := range store.Namespaces() {
			if ns.IsRoot() {
				fmt.Println(".")
				continue
			}
			fmt.Println(ns)
		}
		return
	}

	ns := namespace.Root()
	if flags.NArg() > 0 {
		var err error
		if ns, err = namespace.ParsePath(flags.Arg(0)); err != nil {
			fatalf("%v", err)
		}
	}
	for _, e := range store.Definitions(ns) {
		t, _ := p.codebase().GetTerm(e.Hash)
		fmt.Printf("%s  %-24s : %s\n", e.Hash.Short(), e.Path.Qualified(), t.Type)
	}
}

func handleShowCommand(p *project, args []string) {
	if len(args) == 0 {
		fatalf("show requires a name or hash")
	}
	for i, ref := range args {
		if i > 0 {
			fmt.Println()
		}
		t := p.find(ref)
		names := p.codebase().NamesOf(t.Hash)
		display := t.Name
		if len(names) > 0 {
			display = names[0]
		}
		fmt.Printf("-- %s\n", t.Hash)
		if len(names) > 1 {
			fmt.Printf("-- also bound as %s\n", strings.Join(names[1:], ", "))
		}
		fmt.Printf("-- : %s\n", t.Type)
		fmt.Println(compiler.FormatDefinition(display, t.Expr))
	}
}

// handleDepsCommand prints the transitive dependencies of a term. With
// -disk the closure is read straight from the snapshot file without
// loading the rest of the codebase.
func handleDepsCommand(p *project, args []string) {
	flags := flag.NewFlagSet("deps", flag.ExitOnError)
	disk := flags.Bool("disk", false, "Read only the dependency closure from the snapshot")
	flags.Parse(args)
	if flags.NArg() != 1 {
		fatalf("usage: vela deps [-disk] REF")
	}

	root := p.find(flags.Arg(0))
	var (
		cb   = p.codebase()
		deps []hash.Hash
		err  error
	)
	if *disk {
		if cb, err = p.storage.RetrieveWithDependencies(root.Hash); err != nil {
			fatalf("%v", err)
		}
	}
	if deps, err = cb.GetAllDependencies(root.Hash); err != nil {
		fatalf("%v", err)
	}
	for _, h := range deps {
		printTerm(cb, h)
	}
	if *disk {
		fmt.Printf("(%d of the closure's terms read from %s)\n", cb.Len(), p.storage.Path())
	}
}

func handleDependentsCommand(p *project, args []string) {
	if len(args) != 1 {
		fatalf("usage: vela dependents REF")
	}
	for _, h := range p.codebase().GetDependents(p.find(args[0]).Hash) {
		printTerm(p.codebase(), h)
	}
}

func handleOrphansCommand(p *project, args []string) {
	cb := p.codebase()
	orphans := cb.Unreachable(cb.Roots())
	for _, h := range orphans {
		printTerm(cb, h)
	}
	fmt.Printf("%d of %d terms unreachable from any name\n", len(orphans), cb.Len())
}

func printTerm(cb *codebase.Codebase, h hash.Hash) {
	name := "(unnamed)"
	if names := cb.NamesOf(h); len(names) > 0 {
		name = names[0]
	} else if t, ok := cb.GetTerm(h); ok {
		name = t.Name + " (unbound)"
	}
	fmt.Printf("%s  %s\n", h.Short(), name)
}

func handleStatsCommand(p *project, args []string) {
	st, err := p.storage.Stats()
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("no snapshot at %s\n", p.storage.Path())
		return
	}
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("snapshot:     %s (%s)\n", p.storage.Path(), humanize.Bytes(uint64(st.TotalSize)))
	fmt.Printf("terms:        %s\n", humanize.Comma(int64(st.TermCount)))
	fmt.Printf("definitions:  %s\n", humanize.Comma(int64(st.TotalDefinitions)))
	fmt.Printf("types:        %d\n", st.TypeCount)
	fmt.Printf("namespaces:   %d\n", st.NamespaceCount)
	fmt.Printf("hash version: %d\n", st.HashVersion)
	fmt.Printf("created:      %s\n", humanize.Time(st.CreatedAt))
	fmt.Printf("updated:      %s\n", humanize.Time(st.UpdatedAt))
	if branches := p.mgr.Branches(); len(branches) > 0 {
		fmt.Printf("branches:     %d\n", len(branches))
	}
}

// handleExportCommand writes the definitions under a namespace, with
// their dependency closure, to a new snapshot file.
func handleExportCommand(p *project, args []string) {
	flags := flag.NewFlagSet("export", flag.ExitOnError)
	ns := flags.String("ns", "", "Namespace prefix to export; empty exports everything")
	flags.Parse(args)
	if flags.NArg() != 1 {
		fatalf("usage: vela export [-ns NS] OUT")
	}

	part, err := p.storage.RetrieveNamespace(*ns)
	if err != nil {
		fatalf("%v", err)
	}
	// Definitions outside the prefix that the exported terms depend on come
	// along unnamed, so the snapshot has no dangling edges.
	terms := make(map[hash.Hash]*codebase.Term)
	for _, h := range part.Hashes() {
		closure, err := p.storage.RetrieveWithDependencies(h)
		if err != nil {
			fatalf("%v", err)
		}
		for _, t := range closure.Terms() {
			terms[t.Hash] = t
		}
	}
	part = codebase.Restore(slices.Collect(maps.Values(terms)), part.Bindings(), part.Metadata())
	out := flags.Arg(0)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		fatalf("%v", err)
	}
	if err := vbin.Open(out).SaveFull(part); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("exported %d names, %d terms to %s\n", len(part.Names()), part.Len(), out)
}

func handleHashCommand(p *project, args []string) {
	if len(args) == 0 {
		fatalf("usage: vela hash EXPR")
	}
	e, err := compiler.ParseExpr(strings.Join(args, " "))
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(p.mgr.HashExpr(e))
}
