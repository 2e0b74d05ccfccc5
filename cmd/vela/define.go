package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/namespace"
)

// handleAddCommand processes the `vela add` subcommand.
// Usage:
//
//	vela add defs.vela             # definitions land in the root namespace
//	vela add -ns math math.vela    # unqualified names land in math
func handleAddCommand(p *project, args []string) {
	flags := flag.NewFlagSet("add", flag.ExitOnError)
	ns := flags.String("ns", "", "Namespace for unqualified definitions")
	flags.Parse(args)
	if flags.NArg() == 0 {
		fatalf("add requires at least one file")
	}

	store := p.namespaces()
	var cmds []namespace.Command
	if *ns != "" {
		path, err := namespace.ParsePath(*ns)
		if err != nil {
			fatalf("%v", err)
		}
		cmds = append(cmds, namespace.UseNamespace{Namespace: path})
	}
	type fileDef struct {
		file string
		def  *compiler.Definition
	}
	var defs []fileDef
	batch := make(map[string]bool)
	for _, file := range flags.Args() {
		for _, def := range parseFile(file) {
			defs = append(defs, fileDef{file, def})
			batch[def.Name] = true
		}
	}
	known := func(name string) bool {
		if batch[name] {
			return true
		}
		_, err := store.Lookup(name)
		return err == nil
	}
	for _, fd := range defs {
		for _, w := range compiler.Analyze(fd.def, known) {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", fd.file, fd.def.Name, w)
		}
		dp, err := namespace.ParseDefinitionPath(fd.def.Name)
		if err != nil {
			fatalf("%s: %v", fd.file, err)
		}
		cmds = append(cmds, namespace.AddDefinition{
			Path:     dp,
			Content:  namespace.ContentOf(fd.def),
			Metadata: map[string]string{"source": fd.file},
		})
	}

	reportBatch(applyCommands(p, store, cmds), "stored")
}

// applyCommands executes every command on store, closes it and saves the
// codebase. A failed command does not stop the ones after it.
func applyCommands(p *project, store *namespace.Store, cmds []namespace.Command) namespace.BatchResult {
	res := store.ExecuteBatch(cmds)
	if err := store.Close(); err != nil {
		fatalf("closing command log: %v", err)
	}
	p.save()
	return res
}

// reportBatch prints a batch result. Any failure makes the exit status
// non-zero.
func reportBatch(res namespace.BatchResult, verb string) {
	for _, err := range res.Errors {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
	}
	fmt.Printf("%d %s, %d failed\n", res.Succeeded, verb, res.Failed)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

func parseFile(file string) []*compiler.Definition {
	data, err := os.ReadFile(file)
	if err != nil {
		fatalf("%v", err)
	}
	sf, err := compiler.Parse(string(data))
	if err != nil {
		fatalf("%s: %v", file, err)
	}
	if len(sf.Exprs) > 0 {
		fmt.Fprintf(os.Stderr, "%s: ignoring %d top-level expressions\n", file, len(sf.Exprs))
	}
	return sf.Definitions
}

func handleRemoveCommand(p *project, args []string) {
	if len(args) == 0 {
		fatalf("rm requires a name")
	}
	var cmds []namespace.Command
	for _, name := range args {
		dp, err := namespace.ParseDefinitionPath(name)
		if err != nil {
			fatalf("%v", err)
		}
		cmds = append(cmds, namespace.RemoveDefinition{Path: dp})
	}
	runCommands(p, cmds)
}

func handleRenameCommand(p *project, args []string) {
	if len(args) != 2 {
		fatalf("usage: vela mv FROM TO")
	}
	from, err := namespace.ParseDefinitionPath(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	to, err := namespace.ParseDefinitionPath(args[1])
	if err != nil {
		fatalf("%v", err)
	}
	runCommands(p, []namespace.Command{namespace.RenameDefinition{From: from, To: to}})
}

func handleCreateNamespaceCommand(p *project, args []string) {
	if len(args) != 1 {
		fatalf("usage: vela mkns NS")
	}
	ns, err := namespace.ParsePath(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	runCommands(p, []namespace.Command{namespace.CreateNamespace{Namespace: ns}})
}

func runCommands(p *project, cmds []namespace.Command) {
	reportBatch(applyCommands(p, p.namespaces(), cmds), "applied")
}

// handleHistoryCommand replays the command log to recover every hash a
// name has been bound to.
func handleHistoryCommand(p *project, args []string) {
	if len(args) != 1 {
		fatalf("usage: vela history NAME")
	}
	dp, err := namespace.ParseDefinitionPath(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	store := p.replayed()
	defer store.Close()
	hist := store.History(dp)
	if len(hist) == 0 {
		fatalf("%s has no recorded history", dp)
	}
	for i, h := range hist {
		marker := " "
		if i == len(hist)-1 {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, h)
	}
	if md := store.Metadata(dp); md["source"] != "" {
		fmt.Printf("source: %s\n", md["source"])
	}
}

// handleRebuildCommand replaces the snapshot's terms and names with the
// result of replaying the command log. Branches are kept.
func handleRebuildCommand(p *project, args []string) {
	store := p.replayed()
	defer store.Close()
	cb := store.Codebase()

	if err := os.MkdirAll(filepath.Dir(p.storage.Path()), 0755); err != nil {
		fatalf("%v", err)
	}
	if err := p.storage.SaveFull(cb); err != nil {
		fatalf("%v", err)
	}
	// The branch sidecar must still load against the new snapshot.
	if err := codebase.NewManager(p.m.StoragePath(), codebase.WithStorage(p.storage)).Load(); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("rebuilt %d terms, %d names from %d commands\n", cb.Len(), len(cb.Names()), len(store.Log()))
}
