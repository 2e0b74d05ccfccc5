package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/vela/namespace"
)

// handleBranchCommand processes the `vela branch` subcommand.
// Usage:
//
//	vela branch list
//	vela branch create NAME
//	vela branch checkout NAME
func handleBranchCommand(p *project, args []string) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		current := p.mgr.Current()
		for _, b := range p.mgr.Branches() {
			marker := " "
			if b.Name == current {
				marker = "*"
			}
			fmt.Printf("%s %-16s %s\n", marker, b.Name, b.Head.Short())
		}
	case "create":
		if len(args) != 2 {
			fatalf("usage: vela branch create NAME")
		}
		b, err := p.mgr.CreateBranch(args[1])
		if err != nil {
			fatalf("%v", err)
		}
		p.save()
		fmt.Printf("created %s at %s\n", b.Name, b.Head.Short())
	case "checkout":
		if len(args) != 2 {
			fatalf("usage: vela branch checkout NAME")
		}
		if err := p.mgr.Checkout(args[1]); err != nil {
			fatalf("%v", err)
		}
		p.save()
		fmt.Printf("checked out %s (%d names)\n", args[1], len(p.codebase().Names()))
	default:
		fmt.Fprintf(os.Stderr, "Unknown branch subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

// handleCommitCommand stages every definition in the given files in one
// edit session and commits it to a branch. Nothing is stored unless all
// of them check.
func handleCommitCommand(p *project, args []string) {
	flags := flag.NewFlagSet("commit", flag.ExitOnError)
	branch := flags.String("b", "", "Branch to commit to (default: the checked-out branch)")
	flags.Parse(args)
	if *branch == "" {
		*branch = p.mgr.Current()
	}
	if *branch == "" {
		fatalf("no branch checked out; pass -b")
	}
	if flags.NArg() == 0 {
		fatalf("commit requires at least one file")
	}

	session, err := p.mgr.OpenSession(*branch)
	if err != nil {
		fatalf("%v", err)
	}
	for _, file := range flags.Args() {
		for _, def := range parseFile(file) {
			if err := session.AddDefinition(def.Name, namespace.ContentOf(def).Expr()); err != nil {
				fatalf("%v", err)
			}
		}
	}

	head, err := p.mgr.Commit(session, *branch)
	if err != nil {
		session.Discard()
		fatalf("%v", err)
	}
	p.save()
	fmt.Printf("session %s: committed %d definitions to %s, head %s\n",
		session.ID, len(session.Pending), *branch, head.Short())
}
