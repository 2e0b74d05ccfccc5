// Vela CLI - stores, inspects and tests definitions in a content-addressed
// codebase.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

type command struct {
	name  string
	usage string
	run   func(p *project, args []string)
}

var commands = []command{
	{"add", "add [-ns NS] FILE...        store the definitions in FILEs", handleAddCommand},
	{"rm", "rm NAME...                  unbind definitions", handleRemoveCommand},
	{"mv", "mv FROM TO                  rename a definition", handleRenameCommand},
	{"mkns", "mkns NS                     create an empty namespace", handleCreateNamespaceCommand},
	{"history", "history NAME                hashes NAME has been bound to", handleHistoryCommand},
	{"rebuild", "rebuild                     replay the command log into a fresh snapshot", handleRebuildCommand},
	{"list", "list [-namespaces] [NS]     list definitions in a namespace", handleListCommand},
	{"show", "show REF...                 print a definition by name or hash", handleShowCommand},
	{"deps", "deps [-disk] REF            transitive dependencies", handleDepsCommand},
	{"dependents", "dependents REF              direct dependents", handleDependentsCommand},
	{"orphans", "orphans                     stored terms no name reaches", handleOrphansCommand},
	{"stats", "stats                       snapshot statistics", handleStatsCommand},
	{"export", "export [-ns NS] OUT         write a partial snapshot", handleExportCommand},
	{"hash", "hash EXPR                   content hash of an expression", handleHashCommand},
	{"branch", "branch [create|checkout|list] ...", handleBranchCommand},
	{"commit", "commit -b BRANCH FILE...    commit definitions to a branch", handleCommitCommand},
	{"test", "test [flags] [FILTER]        generate and run tests", handleTestCommand},
}

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0-4)")
	dir := flag.String("C", ".", "Run as if started in this directory")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vela [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(os.Stderr, "  %s\n", c.usage)
		}
		fmt.Fprintf(os.Stderr, "\nSettings are read from the nearest vela.toml.\n")
	}
	flag.Parse()
	commonlog.Configure(*verbose, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	for _, c := range commands {
		if c.name == args[0] {
			p := openProject(*dir)
			c.run(p, args[1:])
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
	flag.Usage()
	os.Exit(2)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
