package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/chazu/vela/testengine"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
)

// handleTestCommand processes the `vela test` subcommand. Settings from
// vela.toml are the defaults; flags override them.
// Usage:
//
//	vela test                    # every definition
//	vela test 'math.*'           # glob filter
//	vela test -force -parallel   # ignore cached outcomes, use all cores
//	vela test -changed           # skip definitions that already pass
func handleTestCommand(p *project, args []string) {
	gen := p.m.GenConfig()
	run := p.m.RunConfig()

	flags := flag.NewFlagSet("test", flag.ExitOnError)
	flags.IntVar(&gen.MaxTestsPerFunction, "max", gen.MaxTestsPerFunction, "Tests generated per function")
	noProps := flags.Bool("no-property", !gen.EnablePropertyTests, "Skip property tests")
	noEdges := flags.Bool("no-edge", !gen.EnableEdgeCases, "Skip edge-case tests")
	flags.BoolVar(&run.ForceRerun, "force", false, "Re-run tests with cached outcomes and leave the cache untouched")
	noCache := flags.Bool("no-cache", false, "Do not open the outcome cache")
	changed := flags.Bool("changed", false, "Only test definitions without a cached pass for every case")
	flags.BoolVar(&run.Parallel, "parallel", run.Parallel, "Run tests on a worker pool")
	flags.IntVar(&run.NumThreads, "threads", run.NumThreads, "Worker count with -parallel (0 = GOMAXPROCS)")
	flags.BoolVar(&run.FailFast, "fail-fast", run.FailFast, "Stop dispatching after the first failure")
	flags.DurationVar(&run.Timeout, "timeout", run.Timeout, "Per-test timeout")
	showMetrics := flags.Bool("metrics", false, "Print runner metrics")
	clearCache := flags.Bool("clear-cache", false, "Drop every cached outcome and exit")
	verbose := flags.Bool("v", false, "Print every outcome, not just failures")
	flags.Parse(args)

	gen.EnablePropertyTests = !*noProps
	gen.EnableEdgeCases = !*noEdges
	gen.UseCache = !*noCache
	run.UseCache = !*noCache
	if *verbose {
		run.Verbosity = 1
	}
	if flags.NArg() > 0 {
		gen.NameFilter = flags.Arg(0)
	}

	var cache *testengine.Cache
	if !*noCache {
		path := p.m.CachePath()
		if path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				fatalf("%v", err)
			}
		}
		var err error
		if cache, err = testengine.OpenCache(path, p.m.CacheBackend()); err != nil {
			fatalf("opening test cache: %v", err)
		}
		defer cache.Close()
	}
	if *clearCache {
		if cache == nil {
			fatalf("-clear-cache needs the cache")
		}
		n := cache.Len()
		if err := cache.Clear(); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("cleared %d cached outcomes\n", n)
		return
	}

	var genOpts []testengine.GenOption
	if *changed && cache != nil {
		genOpts = append(genOpts, testengine.WithCache(cache))
	}
	tests := testengine.NewGenerator(gen, genOpts...).Generate(p.codebase())
	if len(tests) == 0 {
		fmt.Println("no tests generated")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := testengine.NewRunner(p.codebase(), cache, run)
	reg := prometheus.NewRegistry()
	reg.MustRegister(runner.Collectors()...)
	report := runner.Run(ctx, tests)

	for _, r := range report.Results {
		switch r.Outcome.Status() {
		case testengine.StatusFailed, testengine.StatusTimeout:
			fmt.Printf("FAIL  %s: %s\n", r.Test, r.Outcome)
		default:
			if run.Verbosity > 0 {
				src := ""
				if r.FromCache {
					src = " (cached)"
				}
				fmt.Printf("%-5s %s: %s%s\n", r.Outcome.Status(), r.Test, r.Outcome, src)
			}
		}
	}
	fmt.Printf("%s in %s\n", report.Summary, report.Duration.Round(time.Millisecond))
	if cache != nil {
		fmt.Printf("cache: %s outcomes (%s)\n", humanize.Comma(int64(cache.Len())), cache.Backend())
	}
	if *showMetrics {
		printMetrics(reg)
	}
	if !report.Summary.OK() {
		if cache != nil {
			cache.Close()
		}
		os.Exit(1)
	}
}

func printMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		fatalf("%v", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			label := ""
			for _, lp := range m.GetLabel() {
				label += fmt.Sprintf("{%s=%q}", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("%s%s %g\n", mf.GetName(), label, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Printf("%s%s count=%d sum=%gs\n", mf.GetName(), label, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
}
