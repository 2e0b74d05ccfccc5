package testengine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/interp"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// RunConfig controls a test run.
type RunConfig struct {
	UseCache   bool
	ForceRerun bool
	Timeout    time.Duration // per test; zero disables
	Parallel   bool
	NumThreads int // worker count in parallel mode; zero means GOMAXPROCS
	FailFast   bool
	Verbosity  int // above zero, every outcome is logged at info level
}

// DefaultRunConfig returns the runner defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		UseCache: true,
		Timeout:  5 * time.Second,
	}
}

// Result is the outcome of one executed test.
type Result struct {
	Test      TestCase
	Outcome   Outcome
	FromCache bool
	Duration  time.Duration
}

// Summary counts a run. NotRun covers tests never started because of
// fail-fast or cancellation.
type Summary struct {
	Total    int
	Passed   int
	Failed   int
	TimedOut int
	Skipped  int
	Cached   int
	NotRun   int
}

// OK reports whether nothing failed or timed out.
func (s Summary) OK() bool { return s.Failed == 0 && s.TimedOut == 0 }

func (s Summary) String() string {
	return fmt.Sprintf("%d tests: %d passed, %d failed, %d timed out, %d skipped, %d not run (%d cached)",
		s.Total, s.Passed, s.Failed, s.TimedOut, s.Skipped, s.NotRun, s.Cached)
}

// Report is the result of Runner.Run. Results are in generation order and
// hold only the tests that ran.
type Report struct {
	Results  []Result
	Summary  Summary
	Duration time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLimits sets the interpreter limits applied to each test.
func WithLimits(l interp.Limits) RunnerOption {
	return func(r *Runner) { r.limits = l }
}

// Runner executes test cases against a codebase. The codebase must not be
// modified during Run.
type Runner struct {
	cb      *codebase.Codebase
	cache   *Cache
	cfg     RunConfig
	limits  interp.Limits
	metrics *metrics
}

// NewRunner creates a runner. cache may be nil.
func NewRunner(cb *codebase.Codebase, cache *Cache, cfg RunConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		cb:      cb,
		cache:   cache,
		cfg:     cfg,
		limits:  interp.DefaultLimits(),
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Collectors returns the runner's Prometheus collectors for registration.
func (r *Runner) Collectors() []prometheus.Collector { return r.metrics.collectors() }

// Run executes tests. Failures are data: no test outcome aborts the run
// unless FailFast is set, and then only tests not yet started are dropped.
func (r *Runner) Run(ctx context.Context, tests []TestCase) *Report {
	start := time.Now()
	slots := make([]*Result, len(tests))
	if r.cfg.Parallel {
		r.runParallel(ctx, tests, slots)
	} else {
		r.runSequential(ctx, tests, slots)
	}

	rep := &Report{Duration: time.Since(start)}
	rep.Summary.Total = len(tests)
	for _, res := range slots {
		if res == nil {
			rep.Summary.NotRun++
			continue
		}
		rep.Results = append(rep.Results, *res)
		if res.FromCache {
			rep.Summary.Cached++
		}
		switch res.Outcome.Status() {
		case StatusPassed:
			rep.Summary.Passed++
		case StatusFailed:
			rep.Summary.Failed++
		case StatusTimeout:
			rep.Summary.TimedOut++
		case StatusSkipped:
			rep.Summary.Skipped++
		}
	}
	log.Infof("%s in %s", rep.Summary, rep.Duration.Round(time.Millisecond))
	return rep
}

func isFailure(o Outcome) bool {
	s := o.Status()
	return s == StatusFailed || s == StatusTimeout
}

func (r *Runner) runSequential(ctx context.Context, tests []TestCase, slots []*Result) {
	for i, tc := range tests {
		if ctx.Err() != nil {
			return
		}
		res := r.runOne(tc)
		slots[i] = &res
		if r.cfg.FailFast && isFailure(res.Outcome) {
			log.Infof("fail-fast: stopping after %s", tc)
			return
		}
	}
}

// runParallel feeds test indices to a pool of workers. Once stop is set no
// new test is dispatched; tests already running still finish and are
// recorded.
func (r *Runner) runParallel(ctx context.Context, tests []TestCase, slots []*Result) {
	workers := r.cfg.NumThreads
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var (
		stop  atomic.Bool
		mu    sync.Mutex
		queue = make(chan int)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for i := range tests {
			if stop.Load() {
				return nil
			}
			select {
			case queue <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	for range workers {
		g.Go(func() error {
			for i := range queue {
				if stop.Load() || gctx.Err() != nil {
					continue
				}
				res := r.runOne(tests[i])
				mu.Lock()
				slots[i] = &res
				mu.Unlock()
				if r.cfg.FailFast && isFailure(res.Outcome) {
					stop.Store(true)
				}
			}
			return nil
		})
	}
	g.Wait()
}

func (r *Runner) runOne(tc TestCase) Result {
	if tc.Kind == KindSkip {
		r.metrics.outcomes.WithLabelValues(StatusSkipped.String()).Inc()
		return Result{Test: tc, Outcome: Skipped{Reason: tc.Reason}}
	}
	if r.cache != nil && r.cfg.UseCache && !r.cfg.ForceRerun {
		if o, ok := r.cache.Get(tc.Key()); ok {
			r.metrics.cacheHits.Inc()
			r.metrics.outcomes.WithLabelValues(o.Status().String()).Inc()
			r.trace("%s: cached %s", tc, o)
			return Result{Test: tc, Outcome: o, FromCache: true}
		}
	}

	start := time.Now()
	o := r.execute(tc)
	elapsed := time.Since(start)
	r.metrics.testsRun.Inc()
	r.metrics.duration.Observe(elapsed.Seconds())
	r.metrics.outcomes.WithLabelValues(o.Status().String()).Inc()
	r.trace("%s: %s (%s)", tc, o, elapsed)

	// Timeouts depend on the machine, so they are not cached.
	if r.cache != nil && !r.cfg.ForceRerun && o.Status() != StatusTimeout {
		if err := r.cache.Put(tc.Key(), o); err != nil {
			log.Warningf("%s", err)
		}
	}
	return Result{Test: tc, Outcome: o, Duration: elapsed}
}

func (r *Runner) trace(format string, args ...any) {
	if r.cfg.Verbosity > 0 {
		log.Infof(format, args...)
		return
	}
	log.Debugf(format, args...)
}

// execute evaluates tc in its own goroutine. On timeout the goroutine is
// abandoned; the interpreter's step budget ends it eventually.
func (r *Runner) execute(tc TestCase) Outcome {
	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- Failed{Error: fmt.Sprintf("panic: %v", p)}
			}
		}()
		done <- r.evaluate(tc)
	}()

	if r.cfg.Timeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()
	select {
	case o := <-done:
		return o
	case <-timer.C:
		return Timeout{After: r.cfg.Timeout}
	}
}

func (r *Runner) evaluate(tc TestCase) Outcome {
	linker := interp.NewLinker(r.cb, r.limits)
	var (
		v   interp.Value
		err error
	)
	if tc.Kind == KindEval {
		v, err = linker.Value(tc.Hash)
	} else {
		v, err = linker.Call(tc.Hash, tc.Args)
	}
	if err != nil {
		return Failed{Error: err.Error()}
	}
	if !interp.Conforms(v, tc.Expected) {
		return Failed{Error: fmt.Sprintf("result %s does not conform to %s", v, tc.Expected)}
	}
	return Passed{Value: v.String()}
}
