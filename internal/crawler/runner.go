package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/logger"
)

const tracerName = "github.com/javainthinking/skillspick/internal/crawler"

// Run outcomes reported to the RunObserver.
const (
	OutcomeDone    = "done"
	OutcomeStopped = "stopped"
	OutcomeError   = "error"
)

// ErrAlreadyRunning is returned when a crawler is invoked while a previous
// invocation of the same kind is still in flight in this process.
var ErrAlreadyRunning = errors.New("crawler already running")

// RunObserver records per-invocation outcomes.
type RunObserver interface {
	ObserveRun(kind, outcome string, elapsed time.Duration, res *Result)
}

// RunOptions bound one invocation. Zero values use the runner defaults.
type RunOptions struct {
	MaxUnits    int
	MaxDuration time.Duration
}

// Runner dispatches bounded invocations to registered crawlers.
type Runner struct {
	crawlers       map[string]Crawler
	running        map[string]*sync.Mutex
	order          []string
	maxRunDuration time.Duration
	observer       RunObserver
	log            logger.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunObserver records every invocation.
func WithRunObserver(o RunObserver) RunnerOption {
	return func(r *Runner) {
		r.observer = o
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates an empty runner. maxRunDuration is the default
// elapsed-time guard of every invocation.
func NewRunner(maxRunDuration time.Duration, log logger.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Runner{
		crawlers:       make(map[string]Crawler),
		running:        make(map[string]*sync.Mutex),
		maxRunDuration: maxRunDuration,
		log:            log,
		tracer:         otel.Tracer(tracerName),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromConfig registers the four ingest crawlers in their default order.
func NewFromConfig(cfg config.IngestConfig, deps Deps, opts ...RunnerOption) *Runner {
	r := NewRunner(cfg.MaxRunDuration, deps.Log, opts...)
	r.Register(NewClawHub(cfg.ClawHub, cfg.WriteConcurrency, deps))
	r.Register(NewTree(cfg.GitHub, deps))
	r.Register(NewAwesome(cfg.Awesome, cfg.GitHub, deps))
	r.Register(NewSkillsMP(cfg.SkillsMP, deps))
	return r
}

// Register adds c, replacing any crawler of the same kind.
func (r *Runner) Register(c Crawler) {
	kind := c.Kind()
	if _, exists := r.crawlers[kind]; !exists {
		r.order = append(r.order, kind)
		r.running[kind] = &sync.Mutex{}
	}
	r.crawlers[kind] = c
}

// Kinds lists registered kinds in registration order.
func (r *Runner) Kinds() []string {
	return append([]string(nil), r.order...)
}

// SortedKinds lists registered kinds alphabetically.
func (r *Runner) SortedKinds() []string {
	kinds := r.Kinds()
	sort.Strings(kinds)
	return kinds
}

// Run performs one bounded invocation of the crawler registered for kind.
func (r *Runner) Run(ctx context.Context, kind string, opts RunOptions) (*Result, error) {
	c, ok := r.crawlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	mu := r.running[kind]
	if !mu.TryLock() {
		return nil, fmt.Errorf("%s: %w", kind, ErrAlreadyRunning)
	}
	defer mu.Unlock()

	maxDuration := r.maxRunDuration
	if opts.MaxDuration > 0 {
		maxDuration = opts.MaxDuration
	}
	start := r.now()
	budget := Budget{MaxUnits: opts.MaxUnits}
	if maxDuration > 0 {
		budget.Deadline = start.Add(maxDuration)
	}

	ctx, span := r.tracer.Start(ctx, "crawler.Run", trace.WithAttributes(
		attribute.String("crawler.kind", kind),
		attribute.Int("crawler.max_units", opts.MaxUnits),
	))
	defer span.End()

	log := r.log.With(logger.String("crawler", kind))
	log.Info("Crawler run starting",
		logger.Int("max_units", opts.MaxUnits),
		logger.Duration("max_duration", maxDuration),
	)

	res, err := c.Run(ctx, budget)
	if res == nil {
		res = &Result{Kind: kind}
	}
	elapsed := r.now().Sub(start)

	outcome := OutcomeStopped
	switch {
	case err != nil:
		outcome = OutcomeError
	case res.Done:
		outcome = OutcomeDone
	}

	span.SetAttributes(
		attribute.Int("crawler.upserted", res.Upserted),
		attribute.Int("crawler.units", res.Units),
		attribute.Bool("crawler.done", res.Done),
	)
	if r.observer != nil {
		r.observer.ObserveRun(kind, outcome, elapsed, res)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Crawler run failed",
			logger.Error(err),
			logger.Int("upserted", res.Upserted),
			logger.Duration("elapsed", elapsed),
		)
		return res, fmt.Errorf("crawl %s: %w", kind, err)
	}

	log.Info("Crawler run finished",
		logger.String("outcome", outcome),
		logger.String("stopped", string(res.Stopped)),
		logger.Int("units", res.Units),
		logger.Int("upserted", res.Upserted),
		logger.Int("skipped", res.Skipped),
		logger.Duration("elapsed", elapsed),
	)
	return res, nil
}

// RunAll invokes every registered crawler in order. A failing crawler does
// not stop the others; the errors are joined.
func (r *Runner) RunAll(ctx context.Context, opts RunOptions) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)
	for _, kind := range r.order {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := r.Run(ctx, kind, opts)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}
