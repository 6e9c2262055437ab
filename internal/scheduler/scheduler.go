// Package scheduler triggers crawler runs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/crawler"
	"github.com/javainthinking/skillspick/internal/logger"
)

// Runner performs one bounded crawler invocation.
type Runner interface {
	Run(ctx context.Context, kind string, opts crawler.RunOptions) (*crawler.Result, error)
	Kinds() []string
}

// Entry describes one scheduled crawl.
type Entry struct {
	Kind string    `json:"kind"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Scheduler owns a cron instance whose entries map crawler kinds to specs.
// Apply replaces the entry set, so a reloaded config takes effect without
// a restart.
type Scheduler struct {
	runner Runner
	log    logger.Logger
	cron   *cron.Cron
	parser cron.Parser

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]scheduled
}

type scheduled struct {
	id   cron.EntryID
	spec string
}

// New creates a Scheduler. It does nothing until Start.
func New(runner Runner, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: log}
	return &Scheduler{
		runner: runner,
		log:    log,
		parser: parser,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:     context.Background(),
		entries: make(map[string]scheduled),
	}
}

// Apply replaces the scheduled entries with cfg. An invalid spec or an
// unknown kind rejects the whole config and keeps the current entries.
func (s *Scheduler) Apply(cfg config.ScheduleConfig) error {
	want := map[string]string{}
	if cfg.Enabled {
		want = cfg.Crawls
	}

	known := s.runner.Kinds()
	var errs []error
	for kind, spec := range want {
		if !slices.Contains(known, kind) {
			errs = append(errs, fmt.Errorf("schedule %q: %w", kind, crawler.ErrUnknownKind))
			continue
		}
		if _, err := s.parser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: parse %q: %w", kind, spec, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, e := range s.entries {
		if want[kind] == e.spec {
			continue
		}
		s.cron.Remove(e.id)
		delete(s.entries, kind)
		s.log.Info("Crawl unscheduled", logger.String("kind", kind))
	}

	for kind, spec := range want {
		if _, ok := s.entries[kind]; ok {
			continue
		}
		id, err := s.cron.AddFunc(spec, s.job(kind))
		if err != nil {
			return fmt.Errorf("schedule %q: %w", kind, err)
		}
		s.entries[kind] = scheduled{id: id, spec: spec}
		s.log.Info("Crawl scheduled",
			logger.String("kind", kind),
			logger.String("spec", spec),
		)
	}
	return nil
}

// Entries lists the scheduled crawls ordered by kind.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for kind, e := range s.entries {
		out = append(out, Entry{Kind: kind, Spec: e.spec, Next: s.cron.Entry(e.id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Start runs the cron loop. Jobs use ctx, so cancelling it aborts runs in
// flight at their next checkpoint.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info("Scheduler started", logger.Int("entries", len(s.Entries())))
}

// Stop halts the cron loop and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("Scheduler stopping")
	return s.cron.Stop()
}

func (s *Scheduler) job(kind string) func() {
	return func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		_, err := s.runner.Run(ctx, kind, crawler.RunOptions{})
		switch {
		case err == nil:
		case errors.Is(err, crawler.ErrAlreadyRunning):
			s.log.Info("Scheduled crawl skipped, run in progress", logger.String("kind", kind))
		default:
			s.log.Error("Scheduled crawl failed", logger.String("kind", kind), logger.Error(err))
		}
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
