// Package crawler runs the per-source ingest crawlers. Every run is bounded
// by a unit budget and a deadline, merges through the catalog upsert engine
// and resumes from its checkpoint on the next invocation.
package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/javainthinking/skillspick/internal/checkpoint"
	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/fetcher"
	"github.com/javainthinking/skillspick/internal/logger"
	"github.com/javainthinking/skillspick/internal/retry"
)

var (
	// ErrContractViolation marks an upstream response that breaks its own
	// pagination contract. It is fatal for the run and never retried.
	ErrContractViolation = errors.New("upstream contract violation")
	// ErrMissingCredential is returned when a source needs a credential that
	// is not configured.
	ErrMissingCredential = errors.New("missing source credential")
	// ErrUnknownKind is returned by the Runner for an unregistered kind.
	ErrUnknownKind = errors.New("unknown crawler kind")
)

// Fetcher performs upstream HTTP requests.
type Fetcher interface {
	FetchJSON(ctx context.Context, rawURL string, out any, opts ...fetcher.RequestOption) error
	FetchBytes(ctx context.Context, rawURL string, opts ...fetcher.RequestOption) ([]byte, error)
	FetchText(ctx context.Context, rawURL string, opts ...fetcher.RequestOption) (string, error)
	PostJSON(ctx context.Context, rawURL string, payload, out any, opts ...fetcher.RequestOption) error
}

// Merger reconciles one candidate with the catalog.
type Merger interface {
	UpsertSkill(ctx context.Context, candidate domain.IngestSkill, src domain.SourceRef) (*domain.Skill, error)
}

// CheckpointStore persists crawl positions.
type CheckpointStore interface {
	Load(ctx context.Context, kind, name string) (*domain.Checkpoint, error)
	Save(ctx context.Context, kind, name string, patch checkpoint.Patch) error
}

// Crawler is one bounded, resumable ingest source.
type Crawler interface {
	Kind() string
	Run(ctx context.Context, budget Budget) (*Result, error)
}

// StopReason says why a run ended before its source was exhausted.
type StopReason string

// Stop reasons.
const (
	StopBudget   StopReason = "budget"
	StopDeadline StopReason = "deadline"
	StopMaxItems StopReason = "max_items"
)

// Budget bounds one invocation.
type Budget struct {
	// MaxUnits caps the pages, directories or list documents handled in
	// one run. Zero uses the crawler's configured default.
	MaxUnits int
	// Deadline ends the run between units once passed. Zero means none.
	Deadline time.Time
}

func (b Budget) limit(def int) int {
	if b.MaxUnits > 0 {
		return b.MaxUnits
	}
	return def
}

func (b Budget) expired(now time.Time) bool {
	return !b.Deadline.IsZero() && !now.Before(b.Deadline)
}

// Result summarizes one invocation.
type Result struct {
	Kind     string     `json:"kind"`
	Units    int        `json:"units"`
	Upserted int        `json:"upserted"`
	Skipped  int        `json:"skipped"`
	Done     bool       `json:"done"`
	Stopped  StopReason `json:"stopped,omitempty"`
}

// Deps are the collaborators shared by every crawler.
type Deps struct {
	Fetcher     Fetcher
	Merger      Merger
	Checkpoints CheckpointStore
	Log         logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Option tunes a crawler.
type Option func(*options)

type options struct {
	fetchPolicy *retry.Config
}

// WithFetchPolicy replaces the crawler's upstream retry policy.
func WithFetchPolicy(p retry.Config) Option {
	return func(o *options) {
		o.fetchPolicy = &p
	}
}

func buildOptions(def retry.Config, opts []Option) retry.Config {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.fetchPolicy != nil {
		return *o.fetchPolicy
	}
	return def
}

// guard returns the reason a run must stop before starting another unit,
// or "" to continue.
func guard(b Budget, limit, used int, now time.Time) StopReason {
	if limit > 0 && used >= limit {
		return StopBudget
	}
	if b.expired(now) {
		return StopDeadline
	}
	return ""
}

// loadCursor reads the typed cursor of cp. A cursor that no longer decodes
// is logged and dropped so the source restarts from the beginning; merges
// are idempotent.
func loadCursor[T any](log logger.Logger, cp *domain.Checkpoint) (T, bool) {
	v, ok, err := checkpoint.DecodeCursor[T](cp)
	if err != nil {
		log.Warn("Discarding unreadable checkpoint cursor", logger.Error(err))
		var zero T
		return zero, false
	}
	return v, ok
}
