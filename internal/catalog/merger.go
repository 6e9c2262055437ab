// Package catalog owns writes to the skill catalog: the upsert engine that
// reconciles crawler candidates with existing rows, plus curation and query
// helpers used by the CLI and HTTP API.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/logger"
	"github.com/javainthinking/skillspick/internal/retry"
	"github.com/javainthinking/skillspick/internal/slug"
)

const (
	defaultMergeAttempts   = 4
	defaultMergeRetryDelay = 500 * time.Millisecond
	// maxSlugCandidates bounds the base, base-2, base-3 ... probing on insert.
	maxSlugCandidates = 25

	tracerName = "github.com/javainthinking/skillspick/internal/catalog"
)

var (
	// ErrInvalidCandidate is returned for a candidate without a name.
	ErrInvalidCandidate = errors.New("invalid skill candidate")
	// ErrSlugExhausted is returned when every slug candidate belongs to another skill.
	ErrSlugExhausted = errors.New("no free slug for skill")
)

// DBProvider hands out the current pool and can discard it after a
// connection-level failure.
type DBProvider interface {
	DB(ctx context.Context) (*sqlx.DB, error)
	Reset()
}

// RetryObserver is notified on every transient-failure retry.
type RetryObserver interface {
	ObserveMergeRetry()
}

// Merger is the catalog upsert engine.
type Merger struct {
	db       DBProvider
	log      logger.Logger
	tracer   trace.Tracer
	observer RetryObserver
	attempts int
	delay    time.Duration
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithRetryObserver sets the retry observer.
func WithRetryObserver(o RetryObserver) MergerOption {
	return func(m *Merger) { m.observer = o }
}

// WithRetryPolicy overrides the attempt ceiling and linear backoff step.
func WithRetryPolicy(attempts int, step time.Duration) MergerOption {
	return func(m *Merger) {
		m.attempts = attempts
		m.delay = step
	}
}

// NewMerger creates a Merger.
func NewMerger(db DBProvider, log logger.Logger, opts ...MergerOption) *Merger {
	if log == nil {
		log = logger.NewNop()
	}
	m := &Merger{
		db:       db,
		log:      log,
		tracer:   otel.Tracer(tracerName),
		attempts: defaultMergeAttempts,
		delay:    defaultMergeRetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpsertSkill merges candidate into the catalog and records that it was
// seen through src. The whole call is one transaction; transient connection
// failures reset the pool and retry the call from the start.
func (m *Merger) UpsertSkill(ctx context.Context, candidate domain.IngestSkill, src domain.SourceRef) (*domain.Skill, error) {
	candidate.Name = strings.TrimSpace(candidate.Name)
	if candidate.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidCandidate)
	}
	if src.URL == "" {
		return nil, fmt.Errorf("%w: source %q has no url", ErrInvalidCandidate, src.Name)
	}

	ctx, span := m.tracer.Start(ctx, "catalog.UpsertSkill", trace.WithAttributes(
		attribute.String("skill.name", candidate.Name),
		attribute.String("source.kind", src.Kind),
	))
	defer span.End()

	cfg := retry.Config{
		MaxAttempts:  m.attempts,
		InitialDelay: m.delay,
		MaxDelay:     m.delay * time.Duration(m.attempts),
		Backoff:      retry.Linear,
		IsRetryable:  IsTransient,
		OnRetry: func(attempt int, err error) {
			m.log.Warn("Transient storage error, resetting connection",
				logger.Int("attempt", attempt),
				logger.String("skill", candidate.Name),
				logger.Error(err),
			)
			if m.observer != nil {
				m.observer.ObserveMergeRetry()
			}
			m.db.Reset()
		},
	}

	var skill *domain.Skill
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		var upsertErr error
		skill, upsertErr = m.upsertOnce(ctx, candidate, src)
		return upsertErr
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, fmt.Errorf("upsert skill %q: %w", candidate.Name, err)
	}

	span.SetAttributes(attribute.String("skill.id", skill.ID))
	return skill, nil
}

func (m *Merger) upsertOnce(ctx context.Context, c domain.IngestSkill, src domain.SourceRef) (*domain.Skill, error) {
	db, err := m.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	source, err := ensureSource(ctx, tx, src)
	if err != nil {
		return nil, err
	}

	skill, err := mergeCandidate(ctx, tx, c)
	if err != nil {
		return nil, err
	}

	if _, linkErr := tx.ExecContext(ctx, linkSourceQuery, skill.ID, source.ID); linkErr != nil {
		return nil, fmt.Errorf("link skill to source: %w", linkErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, fmt.Errorf("commit upsert: %w", commitErr)
	}
	committed = true

	return skill, nil
}

// ensureSource inserts the source or, when its URL already exists, touches
// and returns the stored row. Both statements are atomic on their own.
func ensureSource(ctx context.Context, tx *sqlx.Tx, src domain.SourceRef) (*domain.Source, error) {
	var source domain.Source
	err := tx.GetContext(ctx, &source, insertSourceQuery, src.Kind, src.Name, src.URL)
	if err == nil {
		return &source, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("insert source %s: %w", src.URL, err)
	}

	if touchErr := tx.GetContext(ctx, &source, touchSourceQuery, src.URL); touchErr != nil {
		return nil, fmt.Errorf("load source %s: %w", src.URL, touchErr)
	}
	return &source, nil
}

// mergeCandidate runs the match cascade: repository identity, then the weak
// name match, then a new row.
func mergeCandidate(ctx context.Context, tx *sqlx.Tx, c domain.IngestSkill) (*domain.Skill, error) {
	desc := nullable(c.Description)
	homepage := nullable(c.HomepageURL)
	repo := nullable(c.RepoURL)
	entry := nullable(c.SourceURL)
	readme := nullable(c.ReadmeMarkdown)

	if repo != nil {
		var skill domain.Skill
		var err error
		if c.EntryScoped && entry != nil {
			err = tx.GetContext(ctx, &skill, updateByRepoEntryQuery,
				*repo, *entry, c.Name, desc, homepage, c.Stars, readme)
		} else {
			err = tx.GetContext(ctx, &skill, updateByRepoQuery,
				*repo, c.Name, desc, homepage, entry, c.Stars, readme)
		}
		switch {
		case err == nil:
			return &skill, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("merge by repo: %w", err)
		}
	}

	// A candidate with its own entry identity inside a shared repo never
	// falls back to the name match; sibling skills often share names.
	if !c.EntryScoped {
		var skill domain.Skill
		err := tx.GetContext(ctx, &skill, updateByNameQuery,
			c.Name, desc, homepage, repo, entry, c.Stars, readme)
		switch {
		case err == nil:
			return &skill, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("merge by name: %w", err)
		}
	}

	return insertSkill(ctx, tx, c, desc, homepage, repo, entry, readme)
}

// insertSkill creates a row under the first free slug candidate. A slug held
// by the same identity is updated in place, which makes concurrent first
// sightings converge on one row.
func insertSkill(
	ctx context.Context, tx *sqlx.Tx, c domain.IngestSkill,
	desc, homepage, repo, entry, readme *string,
) (*domain.Skill, error) {
	base := slug.Build(c.Name, c.RepoURL)

	for n := 1; n <= maxSlugCandidates; n++ {
		candidate := slug.Candidate(base, n)

		var skill domain.Skill
		err := tx.GetContext(ctx, &skill, insertSkillQuery,
			c.Name, candidate, desc, homepage, repo, entry, c.Stars, readme, c.EntryScoped)
		if err == nil {
			return &skill, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("insert skill %s: %w", candidate, err)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrSlugExhausted, base)
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
