// Package checkpoint persists per-source crawl positions so bounded runs can
// resume where the previous run stopped.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/javainthinking/skillspick/internal/domain"
)

const selectColumns = `id, source_kind, source_name, cursor, page_no, upserted_total, done, updated_at`

// DBProvider hands out the current connection pool.
type DBProvider interface {
	DB(ctx context.Context) (*sqlx.DB, error)
}

// Patch lists the checkpoint fields to change. Nil fields keep their
// stored value, or take the zero default when the row is created.
type Patch struct {
	Cursor        *string
	PageNo        *int
	UpsertedTotal *int
	Done          *bool
}

// Store reads and writes skills_ingest_state rows.
type Store struct {
	db DBProvider
}

// NewStore creates a checkpoint store.
func NewStore(db DBProvider) *Store {
	return &Store{db: db}
}

// Load returns the checkpoint for (kind, name), or nil when the source has
// never been run.
func (s *Store) Load(ctx context.Context, kind, name string) (*domain.Checkpoint, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	query := `SELECT ` + selectColumns + ` FROM skills_ingest_state WHERE source_kind = $1 AND source_name = $2`

	var cp domain.Checkpoint
	if getErr := db.GetContext(ctx, &cp, query, kind, name); getErr != nil {
		if errors.Is(getErr, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint %s/%s: %w", kind, name, getErr)
	}

	return &cp, nil
}

// Save creates or patches the checkpoint for (kind, name) in one statement.
// updated_at is always refreshed.
func (s *Store) Save(ctx context.Context, kind, name string, patch Patch) error {
	db, err := s.db.DB(ctx)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	query := `
		INSERT INTO skills_ingest_state
			(source_kind, source_name, cursor, page_no, upserted_total, done, updated_at)
		VALUES ($1, $2, $3::text, COALESCE($4::integer, 0), COALESCE($5::integer, 0),
			COALESCE($6::boolean, FALSE), NOW())
		ON CONFLICT (source_kind, source_name) DO UPDATE SET
			cursor = COALESCE($3::text, skills_ingest_state.cursor),
			page_no = COALESCE($4::integer, skills_ingest_state.page_no),
			upserted_total = COALESCE($5::integer, skills_ingest_state.upserted_total),
			done = COALESCE($6::boolean, skills_ingest_state.done),
			updated_at = NOW()
	`

	if _, execErr := db.ExecContext(ctx, query,
		kind, name, patch.Cursor, patch.PageNo, patch.UpsertedTotal, patch.Done,
	); execErr != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", kind, name, execErr)
	}

	return nil
}

// List returns every checkpoint ordered by kind and name.
func (s *Store) List(ctx context.Context) ([]*domain.Checkpoint, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	query := `SELECT ` + selectColumns + ` FROM skills_ingest_state ORDER BY source_kind, source_name`

	var cps []*domain.Checkpoint
	if selectErr := db.SelectContext(ctx, &cps, query); selectErr != nil {
		return nil, fmt.Errorf("list checkpoints: %w", selectErr)
	}

	if cps == nil {
		cps = []*domain.Checkpoint{}
	}

	return cps, nil
}

// ErrCheckpointNotFound is returned by Reset when no row matches.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Reset clears cursor, page and done so a finished source is crawled again.
// The running total is kept.
func (s *Store) Reset(ctx context.Context, kind, name string) error {
	db, err := s.db.DB(ctx)
	if err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}

	query := `
		UPDATE skills_ingest_state
		SET cursor = NULL, page_no = 0, done = FALSE, updated_at = NOW()
		WHERE source_kind = $1 AND source_name = $2
	`

	result, execErr := db.ExecContext(ctx, query, kind, name)
	if execErr != nil {
		return fmt.Errorf("reset checkpoint %s/%s: %w", kind, name, execErr)
	}

	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("reset checkpoint %s/%s: %w", kind, name, rowsErr)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s/%s", ErrCheckpointNotFound, kind, name)
	}

	return nil
}
