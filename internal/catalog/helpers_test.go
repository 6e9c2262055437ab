package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var skillCols = []string{
	"id", "name", "slug", "description", "homepage_url", "repo_url", "source_url", "stars",
	"readme_markdown", "first_seen_at", "last_seen_at", "created_at", "updated_at",
	"highlighted", "highlighted_at",
}

var sourceCols = []string{"id", "kind", "name", "url", "created_at", "updated_at"}

// fakeDB hands out one sqlmock-backed pool and counts resets.
type fakeDB struct {
	db     *sqlx.DB
	resets int
}

func (f *fakeDB) DB(context.Context) (*sqlx.DB, error) { return f.db, nil }

func (f *fakeDB) Reset() { f.resets++ }

func newFakeDB(t *testing.T) (*fakeDB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })

	return &fakeDB{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

type skillRow struct {
	id, name, slug, description string
	homepage, repo, entry       any
	stars                       int
}

func skillRows(rows ...skillRow) *sqlmock.Rows {
	now := time.Now()
	out := sqlmock.NewRows(skillCols)
	for _, r := range rows {
		out.AddRow(r.id, r.name, r.slug, r.description, r.homepage, r.repo, r.entry, r.stars,
			nil, now, now, now, now, false, nil)
	}
	return out
}

func sourceRow(id, kind, name, url string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(sourceCols).AddRow(id, kind, name, url, now, now)
}
