package checkpoint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/javainthinking/skillspick/internal/checkpoint"
	"github.com/javainthinking/skillspick/internal/domain"
)

var checkpointColumns = []string{
	"id", "source_kind", "source_name", "cursor", "page_no", "upserted_total", "done", "updated_at",
}

type staticDB struct {
	db *sqlx.DB
}

func (s staticDB) DB(context.Context) (*sqlx.DB, error) { return s.db, nil }

func newStore(t *testing.T) (*checkpoint.Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })

	return checkpoint.NewStore(staticDB{db: sqlx.NewDb(mockDB, "postgres")}), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStore_Load_Absent(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery("SELECT .+ FROM skills_ingest_state WHERE source_kind").
		WithArgs("clawhub", "ClawHub").
		WillReturnRows(sqlmock.NewRows(checkpointColumns))

	cp, err := store.Load(t.Context(), "clawhub", "ClawHub")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil checkpoint, got %+v", cp)
	}
	expectationsMet(t, mock)
}

func TestStore_Load_Present(t *testing.T) {
	store, mock := newStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM skills_ingest_state WHERE source_kind").
		WithArgs("github_tree", "openai/skills:skills/.curated").
		WillReturnRows(sqlmock.NewRows(checkpointColumns).AddRow(
			"cp-1", "github_tree", "openai/skills:skills/.curated", `{"index":3}`, 3, 3, false, now,
		))

	cp, err := store.Load(t.Context(), "github_tree", "openai/skills:skills/.curated")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cp == nil || cp.PageNo != 3 || cp.Done {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}

	type treeCursor struct {
		Index int `json:"index"`
	}
	cur, ok, decodeErr := checkpoint.DecodeCursor[treeCursor](cp)
	if decodeErr != nil || !ok {
		t.Fatalf("DecodeCursor() ok=%v err=%v", ok, decodeErr)
	}
	if cur.Index != 3 {
		t.Errorf("expected index 3, got %d", cur.Index)
	}
	expectationsMet(t, mock)
}

func TestStore_Save_PassesOnlyPatchedFields(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("INSERT INTO skills_ingest_state").
		WithArgs("skillsmp", "skillsmp.com", `{"query_index":2,"page":5}`, nil, 40, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cursor, err := checkpoint.EncodeCursor(struct {
		QueryIndex int `json:"query_index"`
		Page       int `json:"page"`
	}{QueryIndex: 2, Page: 5})
	if err != nil {
		t.Fatalf("EncodeCursor() error = %v", err)
	}

	saveErr := store.Save(t.Context(), "skillsmp", "skillsmp.com", checkpoint.Patch{
		Cursor:        cursor,
		UpsertedTotal: checkpoint.Int(40),
	})
	if saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}
	expectationsMet(t, mock)
}

func TestStore_Save_Done(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("ON CONFLICT \\(source_kind, source_name\\) DO UPDATE").
		WithArgs("github_list", domain.RunnerSourceName, nil, 3, nil, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(t.Context(), "github_list", domain.RunnerSourceName, checkpoint.Patch{
		PageNo: checkpoint.Int(3),
		Done:   checkpoint.Bool(true),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestStore_Save_Error(t *testing.T) {
	store, mock := newStore(t)
	errDB := errors.New("db down")

	mock.ExpectExec("INSERT INTO skills_ingest_state").WillReturnError(errDB)

	err := store.Save(t.Context(), "clawhub", "ClawHub", checkpoint.Patch{Done: checkpoint.Bool(true)})
	if !errors.Is(err, errDB) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestStore_List(t *testing.T) {
	store, mock := newStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM skills_ingest_state ORDER BY").
		WillReturnRows(sqlmock.NewRows(checkpointColumns).
			AddRow("a", "clawhub", "ClawHub", nil, 10, 500, false, now).
			AddRow("b", "skillsmp", "skillsmp.com", `{"query_index":0,"page":2}`, 1, 90, false, now))

	cps, err := store.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(cps) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(cps))
	}
	if cps[0].Cursor != nil || cps[1].Cursor == nil {
		t.Errorf("unexpected cursors: %v %v", cps[0].Cursor, cps[1].Cursor)
	}
	expectationsMet(t, mock)
}

func TestStore_Reset(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("UPDATE skills_ingest_state").
		WithArgs("clawhub", "ClawHub").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE skills_ingest_state").
		WithArgs("clawhub", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Reset(t.Context(), "clawhub", "ClawHub"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := store.Reset(t.Context(), "clawhub", "missing"); !errors.Is(err, checkpoint.ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestDecodeCursor_NoCursor(t *testing.T) {
	_, ok, err := checkpoint.DecodeCursor[map[string]int](nil)
	if ok || err != nil {
		t.Errorf("nil checkpoint: ok=%v err=%v", ok, err)
	}

	bad := "not json"
	_, ok, err = checkpoint.DecodeCursor[map[string]int](&domain.Checkpoint{Cursor: &bad})
	if ok || err == nil {
		t.Errorf("expected decode error for plain cursor, ok=%v err=%v", ok, err)
	}
}
