package crawler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/javainthinking/skillspick/internal/checkpoint"
	"github.com/javainthinking/skillspick/internal/crawler"
	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/fetcher"
	"github.com/javainthinking/skillspick/internal/retry"
)

// memoryCheckpoints is an in-memory crawler.CheckpointStore with the same
// patch semantics as the Postgres store.
type memoryCheckpoints struct {
	mu    sync.Mutex
	rows  map[string]*domain.Checkpoint
	saves int
}

func newMemoryCheckpoints() *memoryCheckpoints {
	return &memoryCheckpoints{rows: make(map[string]*domain.Checkpoint)}
}

func (m *memoryCheckpoints) Load(_ context.Context, kind, name string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.rows[kind+"|"+name]
	if !ok {
		return nil, nil
	}
	cp2 := *cp
	return &cp2, nil
}

func (m *memoryCheckpoints) Save(_ context.Context, kind, name string, patch checkpoint.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++
	key := kind + "|" + name
	cp, ok := m.rows[key]
	if !ok {
		cp = &domain.Checkpoint{SourceKind: kind, SourceName: name}
		m.rows[key] = cp
	}
	if patch.Cursor != nil {
		c := *patch.Cursor
		cp.Cursor = &c
	}
	if patch.PageNo != nil {
		cp.PageNo = *patch.PageNo
	}
	if patch.UpsertedTotal != nil {
		cp.UpsertedTotal = *patch.UpsertedTotal
	}
	if patch.Done != nil {
		cp.Done = *patch.Done
	}
	cp.UpdatedAt = time.Now()
	return nil
}

// set seeds a checkpoint row.
func (m *memoryCheckpoints) set(kind, name, cursor string, done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := cursor
	m.rows[kind+"|"+name] = &domain.Checkpoint{SourceKind: kind, SourceName: name, Cursor: &c, Done: done}
}

func (m *memoryCheckpoints) get(t *testing.T, kind, name string) *domain.Checkpoint {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.rows[kind+"|"+name]
	if !ok {
		t.Fatalf("no checkpoint for %s/%s", kind, name)
	}
	return cp
}

func (m *memoryCheckpoints) cursor(t *testing.T, kind, name string) string {
	t.Helper()
	return domain.StringValue(m.get(t, kind, name).Cursor)
}

func (m *memoryCheckpoints) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type mergeCall struct {
	candidate domain.IngestSkill
	source    domain.SourceRef
}

// recordingMerger records candidates; err, when set, decides per candidate
// whether the merge fails.
type recordingMerger struct {
	mu    sync.Mutex
	calls []mergeCall
	err   func(domain.IngestSkill) error
}

func (m *recordingMerger) UpsertSkill(_ context.Context, c domain.IngestSkill, src domain.SourceRef) (*domain.Skill, error) {
	if m.err != nil {
		if err := m.err(c); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mergeCall{candidate: c, source: src})
	return &domain.Skill{Name: c.Name}, nil
}

func (m *recordingMerger) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.candidate.Name)
	}
	return out
}

func (m *recordingMerger) all() []mergeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mergeCall(nil), m.calls...)
}

// fastRetry keeps retry loops quick in tests.
func fastRetry(attempts int) crawler.Option {
	return crawler.WithFetchPolicy(retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Backoff:      retry.Linear,
		IsRetryable:  fetcher.Retryable,
	})
}

func newDeps(merger crawler.Merger, store crawler.CheckpointStore) crawler.Deps {
	return crawler.Deps{
		Fetcher:     fetcher.New(),
		Merger:      merger,
		Checkpoints: store,
	}
}
