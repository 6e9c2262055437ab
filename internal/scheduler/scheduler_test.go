package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/crawler"
	"github.com/javainthinking/skillspick/internal/domain"
)

type fakeRunner struct {
	mu    sync.Mutex
	kinds []string
	calls []string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, kind string, _ crawler.RunOptions) (*crawler.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	return &crawler.Result{Kind: kind}, f.err
}

func (f *fakeRunner) Kinds() []string { return f.kinds }

func newRunner() *fakeRunner {
	return &fakeRunner{kinds: []string{domain.KindClawHub, domain.KindGitHubTree, domain.KindSkillsMP}}
}

func TestApply(t *testing.T) {
	s := New(newRunner(), nil)

	require.NoError(t, s.Apply(config.ScheduleConfig{
		Enabled: true,
		Crawls: map[string]string{
			domain.KindClawHub:    "*/10 * * * *",
			domain.KindGitHubTree: "@hourly",
		},
	}))

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, domain.KindClawHub, entries[0].Kind)
	assert.Equal(t, "*/10 * * * *", entries[0].Spec)
	assert.Equal(t, domain.KindGitHubTree, entries[1].Kind)
	clawID := s.entries[domain.KindClawHub].id

	require.NoError(t, s.Apply(config.ScheduleConfig{
		Enabled: true,
		Crawls: map[string]string{
			domain.KindClawHub:  "*/10 * * * *",
			domain.KindSkillsMP: "0 3 * * *",
		},
	}))

	entries = s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, domain.KindSkillsMP, entries[1].Kind)
	assert.Equal(t, clawID, s.entries[domain.KindClawHub].id, "unchanged spec keeps its entry")

	require.NoError(t, s.Apply(config.ScheduleConfig{Enabled: false, Crawls: map[string]string{domain.KindClawHub: "@hourly"}}))
	assert.Empty(t, s.Entries())
}

func TestApply_RejectsWholeConfig(t *testing.T) {
	s := New(newRunner(), nil)
	require.NoError(t, s.Apply(config.ScheduleConfig{
		Enabled: true,
		Crawls:  map[string]string{domain.KindClawHub: "@hourly"},
	}))

	err := s.Apply(config.ScheduleConfig{
		Enabled: true,
		Crawls: map[string]string{
			domain.KindGitHubTree: "not a cron spec",
			"gitlab":              "@hourly",
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrUnknownKind)

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.KindClawHub, entries[0].Kind)
}

func TestJob_RunsKindAndSwallowsErrors(t *testing.T) {
	r := newRunner()
	r.err = errors.New("upstream down")
	s := New(r, nil)

	s.job(domain.KindSkillsMP)()
	r.err = crawler.ErrAlreadyRunning
	s.job(domain.KindSkillsMP)()

	assert.Equal(t, []string{domain.KindSkillsMP, domain.KindSkillsMP}, r.calls)
}

func TestStartStop(t *testing.T) {
	s := New(newRunner(), nil)
	s.Start(t.Context())

	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("schedule: {}\n"), 0o600))

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, 20*time.Millisecond, func() { calls.Add(1) }, nil)
	}()

	// Writes to other files in the directory are ignored.
	require.EventuallyWithT(t, func(c *assert.CollectT) {
		require.NoError(c, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x"), 0o600))
		require.NoError(c, os.WriteFile(path, []byte("schedule:\n  enabled: true\n"), 0o600))
		assert.Positive(c, calls.Load())
	}, 3*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
