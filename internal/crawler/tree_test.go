package crawler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/crawler"
	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/normalize"
)

const treeSourceName = "acme/skills:skills"

type treeServer struct {
	*httptest.Server
	listings atomic.Int32
}

// newTreeServer serves a contents listing with the given directories plus
// one file, and SKILL.md documents from docs keyed by directory name.
func newTreeServer(t *testing.T, dirs []string, docs map[string]string) *treeServer {
	t.Helper()

	ts := &treeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/skills/contents/skills", func(w http.ResponseWriter, r *http.Request) {
		ts.listings.Add(1)
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))

		entries := []normalize.TreeEntry{{Type: "file", Name: "README.md", Path: "skills/README.md"}}
		for _, d := range dirs {
			entries = append(entries, normalize.TreeEntry{
				Type:    "dir",
				Name:    d,
				Path:    "skills/" + d,
				HTMLURL: "https://github.com/acme/skills/tree/main/skills/" + d,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	})
	mux.HandleFunc("/raw/acme/skills/main/skills/{dir}/SKILL.md", func(w http.ResponseWriter, r *http.Request) {
		doc, ok := docs[r.PathValue("dir")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, doc)
	})

	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func treeConfig(srvURL string, fetchDocs bool) config.GitHubConfig {
	return config.GitHubConfig{
		APIBaseURL:   srvURL,
		RawBaseURL:   srvURL + "/raw",
		MaxDirs:      50,
		FetchSkillMD: &fetchDocs,
		Trees:        []config.TreeSource{{Owner: "acme", Repo: "skills", DirPath: "skills", Ref: "main"}},
	}
}

func TestTree_ResumesAcrossBudgetedRuns(t *testing.T) {
	srv := newTreeServer(t, []string{"a", "b", "c", "d", "e"}, nil)
	store := newMemoryCheckpoints()
	merger := &recordingMerger{}
	c := crawler.NewTree(treeConfig(srv.URL, false), newDeps(merger, store), fastRetry(1))

	wantStops := []struct {
		units   int
		done    bool
		stopped crawler.StopReason
		cursor  string
	}{
		{2, false, crawler.StopBudget, `{"index":2}`},
		{2, false, crawler.StopBudget, `{"index":4}`},
		{1, true, "", `{"index":5}`},
	}

	for i, want := range wantStops {
		res, err := c.Run(t.Context(), crawler.Budget{MaxUnits: 2})
		require.NoError(t, err, "run %d", i+1)
		assert.Equal(t, want.units, res.Units, "run %d units", i+1)
		assert.Equal(t, want.done, res.Done, "run %d done", i+1)
		assert.Equal(t, want.stopped, res.Stopped, "run %d stop reason", i+1)
		assert.Equal(t, want.cursor, store.cursor(t, domain.KindGitHubTree, treeSourceName), "run %d cursor", i+1)
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, merger.names())
	cp := store.get(t, domain.KindGitHubTree, treeSourceName)
	assert.True(t, cp.Done)
	assert.Equal(t, 5, cp.UpsertedTotal)

	// A finished source is not listed again.
	res, err := c.Run(t.Context(), crawler.Budget{MaxUnits: 2})
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Zero(t, res.Units)
	assert.Equal(t, int32(3), srv.listings.Load())
}

func TestTree_MergesEntryScopedCandidates(t *testing.T) {
	srv := newTreeServer(t, []string{"pdf"}, nil)
	merger := &recordingMerger{}
	c := crawler.NewTree(treeConfig(srv.URL, false), newDeps(merger, newMemoryCheckpoints()), fastRetry(1))

	_, err := c.Run(t.Context(), crawler.Budget{})
	require.NoError(t, err)

	calls := merger.all()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.IngestSkill{
		Name:        "pdf",
		RepoURL:     "https://github.com/acme/skills",
		SourceURL:   "https://github.com/acme/skills/tree/main/skills/pdf",
		EntryScoped: true,
	}, calls[0].candidate)
	assert.Equal(t, domain.SourceRef{
		Kind: domain.KindGitHubTree,
		Name: treeSourceName,
		URL:  "https://github.com/acme/skills/tree/main/skills",
	}, calls[0].source)
}

func TestTree_EnrichesFromSkillMD(t *testing.T) {
	docs := map[string]string{
		"pdf": "---\nname: pdf\ndescription: Fill and merge PDF forms.\n---\n# PDF\n",
	}
	srv := newTreeServer(t, []string{"pdf", "xlsx"}, docs)
	merger := &recordingMerger{}
	c := crawler.NewTree(treeConfig(srv.URL, true), newDeps(merger, newMemoryCheckpoints()), fastRetry(1))

	_, err := c.Run(t.Context(), crawler.Budget{})
	require.NoError(t, err)

	calls := merger.all()
	require.Len(t, calls, 2)
	assert.Equal(t, "Fill and merge PDF forms.", calls[0].candidate.Description)
	assert.Equal(t, docs["pdf"], calls[0].candidate.ReadmeMarkdown)
	// A missing SKILL.md leaves the listing data untouched.
	assert.Equal(t, "xlsx", calls[1].candidate.Name)
	assert.Empty(t, calls[1].candidate.Description)
}

func TestTree_ResumesFromLegacyNumericCursor(t *testing.T) {
	srv := newTreeServer(t, []string{"a", "b", "c", "d"}, nil)
	store := newMemoryCheckpoints()
	store.set(domain.KindGitHubTree, treeSourceName, "3", false)
	merger := &recordingMerger{}
	c := crawler.NewTree(treeConfig(srv.URL, false), newDeps(merger, store), fastRetry(1))

	res, err := c.Run(t.Context(), crawler.Budget{})
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, []string{"d"}, merger.names())
}

func TestTree_UnreadableCursorRestarts(t *testing.T) {
	srv := newTreeServer(t, []string{"a", "b"}, nil)
	store := newMemoryCheckpoints()
	store.set(domain.KindGitHubTree, treeSourceName, "not json", false)
	merger := &recordingMerger{}
	c := crawler.NewTree(treeConfig(srv.URL, false), newDeps(merger, store), fastRetry(1))

	_, err := c.Run(t.Context(), crawler.Budget{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, merger.names())
}

func TestTree_DeadlineStopsBeforeFirstUnit(t *testing.T) {
	srv := newTreeServer(t, []string{"a"}, nil)
	merger := &recordingMerger{}
	c := crawler.NewTree(treeConfig(srv.URL, false), newDeps(merger, newMemoryCheckpoints()), fastRetry(1))

	res, err := c.Run(t.Context(), crawler.Budget{Deadline: time.Now().Add(-time.Second)})
	require.NoError(t, err)
	assert.Equal(t, crawler.StopDeadline, res.Stopped)
	assert.False(t, res.Done)
	assert.Empty(t, merger.names())
	assert.Zero(t, srv.listings.Load())
}

func TestTree_DeadlineStopsBetweenUnits(t *testing.T) {
	srv := newTreeServer(t, []string{"a", "b", "c"}, nil)
	store := newMemoryCheckpoints()
	merger := &recordingMerger{}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	deps := newDeps(merger, store)
	// Each clock read advances a minute; the deadline passes after the
	// first directory.
	deps.Now = func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Minute)
	}
	c := crawler.NewTree(treeConfig(srv.URL, false), deps, fastRetry(1))

	res, err := c.Run(t.Context(), crawler.Budget{Deadline: base.Add(150 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, crawler.StopDeadline, res.Stopped)
	assert.Equal(t, []string{"a"}, merger.names())
	assert.Equal(t, `{"index":1}`, store.cursor(t, domain.KindGitHubTree, treeSourceName))
}

func TestTree_MergeErrorKeepsCheckpoint(t *testing.T) {
	srv := newTreeServer(t, []string{"a", "b", "c"}, nil)
	store := newMemoryCheckpoints()
	merger := &recordingMerger{err: func(c domain.IngestSkill) error {
		if c.Name == "b" {
			return fmt.Errorf("db down")
		}
		return nil
	}}
	c := crawler.NewTree(treeConfig(srv.URL, false), newDeps(merger, store), fastRetry(1))

	_, err := c.Run(t.Context(), crawler.Budget{})
	require.Error(t, err)
	assert.Equal(t, `{"index":1}`, store.cursor(t, domain.KindGitHubTree, treeSourceName))
	assert.False(t, store.get(t, domain.KindGitHubTree, treeSourceName).Done)
}

func TestTree_NonDirectoryListingIsEmpty(t *testing.T) {
	var fileListings atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/skills/contents/README.md", func(w http.ResponseWriter, _ *http.Request) {
		fileListings.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"type":"file","name":"README.md","path":"README.md"}`)
	})
	mux.HandleFunc("/repos/acme/skills/contents/skills", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]normalize.TreeEntry{{
			Type:    "dir",
			Name:    "pdf",
			Path:    "skills/pdf",
			HTMLURL: "https://github.com/acme/skills/tree/main/skills/pdf",
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := treeConfig(srv.URL, false)
	cfg.Trees = []config.TreeSource{
		{Owner: "acme", Repo: "skills", DirPath: "README.md", Ref: "main"},
		{Owner: "acme", Repo: "skills", DirPath: "skills", Ref: "main"},
	}
	store := newMemoryCheckpoints()
	merger := &recordingMerger{}
	c := crawler.NewTree(cfg, newDeps(merger, store), fastRetry(3))

	res, err := c.Run(t.Context(), crawler.Budget{})
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, int32(1), fileListings.Load())
	assert.Equal(t, []string{"pdf"}, merger.names())
	assert.True(t, store.get(t, domain.KindGitHubTree, "acme/skills:README.md").Done)
	assert.True(t, store.get(t, domain.KindGitHubTree, treeSourceName).Done)
}
