package crawler_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/crawler"
	"github.com/javainthinking/skillspick/internal/domain"
)

type convexCall struct {
	cursor *string
	client string
}

// newConvexServer answers successive listing queries with responses in
// order and records the cursor each request carried.
func newConvexServer(t *testing.T, responses ...string) (*httptest.Server, func() []convexCall) {
	t.Helper()

	var (
		mu    sync.Mutex
		calls []convexCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/query", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Path   string `json:"path"`
			Format string `json:"format"`
			Args   []struct {
				PaginationOpts struct {
					NumItems int     `json:"numItems"`
					Cursor   *string `json:"cursor"`
				} `json:"paginationOpts"`
			} `json:"args"`
		}
		if !assert.NoError(t, json.Unmarshal(raw, &body)) || !assert.Len(t, body.Args, 1) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "skills:listPublicPageV2", body.Path)
		assert.Equal(t, "convex_encoded_json", body.Format)
		assert.Equal(t, 2, body.Args[0].PaginationOpts.NumItems)

		mu.Lock()
		idx := len(calls)
		calls = append(calls, convexCall{cursor: body.Args[0].PaginationOpts.Cursor, client: r.Header.Get("Convex-Client")})
		mu.Unlock()

		if idx >= len(responses) {
			http.Error(w, "unexpected request", http.StatusTeapot)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, responses[idx])
	}))
	t.Cleanup(srv.Close)

	return srv, func() []convexCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]convexCall(nil), calls...)
	}
}

func clawHubConfig(srvURL string) config.ClawHubConfig {
	return config.ClawHubConfig{BaseURL: srvURL, PageSize: 2, MaxPages: 20, ClientName: "skillspick-test"}
}

const (
	clawHubPage1 = `{"status":"success","value":{"isDone":false,"continueCursor":"c1","page":[
		{"ownerHandle":"alice","skill":{"_id":"1","slug":"pdf","displayName":"PDF","summary":"pdfs","stats":{"stars":3}}},
		{"ownerHandle":"bob","skill":{"_id":"2","slug":"git","displayName":"Git","stats":{"stars":1}},
		 "latestVersion":{"parsed":{"frontmatter":{"repository":"bob/git-skill"}}}}
	]}}`
	clawHubPage2 = `{"status":"success","value":{"isDone":true,"continueCursor":"","page":[
		{"skill":{"_id":"3","slug":"sql","displayName":"SQL"}}
	]}}`
)

func TestClawHub_PaginatesAndCheckpoints(t *testing.T) {
	srv, calls := newConvexServer(t, clawHubPage1, clawHubPage2)
	store := newMemoryCheckpoints()
	merger := &recordingMerger{}
	c := crawler.NewClawHub(clawHubConfig(srv.URL), 4, newDeps(merger, store), fastRetry(1))

	res, err := c.Run(t.Context(), crawler.Budget{})
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, 2, res.Units)
	assert.Equal(t, 3, res.Upserted)

	got := calls()
	require.Len(t, got, 2)
	assert.Nil(t, got[0].cursor)
	require.NotNil(t, got[1].cursor)
	assert.Equal(t, "c1", *got[1].cursor)
	assert.Equal(t, "skillspick-test", got[0].client)

	assert.ElementsMatch(t, []string{"PDF", "Git", "SQL"}, merger.names())
	for _, call := range merger.all() {
		assert.Equal(t, domain.SourceRef{Kind: "clawhub", Name: "ClawHub", URL: "https://clawhub.ai/skills"}, call.source)
		if call.candidate.Name == "Git" {
			assert.Equal(t, "https://github.com/bob/git-skill", call.candidate.RepoURL)
		}
	}

	cp := store.get(t, domain.KindClawHub, "ClawHub")
	assert.True(t, cp.Done)
	assert.Equal(t, 2, cp.PageNo)
	assert.Equal(t, 3, cp.UpsertedTotal)
	assert.Equal(t, `{"cursor":"c1"}`, domain.StringValue(cp.Cursor))
}

func TestClawHub_BudgetStopsAndResumes(t *testing.T) {
	srv, calls := newConvexServer(t, clawHubPage1, clawHubPage2)
	store := newMemoryCheckpoints()
	merger := &recordingMerger{}
	c := crawler.NewClawHub(clawHubConfig(srv.URL), 1, newDeps(merger, store), fastRetry(1))

	res, err := c.Run(t.Context(), crawler.Budget{MaxUnits: 1})
	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.Equal(t, crawler.StopBudget, res.Stopped)
	assert.Equal(t, `{"cursor":"c1"}`, store.cursor(t, domain.KindClawHub, "ClawHub"))

	res, err = c.Run(t.Context(), crawler.Budget{MaxUnits: 1})
	require.NoError(t, err)
	assert.True(t, res.Done)

	got := calls()
	require.Len(t, got, 2)
	require.NotNil(t, got[1].cursor)
	assert.Equal(t, "c1", *got[1].cursor)
	assert.Equal(t, 3, store.get(t, domain.KindClawHub, "ClawHub").UpsertedTotal)
}

func TestClawHub_ContractViolationIsFatal(t *testing.T) {
	broken := `{"status":"success","value":{"isDone":false,"continueCursor":"","page":[
		{"skill":{"_id":"1","slug":"pdf","displayName":"PDF"}}
	]}}`
	srv, calls := newConvexServer(t, broken, clawHubPage2)
	store := newMemoryCheckpoints()
	merger := &recordingMerger{}
	c := crawler.NewClawHub(clawHubConfig(srv.URL), 2, newDeps(merger, store), fastRetry(3))

	_, err := c.Run(t.Context(), crawler.Budget{})
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrContractViolation)
	assert.Len(t, calls(), 1, "contract violations are not retried")
	assert.Empty(t, merger.names(), "the offending page is not merged")
	assert.Zero(t, store.saveCount(), "the checkpoint does not advance")
}

func TestClawHub_RetriesConvexErrors(t *testing.T) {
	failed := `{"status":"error","errorMessage":"overloaded"}`
	srv, calls := newConvexServer(t, failed, clawHubPage2)
	merger := &recordingMerger{}
	c := crawler.NewClawHub(clawHubConfig(srv.URL), 2, newDeps(merger, newMemoryCheckpoints()), fastRetry(3))

	res, err := c.Run(t.Context(), crawler.Budget{})
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Len(t, calls(), 2)
	assert.Equal(t, []string{"SQL"}, merger.names())
}

func TestClawHub_MergeErrorStopsBeforeCheckpoint(t *testing.T) {
	srv, _ := newConvexServer(t, clawHubPage1)
	store := newMemoryCheckpoints()
	merger := &recordingMerger{err: func(c domain.IngestSkill) error {
		if c.Name == "Git" {
			return errors.New("constraint violation")
		}
		return nil
	}}
	c := crawler.NewClawHub(clawHubConfig(srv.URL), 1, newDeps(merger, store), fastRetry(1))

	_, err := c.Run(t.Context(), crawler.Budget{})
	require.Error(t, err)
	assert.Zero(t, store.saveCount())
}

func TestClawHub_DoneIsNoop(t *testing.T) {
	srv, calls := newConvexServer(t)
	store := newMemoryCheckpoints()
	store.set(domain.KindClawHub, "ClawHub", `{"cursor":"zz"}`, true)
	c := crawler.NewClawHub(clawHubConfig(srv.URL), 1, newDeps(&recordingMerger{}, store), fastRetry(1))

	res, err := c.Run(t.Context(), crawler.Budget{})
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Empty(t, calls())
}
