package crawler

import (
	"context"
	"fmt"

	"github.com/javainthinking/skillspick/internal/checkpoint"
	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/fetcher"
	"github.com/javainthinking/skillspick/internal/logger"
	"github.com/javainthinking/skillspick/internal/normalize"
	"github.com/javainthinking/skillspick/internal/retry"
)

// fallbackRef is tried when a list without an explicit ref is missing on
// the default branch.
const fallbackRef = "master"

type runnerCursor struct {
	NextSourceIndex int `json:"next_source_index"`
}

// Awesome ingests repository links from curated markdown lists.
type Awesome struct {
	cfg    config.AwesomeConfig
	github config.GitHubConfig
	deps   Deps
	policy retry.Config
}

// NewAwesome creates the awesome-list crawler. Raw documents are fetched
// from github.RawBaseURL.
func NewAwesome(cfg config.AwesomeConfig, github config.GitHubConfig, deps Deps, opts ...Option) *Awesome {
	return &Awesome{
		cfg:    cfg,
		github: github,
		deps:   deps.withDefaults(),
		policy: buildOptions(fetcher.LinearPolicy(githubFetchTries, githubFetchBackoff), opts),
	}
}

// Kind implements Crawler.
func (c *Awesome) Kind() string { return domain.KindGitHubList }

// ListSourceName is the checkpoint and source name of a list.
func ListSourceName(src config.ListSource) string {
	return src.Owner + "/" + src.Repo
}

// Run implements Crawler. A runner checkpoint holds the index of the next
// list; each list is merged whole and then marked done.
func (c *Awesome) Run(ctx context.Context, budget Budget) (*Result, error) {
	log := c.deps.Log.With(logger.String("crawler", c.Kind()))
	res := &Result{Kind: c.Kind()}

	runner, err := c.deps.Checkpoints.Load(ctx, c.Kind(), domain.RunnerSourceName)
	if err != nil {
		return res, err
	}
	if runner != nil && runner.Done {
		log.Info("All lists already done")
		res.Done = true
		return res, nil
	}
	state, _ := loadCursor[runnerCursor](log, runner)

	limit := budget.limit(c.cfg.MaxSources)
	for i := max(state.NextSourceIndex, 0); i < len(c.cfg.Lists); i++ {
		if reason := guard(budget, limit, res.Units, c.deps.Now()); reason != "" {
			log.Info("Stopping list run", logger.String("reason", string(reason)), logger.Int("next_source_index", i))
			res.Stopped = reason
			return res, nil
		}

		fetched, srcErr := c.runSource(ctx, c.cfg.Lists[i], res, log)
		if srcErr != nil {
			return res, srcErr
		}
		if fetched {
			res.Units++
		}

		if saveErr := c.saveRunner(ctx, i+1, false); saveErr != nil {
			return res, saveErr
		}
	}

	if saveErr := c.saveRunner(ctx, len(c.cfg.Lists), true); saveErr != nil {
		return res, saveErr
	}
	res.Done = true
	return res, nil
}

// runSource merges one list. It reports false when the list was already
// done and nothing was fetched.
func (c *Awesome) runSource(ctx context.Context, src config.ListSource, res *Result, log logger.Logger) (bool, error) {
	name := ListSourceName(src)
	log = log.With(logger.String("source", name))

	cp, err := c.deps.Checkpoints.Load(ctx, c.Kind(), name)
	if err != nil {
		return false, err
	}
	if cp != nil && cp.Done {
		log.Debug("List already done")
		return false, nil
	}

	md, ref, err := c.fetchList(ctx, src)
	if err != nil {
		return false, fmt.Errorf("fetch list %s: %w", name, err)
	}

	listURL := normalize.RepoURL(src.Owner, src.Repo)
	source := domain.SourceRef{Kind: c.Kind(), Name: name, URL: listURL}
	links := normalize.ExtractLinks(md)
	candidates := normalize.AwesomeLinks(md, listURL, c.cfg.MaxLinks)
	res.Skipped += max(len(links)-len(candidates), 0)

	merged := 0
	for _, candidate := range candidates {
		if _, mergeErr := c.deps.Merger.UpsertSkill(ctx, candidate, source); mergeErr != nil {
			return false, fmt.Errorf("merge %s %q: %w", name, candidate.Name, mergeErr)
		}
		merged++
		res.Upserted++
	}

	total := merged
	if cp != nil {
		total += cp.UpsertedTotal
	}
	if saveErr := c.deps.Checkpoints.Save(ctx, c.Kind(), name, checkpoint.Patch{
		UpsertedTotal: checkpoint.Int(total),
		Done:          checkpoint.Bool(true),
	}); saveErr != nil {
		return false, saveErr
	}

	log.Info("List ingested", logger.String("ref", ref), logger.Int("links", len(links)), logger.Int("upserted", merged))
	return true, nil
}

// fetchList downloads the raw list document. Without an explicit ref the
// default branch is tried first, then master.
func (c *Awesome) fetchList(ctx context.Context, src config.ListSource) (string, string, error) {
	refs := []string{src.Ref}
	if src.Ref == "" {
		refs = []string{defaultRef, fallbackRef}
	}

	var lastErr error
	for _, ref := range refs {
		raw := normalize.RawURL(c.github.RawBaseURL, src.Owner, src.Repo, ref, src.Path)

		var md string
		err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
			var fetchErr error
			md, fetchErr = c.deps.Fetcher.FetchText(ctx, raw)
			return fetchErr
		})
		if err == nil {
			return md, ref, nil
		}
		lastErr = err
		if !fetcher.IsNotFound(err) {
			break
		}
	}
	return "", "", lastErr
}

func (c *Awesome) saveRunner(ctx context.Context, next int, done bool) error {
	cursor, err := checkpoint.EncodeCursor(runnerCursor{NextSourceIndex: next})
	if err != nil {
		return err
	}
	return c.deps.Checkpoints.Save(ctx, c.Kind(), domain.RunnerSourceName, checkpoint.Patch{
		Cursor: cursor,
		Done:   checkpoint.Bool(done),
	})
}
