package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/javainthinking/skillspick/internal/checkpoint"
	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/fetcher"
	"github.com/javainthinking/skillspick/internal/logger"
	"github.com/javainthinking/skillspick/internal/normalize"
	"github.com/javainthinking/skillspick/internal/retry"
)

const (
	defaultRef         = "main"
	githubAccept       = "application/vnd.github+json"
	skillDocFile       = "SKILL.md"
	githubFetchTries   = 3
	githubFetchBackoff = time.Second
)

// treeCursor is the index of the next directory to merge. Older rows stored
// the bare number, which still decodes.
type treeCursor struct {
	Index int `json:"index"`
}

func (c *treeCursor) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		return json.Unmarshal(trimmed, &c.Index)
	}
	type plain treeCursor
	return json.Unmarshal(trimmed, (*plain)(c))
}

// Tree ingests one skill per subdirectory of configured repository
// directories.
type Tree struct {
	cfg    config.GitHubConfig
	deps   Deps
	policy retry.Config
}

// NewTree creates the directory tree crawler.
func NewTree(cfg config.GitHubConfig, deps Deps, opts ...Option) *Tree {
	return &Tree{
		cfg:    cfg,
		deps:   deps.withDefaults(),
		policy: buildOptions(fetcher.LinearPolicy(githubFetchTries, githubFetchBackoff), opts),
	}
}

// Kind implements Crawler.
func (c *Tree) Kind() string { return domain.KindGitHubTree }

// TreeSourceName is the checkpoint and source name of a tree source.
func TreeSourceName(src config.TreeSource) string {
	return src.Owner + "/" + src.Repo + ":" + src.DirPath
}

// Run implements Crawler. The checkpoint advances after every directory, so
// an interrupted run repeats at most the directory it was merging.
func (c *Tree) Run(ctx context.Context, budget Budget) (*Result, error) {
	log := c.deps.Log.With(logger.String("crawler", c.Kind()))
	res := &Result{Kind: c.Kind()}
	limit := budget.limit(c.cfg.MaxDirs)

	for _, src := range c.cfg.Trees {
		stopped, err := c.runSource(ctx, src, budget, limit, res, log)
		if err != nil {
			return res, err
		}
		if stopped {
			return res, nil
		}
	}

	res.Done = true
	return res, nil
}

// runSource merges the remaining directories of one tree source. It returns
// true when the run budget or deadline stopped it.
func (c *Tree) runSource(
	ctx context.Context,
	src config.TreeSource,
	budget Budget,
	limit int,
	res *Result,
	log logger.Logger,
) (bool, error) {
	name := TreeSourceName(src)
	log = log.With(logger.String("source", name))

	cp, err := c.deps.Checkpoints.Load(ctx, c.Kind(), name)
	if err != nil {
		return false, err
	}
	if cp != nil && cp.Done {
		log.Debug("Tree source already done")
		return false, nil
	}
	if reason := guard(budget, limit, res.Units, c.deps.Now()); reason != "" {
		res.Stopped = reason
		return true, nil
	}

	ref := src.Ref
	if ref == "" {
		ref = defaultRef
	}
	entries, err := c.listDir(ctx, src, ref)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", name, err)
	}
	dirs := normalize.TreeDirs(entries)

	state, _ := loadCursor[treeCursor](log, cp)
	start := min(max(state.Index, 0), len(dirs))
	total := 0
	if cp != nil {
		total = cp.UpsertedTotal
	}
	log.Info("Crawling tree source",
		logger.Int("dirs", len(dirs)),
		logger.Int("start", start),
		logger.Int("budget", limit-res.Units),
	)

	source := domain.SourceRef{
		Kind: c.Kind(),
		Name: name,
		URL:  normalize.TreeURL(src.Owner, src.Repo, ref, src.DirPath),
	}

	for i := start; i < len(dirs); i++ {
		if reason := guard(budget, limit, res.Units, c.deps.Now()); reason != "" {
			log.Info("Stopping tree run", logger.String("reason", string(reason)), logger.Int("next_index", i))
			res.Stopped = reason
			return true, nil
		}

		candidate, ok := normalize.TreeEntrySkill(dirs[i], src.Owner, src.Repo)
		if ok {
			if c.cfg.FetchSkillMDEnabled() {
				candidate = c.enrich(ctx, candidate, src, ref, dirs[i], log)
			}
			if _, mergeErr := c.deps.Merger.UpsertSkill(ctx, candidate, source); mergeErr != nil {
				return false, fmt.Errorf("merge %s/%s: %w", name, dirs[i].Name, mergeErr)
			}
			total++
			res.Upserted++
		} else {
			res.Skipped++
		}
		res.Units++

		cursor, encErr := checkpoint.EncodeCursor(treeCursor{Index: i + 1})
		if encErr != nil {
			return false, encErr
		}
		if saveErr := c.deps.Checkpoints.Save(ctx, c.Kind(), name, checkpoint.Patch{
			Cursor:        cursor,
			UpsertedTotal: checkpoint.Int(total),
			Done:          checkpoint.Bool(false),
		}); saveErr != nil {
			return false, saveErr
		}
	}

	cursor, err := checkpoint.EncodeCursor(treeCursor{Index: len(dirs)})
	if err != nil {
		return false, err
	}
	if saveErr := c.deps.Checkpoints.Save(ctx, c.Kind(), name, checkpoint.Patch{
		Cursor: cursor,
		Done:   checkpoint.Bool(true),
	}); saveErr != nil {
		return false, saveErr
	}
	log.Info("Tree source done", logger.Int("upserted_total", total))
	return false, nil
}

func (c *Tree) listDir(ctx context.Context, src config.TreeSource, ref string) ([]normalize.TreeEntry, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		strings.TrimRight(c.cfg.APIBaseURL, "/"), src.Owner, src.Repo,
		strings.Trim(src.DirPath, "/"), url.QueryEscape(ref))

	opts := []fetcher.RequestOption{fetcher.WithHeader("Accept", githubAccept)}
	if c.cfg.Token != "" {
		opts = append(opts, fetcher.WithBearer(c.cfg.Token))
	}

	var body json.RawMessage
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var fetchErr error
		body, fetchErr = c.deps.Fetcher.FetchBytes(ctx, endpoint, opts...)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	// A path that is not a directory comes back as a single object.
	if !gjson.ParseBytes(body).IsArray() {
		return nil, nil
	}
	var entries []normalize.TreeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode contents listing: %w", err)
	}
	return entries, nil
}

// enrich overlays the directory's SKILL.md when it can be fetched. Any
// failure leaves the candidate as listed.
func (c *Tree) enrich(
	ctx context.Context,
	candidate domain.IngestSkill,
	src config.TreeSource,
	ref string,
	entry normalize.TreeEntry,
	log logger.Logger,
) domain.IngestSkill {
	dir := entry.Path
	if dir == "" {
		dir = strings.Trim(src.DirPath, "/") + "/" + entry.Name
	}
	raw := normalize.RawURL(c.cfg.RawBaseURL, src.Owner, src.Repo, ref, dir+"/"+skillDocFile)

	body, err := c.deps.Fetcher.FetchBytes(ctx, raw)
	if err != nil {
		log.Debug("SKILL.md not available", logger.String("url", raw), logger.Error(err))
		return candidate
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return candidate
	}
	return normalize.WithSkillDoc(candidate, normalize.ParseSkillMD(body, candidate.Name))
}
