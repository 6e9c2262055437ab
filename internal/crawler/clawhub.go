package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/javainthinking/skillspick/internal/checkpoint"
	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/fetcher"
	"github.com/javainthinking/skillspick/internal/logger"
	"github.com/javainthinking/skillspick/internal/normalize"
	"github.com/javainthinking/skillspick/internal/retry"
)

const (
	clawHubQueryPath   = "skills:listPublicPageV2"
	clawHubFormat      = "convex_encoded_json"
	clawHubSourceName  = "ClawHub"
	clawHubFetchTries  = 6
	clawHubFetchFirst  = time.Second
	clawHubFetchCeil   = 30 * time.Second
	convexStatusOK     = "success"
	convexClientHeader = "Convex-Client"
)

var clawHubSource = domain.SourceRef{
	Kind: domain.KindClawHub,
	Name: clawHubSourceName,
	URL:  normalize.ClawHubBaseURL + "/skills",
}

type clawHubCursor struct {
	Cursor string `json:"cursor"`
}

type convexRequest struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Args   []any  `json:"args"`
}

type convexPaginationOpts struct {
	NumItems int     `json:"numItems"`
	Cursor   *string `json:"cursor"`
}

type convexResponse struct {
	Status       string      `json:"status"`
	Value        clawHubPage `json:"value"`
	ErrorMessage string      `json:"errorMessage"`
}

type clawHubPage struct {
	Page           []normalize.ClawHubItem `json:"page"`
	IsDone         bool                    `json:"isDone"`
	ContinueCursor string                  `json:"continueCursor"`
}

// ClawHub walks the ClawHub public listing page by page.
type ClawHub struct {
	cfg         config.ClawHubConfig
	concurrency int
	deps        Deps
	policy      retry.Config
}

// NewClawHub creates the ClawHub crawler. writeConcurrency bounds the
// merges in flight for one page.
func NewClawHub(cfg config.ClawHubConfig, writeConcurrency int, deps Deps, opts ...Option) *ClawHub {
	if writeConcurrency <= 0 {
		writeConcurrency = 1
	}
	return &ClawHub{
		cfg:         cfg,
		concurrency: writeConcurrency,
		deps:        deps.withDefaults(),
		policy:      buildOptions(fetcher.ExponentialPolicy(clawHubFetchTries, clawHubFetchFirst, clawHubFetchCeil), opts),
	}
}

// Kind implements Crawler.
func (c *ClawHub) Kind() string { return domain.KindClawHub }

// Run implements Crawler. The checkpoint advances after each fully merged
// page and is marked done once the listing reports isDone.
func (c *ClawHub) Run(ctx context.Context, budget Budget) (*Result, error) {
	log := c.deps.Log.With(logger.String("crawler", c.Kind()))
	res := &Result{Kind: c.Kind()}

	cp, err := c.deps.Checkpoints.Load(ctx, c.Kind(), clawHubSourceName)
	if err != nil {
		return res, err
	}
	if cp != nil && cp.Done {
		log.Info("ClawHub listing already done")
		res.Done = true
		return res, nil
	}

	state, _ := loadCursor[clawHubCursor](log, cp)
	var pageNo, total int
	if cp != nil {
		pageNo, total = cp.PageNo, cp.UpsertedTotal
	}

	limit := budget.limit(c.cfg.MaxPages)
	for {
		if reason := guard(budget, limit, res.Units, c.deps.Now()); reason != "" {
			log.Info("Stopping ClawHub run", logger.String("reason", string(reason)), logger.Int("page_no", pageNo))
			res.Stopped = reason
			return res, nil
		}

		page, fetchErr := c.fetchPage(ctx, state.Cursor, log)
		if fetchErr != nil {
			return res, fmt.Errorf("clawhub page %d: %w", pageNo+1, fetchErr)
		}
		if !page.IsDone && page.ContinueCursor == "" {
			return res, fmt.Errorf("clawhub page %d: %w: isDone=false without continueCursor", pageNo+1, ErrContractViolation)
		}

		merged, skipped, mergeErr := c.mergePage(ctx, page.Page, log)
		res.Upserted += merged
		res.Skipped += skipped
		if mergeErr != nil {
			return res, fmt.Errorf("clawhub page %d: %w", pageNo+1, mergeErr)
		}

		pageNo++
		total += merged
		res.Units++
		log.Info("ClawHub page merged",
			logger.Int("page_no", pageNo),
			logger.Int("items", len(page.Page)),
			logger.Int("upserted_total", total),
		)

		patch := checkpoint.Patch{
			PageNo:        checkpoint.Int(pageNo),
			UpsertedTotal: checkpoint.Int(total),
			Done:          checkpoint.Bool(page.IsDone),
		}
		if !page.IsDone {
			state = clawHubCursor{Cursor: page.ContinueCursor}
			if patch.Cursor, err = checkpoint.EncodeCursor(state); err != nil {
				return res, err
			}
		}
		if saveErr := c.deps.Checkpoints.Save(ctx, c.Kind(), clawHubSourceName, patch); saveErr != nil {
			return res, saveErr
		}

		if page.IsDone {
			log.Info("ClawHub listing done", logger.Int("upserted_total", total))
			res.Done = true
			return res, nil
		}
	}
}

func (c *ClawHub) fetchPage(ctx context.Context, cursor string, log logger.Logger) (*clawHubPage, error) {
	opts := convexPaginationOpts{NumItems: c.cfg.PageSize}
	if cursor != "" {
		opts.Cursor = &cursor
	}
	body := convexRequest{
		Path:   clawHubQueryPath,
		Format: clawHubFormat,
		Args:   []any{map[string]any{"paginationOpts": opts}},
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/query"

	policy := c.policy
	policy.OnRetry = func(attempt int, err error) {
		log.Warn("ClawHub query failed, retrying",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", policy.MaxAttempts),
			logger.Error(err),
		)
	}

	var page clawHubPage
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var resp convexResponse
		if err := c.deps.Fetcher.PostJSON(ctx, endpoint, body, &resp,
			fetcher.WithHeader(convexClientHeader, c.cfg.ClientName),
		); err != nil {
			return err
		}
		if resp.Status != convexStatusOK {
			return fmt.Errorf("convex query %s failed: %s", clawHubQueryPath, resp.ErrorMessage)
		}
		page = resp.Value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// mergePage merges every item of a page with bounded fan-out. The first
// merge error cancels the remaining merges of the page.
func (c *ClawHub) mergePage(ctx context.Context, items []normalize.ClawHubItem, log logger.Logger) (int, int, error) {
	var merged, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, item := range items {
		candidate, ok := normalize.ClawHub(item)
		if !ok {
			log.Debug("Skipping ClawHub item without a name", logger.String("id", item.Skill.ID))
			skipped.Add(1)
			continue
		}
		g.Go(func() error {
			if _, err := c.deps.Merger.UpsertSkill(gctx, candidate, clawHubSource); err != nil {
				return fmt.Errorf("merge %q: %w", candidate.Name, err)
			}
			merged.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(merged.Load()), int(skipped.Load()), err
}
