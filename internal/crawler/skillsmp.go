package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/javainthinking/skillspick/internal/checkpoint"
	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/fetcher"
	"github.com/javainthinking/skillspick/internal/logger"
	"github.com/javainthinking/skillspick/internal/normalize"
	"github.com/javainthinking/skillspick/internal/retry"
)

const skillsMPSourceName = "skillsmp.com"

var skillsMPSource = domain.SourceRef{
	Kind: domain.KindSkillsMP,
	Name: skillsMPSourceName,
	URL:  "https://skillsmp.com",
}

// skillsMPListPaths are the response shapes that carry the hit list, in
// lookup order. "@this" is a top-level array.
var skillsMPListPaths = []string{"@this", "skills", "data", "data.skills", "result", "result.skills"}

// searchCursor is the next (query, page) to request. Rows written before
// the field rename used qIndex. Offset is the first hit of Page not yet
// merged when a run stopped partway through the page.
type searchCursor struct {
	QueryIndex int `json:"query_index"`
	Page       int `json:"page"`
	Offset     int `json:"offset,omitempty"`
}

func (c *searchCursor) UnmarshalJSON(data []byte) error {
	var raw struct {
		QueryIndex *int `json:"query_index"`
		QIndex     *int `json:"qIndex"`
		Page       int  `json:"page"`
		Offset     int  `json:"offset"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return err
	}
	switch {
	case raw.QueryIndex != nil:
		c.QueryIndex = *raw.QueryIndex
	case raw.QIndex != nil:
		c.QueryIndex = *raw.QIndex
	}
	c.Page = raw.Page
	c.Offset = raw.Offset
	return nil
}

// SkillsMP sweeps the SkillsMP search API with a fixed query plan.
type SkillsMP struct {
	cfg    config.SkillsMPConfig
	deps   Deps
	policy retry.Config
}

// NewSkillsMP creates the search API crawler.
func NewSkillsMP(cfg config.SkillsMPConfig, deps Deps, opts ...Option) *SkillsMP {
	return &SkillsMP{
		cfg:    cfg,
		deps:   deps.withDefaults(),
		policy: buildOptions(fetcher.LinearPolicy(githubFetchTries, githubFetchBackoff), opts),
	}
}

// Kind implements Crawler.
func (c *SkillsMP) Kind() string { return domain.KindSkillsMP }

func (c *SkillsMP) queries() []string {
	if len(c.cfg.Queries) > 0 {
		return c.cfg.Queries
	}
	return config.DefaultQueries()
}

// Run implements Crawler. Each query is paged until an empty page or the
// per-query page cap. max_items bounds the merges of one run; hitting it
// saves the next page of the current query.
func (c *SkillsMP) Run(ctx context.Context, budget Budget) (*Result, error) {
	log := c.deps.Log.With(logger.String("crawler", c.Kind()))
	res := &Result{Kind: c.Kind()}

	if c.cfg.APIKey == "" {
		return res, fmt.Errorf("skillsmp: %w: SKILLSMP_API_KEY is not set", ErrMissingCredential)
	}

	cp, err := c.deps.Checkpoints.Load(ctx, c.Kind(), skillsMPSourceName)
	if err != nil {
		return res, err
	}
	if cp != nil && cp.Done {
		log.Info("SkillsMP sweep already done")
		res.Done = true
		return res, nil
	}

	state, ok := loadCursor[searchCursor](log, cp)
	if !ok {
		state = searchCursor{QueryIndex: 0, Page: 1}
	}
	total := 0
	if cp != nil {
		total = cp.UpsertedTotal
	}

	queries := c.queries()
	pageLimit := budget.limit(0)
	log.Info("Starting SkillsMP sweep",
		logger.Int("query_index", state.QueryIndex),
		logger.Int("page", state.Page),
		logger.Int("offset", state.Offset),
		logger.Int("queries", len(queries)),
	)

	for qi := max(state.QueryIndex, 0); qi < len(queries); qi++ {
		startPage := 1
		if qi == state.QueryIndex {
			startPage = max(state.Page, 1)
		}

		for page := startPage; page <= c.cfg.MaxPagesPerQuery; page++ {
			if reason := guard(budget, pageLimit, res.Units, c.deps.Now()); reason != "" {
				log.Info("Stopping SkillsMP run", logger.String("reason", string(reason)))
				res.Stopped = reason
				return res, nil
			}

			items, searchErr := c.search(ctx, queries[qi], page, log)
			if searchErr != nil {
				return res, fmt.Errorf("skillsmp q=%q page %d: %w", queries[qi], page, searchErr)
			}
			res.Units++
			log.Info("SkillsMP page fetched",
				logger.String("query", queries[qi]),
				logger.Int("page", page),
				logger.Int("items", len(items)),
			)
			if len(items) == 0 {
				break
			}

			offset := 0
			if qi == state.QueryIndex && page == startPage {
				offset = min(max(state.Offset, 0), len(items))
			}
			for i := offset; i < len(items); i++ {
				candidate, ok := normalize.SearchItem(items[i])
				if !ok {
					res.Skipped++
					continue
				}
				if _, mergeErr := c.deps.Merger.UpsertSkill(ctx, candidate, skillsMPSource); mergeErr != nil {
					return res, fmt.Errorf("merge %q: %w", candidate.Name, mergeErr)
				}
				total++
				res.Upserted++

				if c.cfg.MaxItems > 0 && res.Upserted >= c.cfg.MaxItems {
					log.Info("Reached max items for this run", logger.Int("max_items", c.cfg.MaxItems))
					res.Stopped = StopMaxItems
					next := searchCursor{QueryIndex: qi, Page: page + 1}
					if i+1 < len(items) {
						next = searchCursor{QueryIndex: qi, Page: page, Offset: i + 1}
					}
					return res, c.save(ctx, next, total, false)
				}
			}

			if saveErr := c.save(ctx, searchCursor{QueryIndex: qi, Page: page + 1}, total, false); saveErr != nil {
				return res, saveErr
			}
		}

		if saveErr := c.save(ctx, searchCursor{QueryIndex: qi + 1, Page: 1}, total, false); saveErr != nil {
			return res, saveErr
		}
	}

	if saveErr := c.save(ctx, searchCursor{QueryIndex: len(queries), Page: 1}, total, true); saveErr != nil {
		return res, saveErr
	}
	log.Info("SkillsMP sweep done", logger.Int("upserted_total", total))
	res.Done = true
	return res, nil
}

func (c *SkillsMP) search(ctx context.Context, q string, page int, log logger.Logger) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(c.cfg.Limit))
	if c.cfg.SortBy != "" {
		params.Set("sortBy", c.cfg.SortBy)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/v1/skills/search?" + params.Encode()

	policy := c.policy
	policy.OnRetry = func(attempt int, err error) {
		log.Warn("SkillsMP search failed, retrying", logger.Int("attempt", attempt), logger.Error(err))
	}

	var body []byte
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var fetchErr error
		body, fetchErr = c.deps.Fetcher.FetchBytes(ctx, endpoint,
			fetcher.WithHeader("Accept", "application/json"),
			fetcher.WithBearer(c.cfg.APIKey),
		)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return extractSearchHits(body), nil
}

// extractSearchHits finds the hit list in a search response. Entries that
// are not JSON objects are dropped.
func extractSearchHits(body []byte) []map[string]any {
	if !gjson.ValidBytes(body) {
		return nil
	}
	doc := gjson.ParseBytes(body)

	for _, path := range skillsMPListPaths {
		list := doc.Get(path)
		if !list.IsArray() {
			continue
		}
		var hits []map[string]any
		list.ForEach(func(_, item gjson.Result) bool {
			if m, ok := item.Value().(map[string]any); ok {
				hits = append(hits, m)
			}
			return true
		})
		return hits
	}
	return nil
}

func (c *SkillsMP) save(ctx context.Context, cur searchCursor, total int, done bool) error {
	cursor, err := checkpoint.EncodeCursor(cur)
	if err != nil {
		return err
	}
	return c.deps.Checkpoints.Save(ctx, c.Kind(), skillsMPSourceName, checkpoint.Patch{
		Cursor:        cursor,
		PageNo:        checkpoint.Int(cur.Page),
		UpsertedTotal: checkpoint.Int(total),
		Done:          checkpoint.Bool(done),
	})
}
