// Package importer adds a single skill to the catalog from a GitHub
// repository, tree or blob URL pointing at a folder with a SKILL.md.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/javainthinking/skillspick/internal/catalog"
	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/fetcher"
	"github.com/javainthinking/skillspick/internal/logger"
	"github.com/javainthinking/skillspick/internal/normalize"
)

const (
	fallbackBranch = "main"
	skillDocFile   = "SKILL.md"
)

var (
	// ErrUnsupportedURL is returned for anything but a github.com repo,
	// tree or blob URL.
	ErrUnsupportedURL = errors.New("unsupported URL: use a GitHub repo, tree or blob URL")
	// ErrSkillDocNotFound is returned when the folder has no readable SKILL.md.
	ErrSkillDocNotFound = errors.New("SKILL.md not found at that URL (or the repository is private)")
	// ErrSkillDocEmpty is returned when SKILL.md has no content.
	ErrSkillDocEmpty = errors.New("SKILL.md is empty")
)

// Source is the provenance recorded for imported skills.
var Source = domain.SourceRef{
	Kind: domain.KindImport,
	Name: "GitHub import",
	URL:  normalize.GitHubHost,
}

var fileLike = regexp.MustCompile(`\.[A-Za-z0-9]+$`)

// Fetcher performs upstream HTTP requests.
type Fetcher interface {
	FetchJSON(ctx context.Context, rawURL string, out any, opts ...fetcher.RequestOption) error
	FetchBytes(ctx context.Context, rawURL string, opts ...fetcher.RequestOption) ([]byte, error)
}

// Finder looks up skills by entry URL.
type Finder interface {
	FindBySourceURL(ctx context.Context, sourceURL string) (*domain.Skill, error)
}

// Merger reconciles a candidate with the catalog.
type Merger interface {
	UpsertSkill(ctx context.Context, candidate domain.IngestSkill, src domain.SourceRef) (*domain.Skill, error)
}

// Result is the outcome of one import.
type Result struct {
	Skill *domain.Skill `json:"skill"`
	// Existing is true when the folder had been imported before and the
	// stored skill was returned untouched.
	Existing bool `json:"existing"`
}

// Importer resolves and imports GitHub skill folders.
type Importer struct {
	cfg     config.GitHubConfig
	fetcher Fetcher
	finder  Finder
	merger  Merger
	log     logger.Logger
}

// New creates an Importer.
func New(cfg config.GitHubConfig, f Fetcher, finder Finder, merger Merger, log logger.Logger) *Importer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Importer{cfg: cfg, fetcher: f, finder: finder, merger: merger, log: log}
}

// Target is a resolved skill folder.
type Target struct {
	Owner     string
	Repo      string
	Ref       string
	Dir       string
	RepoURL   string
	SourceURL string
}

// Resolve parses rawURL and pins the folder and ref it designates. Without
// a ref in the URL the repository's default branch is looked up, falling
// back to main.
func (i *Importer) Resolve(ctx context.Context, rawURL string) (*Target, error) {
	parsed, ok := normalize.ParseGitHubURL(rawURL)
	if !ok {
		return nil, ErrUnsupportedURL
	}

	ref := parsed.Ref
	if ref == "" {
		ref = i.defaultBranch(ctx, parsed.Owner, parsed.Repo)
	}

	dir := strings.Trim(parsed.Path, "/")
	if parsed.Kind == "blob" && fileLike.MatchString(dir) {
		dir = path.Dir(dir)
		if dir == "." {
			dir = ""
		}
	}

	return &Target{
		Owner:     parsed.Owner,
		Repo:      parsed.Repo,
		Ref:       ref,
		Dir:       dir,
		RepoURL:   parsed.RepoURL(),
		SourceURL: normalize.TreeURL(parsed.Owner, parsed.Repo, ref, dir),
	}, nil
}

// Import adds the skill folder behind rawURL. A folder imported before is
// returned as stored.
func (i *Importer) Import(ctx context.Context, rawURL string) (*Result, error) {
	target, err := i.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	log := i.log.With(logger.String("source_url", target.SourceURL))

	existing, err := i.finder.FindBySourceURL(ctx, target.SourceURL)
	switch {
	case err == nil:
		log.Info("Skill folder already imported", logger.String("slug", existing.Slug))
		return &Result{Skill: existing, Existing: true}, nil
	case !errors.Is(err, catalog.ErrSkillNotFound):
		return nil, fmt.Errorf("look up %s: %w", target.SourceURL, err)
	}

	docPath := skillDocFile
	if target.Dir != "" {
		docPath = target.Dir + "/" + skillDocFile
	}
	body, err := i.fetcher.FetchBytes(ctx, normalize.RawURL(i.cfg.RawBaseURL, target.Owner, target.Repo, target.Ref, docPath))
	if err != nil {
		if fetcher.IsNotFound(err) {
			return nil, ErrSkillDocNotFound
		}
		return nil, fmt.Errorf("fetch %s: %w", skillDocFile, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrSkillDocEmpty
	}

	doc := normalize.ParseSkillMD(body, target.Owner+"/"+target.Repo)
	candidate := domain.IngestSkill{
		Name:           doc.Name,
		Description:    doc.Description,
		RepoURL:        target.RepoURL,
		SourceURL:      target.SourceURL,
		ReadmeMarkdown: doc.Body,
		EntryScoped:    target.Dir != "",
	}

	skill, err := i.merger.UpsertSkill(ctx, candidate, Source)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", target.SourceURL, err)
	}
	log.Info("Skill imported", logger.String("slug", skill.Slug))
	return &Result{Skill: skill}, nil
}

func (i *Importer) defaultBranch(ctx context.Context, owner, repo string) string {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", strings.TrimRight(i.cfg.APIBaseURL, "/"), owner, repo)
	opts := []fetcher.RequestOption{fetcher.WithHeader("Accept", "application/vnd.github+json")}
	if i.cfg.Token != "" {
		opts = append(opts, fetcher.WithBearer(i.cfg.Token))
	}

	var meta struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := i.fetcher.FetchJSON(ctx, endpoint, &meta, opts...); err != nil {
		i.log.Debug("Default branch lookup failed", logger.String("repo", owner+"/"+repo), logger.Error(err))
		return fallbackBranch
	}
	if meta.DefaultBranch == "" {
		return fallbackBranch
	}
	return meta.DefaultBranch
}
