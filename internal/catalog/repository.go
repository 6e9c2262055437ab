package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/javainthinking/skillspick/internal/domain"
)

// Sort orders for Search.
const (
	SortRecent = "recent"
	SortStars  = "stars"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

// ErrSkillNotFound is returned when no skill matches a lookup.
var ErrSkillNotFound = errors.New("skill not found")

// SearchParams filters and pages a catalog search.
type SearchParams struct {
	// Query is matched as a substring of name, slug, description and the
	// repo, homepage and entry URLs.
	Query           string
	Sort            string
	HighlightedOnly bool
	Limit           int
	Offset          int
}

// SearchResult is one page of skills plus the total match count.
type SearchResult struct {
	Skills []*domain.Skill `json:"skills"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// Repository serves catalog reads and admin curation.
type Repository struct {
	db DBProvider
}

// NewRepository creates a catalog repository.
func NewRepository(db DBProvider) *Repository {
	return &Repository{db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func buildSearchWhere(p SearchParams) (string, []any) {
	var conds []string
	var args []any

	if q := strings.TrimSpace(p.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		conds = append(conds, `(name ILIKE $1 OR slug ILIKE $1 OR description ILIKE $1
			OR repo_url ILIKE $1 OR homepage_url ILIKE $1 OR source_url ILIKE $1)`)
	}
	if p.HighlightedOnly {
		conds = append(conds, "highlighted")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func searchOrder(sort string) string {
	if sort == SortStars {
		return " ORDER BY stars DESC, last_seen_at DESC"
	}
	return " ORDER BY last_seen_at DESC"
}

// Search returns one page of matching skills.
func (r *Repository) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("search skills: %w", err)
	}

	if p.Limit <= 0 {
		p.Limit = defaultSearchLimit
	}
	if p.Limit > maxSearchLimit {
		p.Limit = maxSearchLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	where, args := buildSearchWhere(p)

	var total int
	if countErr := db.GetContext(ctx, &total, `SELECT COUNT(*) FROM skills_skills`+where, args...); countErr != nil {
		return nil, fmt.Errorf("count skills: %w", countErr)
	}

	n := len(args)
	query := `SELECT ` + skillColumns + ` FROM skills_skills` + where + searchOrder(p.Sort) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, p.Limit, p.Offset)

	var skills []*domain.Skill
	if selectErr := db.SelectContext(ctx, &skills, query, args...); selectErr != nil {
		return nil, fmt.Errorf("search skills: %w", selectErr)
	}
	if skills == nil {
		skills = []*domain.Skill{}
	}

	return &SearchResult{Skills: skills, Total: total, Limit: p.Limit, Offset: p.Offset}, nil
}

// GetBySlug returns the skill with the given slug.
func (r *Repository) GetBySlug(ctx context.Context, slugValue string) (*domain.Skill, error) {
	return r.getOne(ctx, `SELECT `+skillColumns+` FROM skills_skills WHERE slug = $1`, slugValue)
}

// FindBySourceURL returns the oldest skill recorded with the given entry URL.
func (r *Repository) FindBySourceURL(ctx context.Context, sourceURL string) (*domain.Skill, error) {
	return r.getOne(ctx,
		`SELECT `+skillColumns+` FROM skills_skills WHERE source_url = $1 ORDER BY created_at LIMIT 1`,
		sourceURL)
}

// Sources lists the sources a skill has been seen through.
func (r *Repository) Sources(ctx context.Context, skillID string) ([]*domain.Source, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("list skill sources: %w", err)
	}

	query := `
		SELECT src.id, src.kind, src.name, src.url, src.created_at, src.updated_at
		FROM skills_sources src
		JOIN skills_skill_sources ss ON ss.source_id = src.id
		WHERE ss.skill_id = $1
		ORDER BY src.created_at`

	var sources []*domain.Source
	if selectErr := db.SelectContext(ctx, &sources, query, skillID); selectErr != nil {
		return nil, fmt.Errorf("list skill sources: %w", selectErr)
	}
	if sources == nil {
		sources = []*domain.Source{}
	}
	return sources, nil
}

// SetHighlighted toggles the curated flag. highlighted_at is set to now when
// turned on and cleared when turned off.
func (r *Repository) SetHighlighted(ctx context.Context, id string, highlighted bool) (*domain.Skill, error) {
	query := `
		UPDATE skills_skills
		SET highlighted = $2,
			highlighted_at = CASE WHEN $2 THEN NOW() ELSE NULL END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + skillColumns

	return r.getOne(ctx, query, id, highlighted)
}

// Each streams every skill ordered by slug to fn, stopping at the first error.
func (r *Repository) Each(ctx context.Context, fn func(*domain.Skill) error) error {
	db, err := r.db.DB(ctx)
	if err != nil {
		return fmt.Errorf("iterate skills: %w", err)
	}

	rows, err := db.QueryxContext(ctx, `SELECT `+skillColumns+` FROM skills_skills ORDER BY slug`)
	if err != nil {
		return fmt.Errorf("iterate skills: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var skill domain.Skill
		if scanErr := rows.StructScan(&skill); scanErr != nil {
			return fmt.Errorf("scan skill: %w", scanErr)
		}
		if fnErr := fn(&skill); fnErr != nil {
			return fnErr
		}
	}
	return rows.Err()
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*domain.Skill, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	var skill domain.Skill
	if getErr := db.GetContext(ctx, &skill, query, args...); getErr != nil {
		if errors.Is(getErr, sql.ErrNoRows) {
			return nil, ErrSkillNotFound
		}
		return nil, fmt.Errorf("get skill: %w", getErr)
	}
	return &skill, nil
}
