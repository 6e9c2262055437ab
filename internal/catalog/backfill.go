package catalog

import (
	"context"
	"fmt"
)

// OpenClawSkillsRepo is the monorepo that mirrors ClawHub listings.
const OpenClawSkillsRepo = "https://github.com/openclaw/skills"

// backfillClawHubQuery rewrites ClawHub-discovered skills whose entry URL is
// clawhub.ai/{owner}/{slug} to point at their directory in the mirror repo.
// The ClawHub page is kept as homepage when none is set.
const backfillClawHubQuery = `
	WITH clawhub_skills AS (
		SELECT DISTINCT s.id, s.source_url
		FROM skills_skills s
		JOIN skills_skill_sources ss ON ss.skill_id = s.id
		JOIN skills_sources src ON src.id = ss.source_id
		WHERE src.kind = 'clawhub'
			AND s.source_url IS NOT NULL
			AND s.source_url ~ '^https?://clawhub\.ai/[^/]+/[^/?#]+'
	),
	parsed AS (
		SELECT
			id,
			source_url AS clawhub_url,
			(regexp_match(source_url, '^https?://clawhub\.ai/([^/]+)/([^/?#]+)'))[1] AS owner,
			(regexp_match(source_url, '^https?://clawhub\.ai/([^/]+)/([^/?#]+)'))[2] AS slug
		FROM clawhub_skills
	)
	UPDATE skills_skills s
	SET homepage_url = COALESCE(s.homepage_url, p.clawhub_url),
		repo_url = COALESCE(s.repo_url, $1::text),
		source_url = $1::text || '/tree/main/skills/' || p.owner || '/' || p.slug,
		updated_at = NOW()
	FROM parsed p
	WHERE s.id = p.id
		AND p.owner IS NOT NULL
		AND p.slug IS NOT NULL`

// BackfillClawHub points ClawHub skills at the openclaw/skills mirror and
// returns how many rows changed.
func (r *Repository) BackfillClawHub(ctx context.Context) (int64, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return 0, fmt.Errorf("backfill clawhub: %w", err)
	}

	result, err := db.ExecContext(ctx, backfillClawHubQuery, OpenClawSkillsRepo)
	if err != nil {
		return 0, fmt.Errorf("backfill clawhub: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("backfill clawhub: %w", err)
	}
	return rows, nil
}
