package catalog

const skillColumns = `id, name, slug, description, homepage_url, repo_url, source_url, stars,
	readme_markdown, first_seen_at, last_seen_at, created_at, updated_at, highlighted, highlighted_at`

const sourceColumns = `id, kind, name, url, created_at, updated_at`

const insertSourceQuery = `
	INSERT INTO skills_sources (kind, name, url)
	VALUES ($1, $2, $3)
	ON CONFLICT (url) DO NOTHING
	RETURNING ` + sourceColumns

const touchSourceQuery = `
	UPDATE skills_sources SET updated_at = NOW()
	WHERE url = $1
	RETURNING ` + sourceColumns

// updateByRepoQuery matches a repository-level skill. Rows describing an
// entry below the repo root belong to entry-scoped candidates and are skipped.
//
// $1 repo, $2 name, $3 description, $4 homepage, $5 entry, $6 stars, $7 readme
const updateByRepoQuery = `
	UPDATE skills_skills SET
		name = COALESCE(NULLIF($2::text, ''), name),
		description = COALESCE($3::text, description),
		homepage_url = COALESCE(homepage_url, $4::text),
		source_url = COALESCE(source_url, $5::text),
		stars = COALESCE($6::integer, stars),
		readme_markdown = COALESCE(readme_markdown, $7::text),
		last_seen_at = NOW(),
		updated_at = NOW()
	WHERE id = (
		SELECT id FROM skills_skills
		WHERE repo_url = $1
			AND (source_url IS NULL OR NOT starts_with(source_url, repo_url || '/'))
		ORDER BY created_at
		LIMIT 1
	)
	RETURNING ` + skillColumns

// updateByRepoEntryQuery matches one entry of a multi-skill repository.
//
// $1 repo, $2 entry, $3 name, $4 description, $5 homepage, $6 stars, $7 readme
const updateByRepoEntryQuery = `
	UPDATE skills_skills SET
		name = COALESCE(NULLIF($3::text, ''), name),
		description = COALESCE($4::text, description),
		homepage_url = COALESCE(homepage_url, $5::text),
		stars = COALESCE($6::integer, stars),
		readme_markdown = COALESCE(readme_markdown, $7::text),
		last_seen_at = NOW(),
		updated_at = NOW()
	WHERE id = (
		SELECT id FROM skills_skills
		WHERE repo_url = $1 AND source_url = $2
		ORDER BY created_at
		LIMIT 1
	)
	RETURNING ` + skillColumns

// updateByNameQuery is the weak fallback: the candidate name is used as an
// ILIKE pattern, so the match is case-insensitive and wildcards in the name
// widen it. The name itself is never rewritten on this path.
//
// $1 name, $2 description, $3 homepage, $4 repo, $5 entry, $6 stars, $7 readme
const updateByNameQuery = `
	UPDATE skills_skills SET
		description = COALESCE($2::text, description),
		homepage_url = COALESCE(homepage_url, $3::text),
		repo_url = COALESCE(repo_url, $4::text),
		source_url = COALESCE(source_url, $5::text),
		stars = COALESCE($6::integer, stars),
		readme_markdown = COALESCE(readme_markdown, $7::text),
		last_seen_at = NOW(),
		updated_at = NOW()
	WHERE id = (
		SELECT id FROM skills_skills
		WHERE name ILIKE $1
		ORDER BY created_at
		LIMIT 1
	)
	RETURNING ` + skillColumns

// insertSkillQuery inserts under slug $2. On a slug conflict the existing
// row is refreshed only when it has the same identity; otherwise no row is
// returned and the caller tries the next slug.
//
// $1 name, $2 slug, $3 description, $4 homepage, $5 repo, $6 entry,
// $7 stars, $8 readme, $9 entry scoped
const insertSkillQuery = `
	INSERT INTO skills_skills (
		name, slug, description, homepage_url, repo_url, source_url, stars, readme_markdown,
		first_seen_at, last_seen_at, created_at, updated_at
	) VALUES (
		$1, $2, COALESCE($3::text, ''), $4::text, $5::text, $6::text, COALESCE($7::integer, 0), $8::text,
		NOW(), NOW(), NOW(), NOW()
	)
	ON CONFLICT (slug) DO UPDATE SET
		description = COALESCE($3::text, skills_skills.description),
		homepage_url = COALESCE(skills_skills.homepage_url, $4::text),
		source_url = COALESCE(skills_skills.source_url, $6::text),
		stars = COALESCE($7::integer, skills_skills.stars),
		readme_markdown = COALESCE(skills_skills.readme_markdown, $8::text),
		last_seen_at = NOW(),
		updated_at = NOW()
	WHERE skills_skills.repo_url IS NOT DISTINCT FROM $5::text
		AND lower(skills_skills.name) = lower($1)
		AND (NOT $9::boolean OR skills_skills.source_url IS NOT DISTINCT FROM $6::text)
	RETURNING ` + skillColumns

const linkSourceQuery = `
	INSERT INTO skills_skill_sources (skill_id, source_id)
	VALUES ($1, $2)
	ON CONFLICT DO NOTHING`
