// Package domain provides the catalog models shared by the ingest pipeline.
package domain

import "time"

// Source kinds. A kind selects the crawler that owns a Source.
const (
	KindClawHub    = "clawhub"
	KindGitHubTree = "github_tree"
	KindGitHubList = "github_list"
	KindSkillsMP   = "skillsmp"
	KindImport     = "import"
)

// Skill is one deduplicated catalog entry.
type Skill struct {
	ID          string `db:"id"          json:"id"`
	Name        string `db:"name"        json:"name"`
	Slug        string `db:"slug"        json:"slug"`
	Description string `db:"description" json:"description"`
	// HomepageURL, RepoURL and SourceURL are nil when unknown.
	HomepageURL *string `db:"homepage_url" json:"homepage_url,omitempty"`
	RepoURL     *string `db:"repo_url"     json:"repo_url,omitempty"`
	// SourceURL points at the directory or page where the skill was found.
	SourceURL      *string    `db:"source_url"      json:"source_url,omitempty"`
	Stars          int        `db:"stars"           json:"stars"`
	ReadmeMarkdown *string    `db:"readme_markdown" json:"readme_markdown,omitempty"`
	FirstSeenAt    time.Time  `db:"first_seen_at"   json:"first_seen_at"`
	LastSeenAt     time.Time  `db:"last_seen_at"    json:"last_seen_at"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
	Highlighted    bool       `db:"highlighted"     json:"highlighted"`
	HighlightedAt  *time.Time `db:"highlighted_at"  json:"highlighted_at,omitempty"`
}

// Source is a named origin of discovery. URL is unique.
type Source struct {
	ID        string    `db:"id"         json:"id"`
	Kind      string    `db:"kind"       json:"kind"`
	Name      string    `db:"name"       json:"name"`
	URL       string    `db:"url"        json:"url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SourceRef identifies the Source a candidate was discovered through.
type SourceRef struct {
	Kind string
	Name string
	URL  string
}

// IngestSkill is a normalized candidate produced by a crawler. Empty strings
// and a nil Stars mean "not reported by this source".
type IngestSkill struct {
	Name           string
	Description    string
	HomepageURL    string
	RepoURL        string
	SourceURL      string
	Stars          *int
	ReadmeMarkdown string
	// EntryScoped marks a candidate that lives below its repository root,
	// such as one directory of a multi-skill repo. Repo identity then also
	// requires the same SourceURL.
	EntryScoped bool
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
