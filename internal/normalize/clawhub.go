package normalize

import (
	"net/url"
	"strings"

	"github.com/javainthinking/skillspick/internal/domain"
)

// ClawHubBaseURL hosts the public skill pages.
const ClawHubBaseURL = "https://clawhub.ai"

// componentMarks undoes the escapes url.QueryEscape applies beyond what a
// browser's encodeURIComponent does, so entry URLs match published ones.
var componentMarks = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

var (
	homepageKeys = []string{"homepage", "homepageUrl", "home", "url", "website"}
	repoKeys     = []string{"repo", "repoUrl", "repository", "github", "source"}
)

// ClawHubItem is one entry of a ClawHub listing page.
type ClawHubItem struct {
	OwnerHandle   *string         `json:"ownerHandle"`
	Skill         ClawHubSkill    `json:"skill"`
	LatestVersion *ClawHubVersion `json:"latestVersion"`
}

// ClawHubSkill holds the listing's own fields.
type ClawHubSkill struct {
	ID          string        `json:"_id"`
	Slug        string        `json:"slug"`
	DisplayName string        `json:"displayName"`
	Summary     *string       `json:"summary"`
	Stats       *ClawHubStats `json:"stats"`
}

// ClawHubStats carries popularity counters.
type ClawHubStats struct {
	Stars *float64 `json:"stars"`
}

// ClawHubVersion is the latest published version of a skill.
type ClawHubVersion struct {
	Version string `json:"version"`
	Parsed  *struct {
		Frontmatter map[string]any `json:"frontmatter"`
	} `json:"parsed"`
}

// ClawHub normalizes a listing item. Homepage and repository come from the
// first non-empty frontmatter key of their candidate lists.
func ClawHub(item ClawHubItem) (domain.IngestSkill, bool) {
	name := strings.TrimSpace(item.Skill.DisplayName)
	if name == "" {
		name = strings.TrimSpace(item.Skill.Slug)
	}
	if name == "" {
		return domain.IngestSkill{}, false
	}

	var frontmatter map[string]any
	if item.LatestVersion != nil && item.LatestVersion.Parsed != nil {
		frontmatter = item.LatestVersion.Parsed.Frontmatter
	}

	out := domain.IngestSkill{
		Name:      name,
		SourceURL: clawHubEntryURL(item),
	}

	if item.Skill.Summary != nil {
		out.Description = strings.TrimSpace(*item.Skill.Summary)
	}
	if item.Skill.Stats != nil && item.Skill.Stats.Stars != nil {
		out.Stars = domain.IntPtr(int(*item.Skill.Stats.Stars))
	}
	if homepage, ok := AbsoluteURL(pickString(frontmatter, homepageKeys)); ok {
		out.HomepageURL = homepage
	}
	if repo, ok := NormalizeRepoURL(pickString(frontmatter, repoKeys)); ok {
		out.RepoURL = repo
	}

	return out, true
}

func clawHubEntryURL(item ClawHubItem) string {
	slug := strings.TrimSpace(item.Skill.Slug)
	if item.OwnerHandle != nil && strings.TrimSpace(*item.OwnerHandle) != "" {
		return ClawHubBaseURL + "/" + escapeComponent(*item.OwnerHandle) + "/" + escapeComponent(slug)
	}
	return ClawHubBaseURL + "/skills?focus=search&q=" + escapeComponent(slug)
}

// escapeComponent percent-encodes s like encodeURIComponent: everything but
// letters, digits and -_.!~*'() is escaped, and a space becomes %20.
func escapeComponent(s string) string {
	return componentMarks.Replace(url.QueryEscape(s))
}

func pickString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
