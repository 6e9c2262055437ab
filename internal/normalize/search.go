package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/javainthinking/skillspick/internal/domain"
)

var (
	githubURLPattern = regexp.MustCompile(`https?://github\.com/[^\s)\]}>'"]+`)
	repoAndPath      = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)(/.*)?$`)
)

// searchFields are the loosely typed name and description keys a search
// hit may carry.
type searchFields struct {
	Name        string `mapstructure:"name"`
	Title       string `mapstructure:"title"`
	Slug        string `mapstructure:"slug"`
	ID          string `mapstructure:"id"`
	Description string `mapstructure:"description"`
	Summary     string `mapstructure:"summary"`
	Tagline     string `mapstructure:"tagline"`
}

// GitHubURLs collects every github.com URL found in any string scalar of v,
// at any depth. Query strings and fragments are dropped; order of first
// appearance is kept.
func GitHubURLs(v any) []string {
	var found []string
	seen := make(map[string]struct{})
	var visit func(any)
	visit = func(v any) {
		switch t := v.(type) {
		case string:
			for _, m := range githubURLPattern.FindAllString(t, -1) {
				u, _, _ := strings.Cut(m, "#")
				u, _, _ = strings.Cut(u, "?")
				if !strings.Contains(u, "github.com/") {
					continue
				}
				if _, dup := seen[u]; dup {
					continue
				}
				seen[u] = struct{}{}
				found = append(found, u)
			}
		case []any:
			for _, x := range t {
				visit(x)
			}
		case map[string]any:
			// Map iteration order is random; sort keys for a stable first URL.
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				visit(t[k])
			}
		}
	}
	visit(v)
	return found
}

// SplitRepoAndEntry splits a github.com URL into its repository root and
// the full entry URL.
func SplitRepoAndEntry(raw string) (repoURL, entryURL string, ok bool) {
	m := repoAndPath.FindStringSubmatch(raw)
	if m == nil {
		return "", "", false
	}
	owner := m[1]
	repo := trimGitSuffix(m[2])
	if !validRepo(owner, repo) {
		return "", "", false
	}
	return RepoURL(owner, repo), raw, true
}

// SearchItem normalizes one search API hit. Hits without any github.com
// URL have no stable identity and are skipped.
func SearchItem(item map[string]any) (domain.IngestSkill, bool) {
	urls := GitHubURLs(item)
	if len(urls) == 0 {
		return domain.IngestSkill{}, false
	}
	repo, entry, ok := SplitRepoAndEntry(urls[0])
	if !ok {
		return domain.IngestSkill{}, false
	}

	fields := decodeSearchFields(item)
	name := firstNonEmpty(fields.Name, fields.Title, fields.Slug, fields.ID, lastSegment(urls[0]), "unknown")

	return domain.IngestSkill{
		Name:        name,
		Description: firstNonEmpty(fields.Description, fields.Summary, fields.Tagline),
		RepoURL:     repo,
		SourceURL:   entry,
		EntryScoped: strings.TrimRight(entry, "/") != repo,
	}, true
}

// decodeSearchFields copies the scalar values of the known keys and decodes
// them weakly, so numeric ids and booleans become strings.
func decodeSearchFields(item map[string]any) searchFields {
	scalars := make(map[string]any)
	for _, k := range []string{"name", "title", "slug", "id", "description", "summary", "tagline"} {
		switch v := item[k].(type) {
		case string, bool, float64, int, int64:
			scalars[k] = v
		case fmt.Stringer:
			scalars[k] = v.String()
		}
	}

	var out searchFields
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out
	}
	if err := dec.Decode(scalars); err != nil {
		return searchFields{}
	}
	return out
}

func lastSegment(u string) string {
	parts := splitPath(u)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
