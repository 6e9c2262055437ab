// Package normalize turns each upstream's native item shape into a
// domain.IngestSkill. Functions return false when an item has nothing to
// ingest; malformed input is skipped, never an error.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

// GitHubHost is the canonical host for repository URLs.
const GitHubHost = "https://github.com"

// reservedOwners are github.com path roots that are not user or org names.
var reservedOwners = map[string]struct{}{
	"about": {}, "apps": {}, "collections": {}, "enterprise": {}, "features": {},
	"login": {}, "marketplace": {}, "orgs": {}, "pricing": {}, "settings": {},
	"site": {}, "sponsors": {}, "topics": {}, "users": {},
}

var githubSegment = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// GitHubURL is a parsed github.com repository, tree or blob URL.
type GitHubURL struct {
	Owner string
	Repo  string
	// Kind is "root", "tree" or "blob".
	Kind string
	Ref  string
	Path string
}

// RepoURL returns https://github.com/{owner}/{repo}.
func (g GitHubURL) RepoURL() string {
	return RepoURL(g.Owner, g.Repo)
}

// RepoURL builds the canonical repository URL.
func RepoURL(owner, repo string) string {
	return GitHubHost + "/" + owner + "/" + repo
}

// TreeURL builds the canonical directory view URL; an empty dir is the
// repository root at ref.
func TreeURL(owner, repo, ref, dir string) string {
	base := RepoURL(owner, repo) + "/tree/" + ref
	if dir == "" {
		return base
	}
	return base + "/" + dir
}

// RawURL builds a raw file URL under rawBase.
func RawURL(rawBase, owner, repo, ref, path string) string {
	return strings.TrimRight(rawBase, "/") + "/" + owner + "/" + repo + "/" + ref + "/" + strings.TrimLeft(path, "/")
}

// ParseGitHubURL accepts repository root, tree and blob URLs on github.com.
// Query strings and fragments are ignored.
func ParseGitHubURL(raw string) (GitHubURL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return GitHubURL{}, false
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return GitHubURL{}, false
	}

	parts := splitPath(u.Path)
	if len(parts) < 2 {
		return GitHubURL{}, false
	}

	owner := parts[0]
	repo := trimGitSuffix(parts[1])
	if !validRepo(owner, repo) {
		return GitHubURL{}, false
	}

	if len(parts) == 2 {
		return GitHubURL{Owner: owner, Repo: repo, Kind: "root"}, true
	}

	if len(parts) >= 4 && (parts[2] == "tree" || parts[2] == "blob") {
		return GitHubURL{
			Owner: owner,
			Repo:  repo,
			Kind:  parts[2],
			Ref:   parts[3],
			Path:  strings.Join(parts[4:], "/"),
		}, true
	}

	return GitHubURL{}, false
}

// RepoRoot reduces any github.com URL to https://github.com/{owner}/{repo},
// dropping extra path segments, query, fragment and a trailing .git.
func RepoRoot(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", false
	}

	parts := splitPath(u.Path)
	if len(parts) < 2 {
		return "", false
	}

	owner, repo := parts[0], trimGitSuffix(parts[1])
	if !validRepo(owner, repo) {
		return "", false
	}
	return RepoURL(owner, repo), true
}

// NormalizeRepoURL cleans a free-form repository reference: owner/repo
// shorthand becomes a github.com URL and a trailing .git is dropped.
// Anything that does not end up as an absolute http(s) URL is rejected.
func NormalizeRepoURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if !strings.Contains(s, "://") && strings.Contains(s, "/") && !strings.HasPrefix(s, "@") {
		s = GitHubHost + "/" + strings.TrimPrefix(s, "github.com/")
	}
	s = trimGitSuffix(s)

	if root, ok := RepoRoot(s); ok {
		if u, err := url.Parse(s); err == nil && len(splitPath(u.Path)) == 2 {
			return root, true
		}
	}
	return AbsoluteURL(s)
}

// AbsoluteURL returns s when it is a well-formed absolute http(s) URL.
func AbsoluteURL(s string) (string, bool) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return s, true
}

func splitPath(p string) []string {
	var parts []string
	for seg := range strings.SplitSeq(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

func trimGitSuffix(s string) string {
	if len(s) >= 4 && strings.EqualFold(s[len(s)-4:], ".git") {
		return s[:len(s)-4]
	}
	return s
}

func validRepo(owner, repo string) bool {
	if _, reserved := reservedOwners[strings.ToLower(owner)]; reserved {
		return false
	}
	return githubSegment.MatchString(owner) && githubSegment.MatchString(repo)
}
