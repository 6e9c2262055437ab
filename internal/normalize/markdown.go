package normalize

import (
	"regexp"
	"strings"

	"github.com/javainthinking/skillspick/internal/domain"
)

var (
	markdownLink    = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	repoLink        = regexp.MustCompile(`github\.com/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+`)
	trailingDescSep = regexp.MustCompile(`\)\s*[-–—:]\s*(.+)$`)
)

// MarkdownLink is one [text](url) occurrence with the line it sits on.
type MarkdownLink struct {
	Text string
	URL  string
	Line string
}

// ExtractLinks scans md line by line for inline markdown links.
func ExtractLinks(md string) []MarkdownLink {
	var out []MarkdownLink
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimRight(line, "\r")
		for _, m := range markdownLink.FindAllStringSubmatch(line, -1) {
			out = append(out, MarkdownLink{Text: m[1], URL: m[2], Line: line})
		}
	}
	return out
}

// AwesomeLink normalizes one link of an awesome list. Only repository links
// are kept; listURL is recorded as the place the skill was found.
func AwesomeLink(link MarkdownLink, listURL string) (domain.IngestSkill, bool) {
	if !repoLink.MatchString(link.URL) {
		return domain.IngestSkill{}, false
	}
	repo, ok := RepoRoot(link.URL)
	if !ok {
		return domain.IngestSkill{}, false
	}

	name := strings.TrimSpace(link.Text)
	if name == "" {
		return domain.IngestSkill{}, false
	}

	out := domain.IngestSkill{
		Name:    name,
		RepoURL: repo,
	}
	if m := trailingDescSep.FindStringSubmatch(link.Line); m != nil {
		out.Description = strings.TrimSpace(m[1])
	}
	if entry, ok := AbsoluteURL(listURL); ok {
		out.SourceURL = entry
	}
	return out, true
}

// AwesomeLinks extracts up to limit repository candidates from an awesome
// list document. limit <= 0 means no cap.
func AwesomeLinks(md, listURL string, limit int) []domain.IngestSkill {
	var out []domain.IngestSkill
	for _, link := range ExtractLinks(md) {
		if limit > 0 && len(out) >= limit {
			break
		}
		if skill, ok := AwesomeLink(link, listURL); ok {
			out = append(out, skill)
		}
	}
	return out
}
