package normalize

import (
	"strings"

	"github.com/javainthinking/skillspick/internal/domain"
)

// TreeEntry is one element of a GitHub contents API directory listing.
type TreeEntry struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	HTMLURL string `json:"html_url"`
}

// TreeDirs keeps the directory entries that carry an html_url, in listing
// order.
func TreeDirs(entries []TreeEntry) []TreeEntry {
	dirs := make([]TreeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Type == "dir" && strings.TrimSpace(e.HTMLURL) != "" && strings.TrimSpace(e.Name) != "" {
			dirs = append(dirs, e)
		}
	}
	return dirs
}

// TreeEntrySkill normalizes one directory of a multi-skill repository.
func TreeEntrySkill(entry TreeEntry, owner, repo string) (domain.IngestSkill, bool) {
	if entry.Type != "dir" {
		return domain.IngestSkill{}, false
	}
	name := strings.TrimSpace(entry.Name)
	source, ok := AbsoluteURL(entry.HTMLURL)
	if name == "" || !ok {
		return domain.IngestSkill{}, false
	}
	return domain.IngestSkill{
		Name:        name,
		RepoURL:     RepoURL(owner, repo),
		SourceURL:   source,
		EntryScoped: true,
	}, true
}

// WithSkillDoc overlays a parsed SKILL.md on a candidate. The document's
// name only replaces a bare directory name when the front matter sets one.
func WithSkillDoc(s domain.IngestSkill, doc SkillDoc) domain.IngestSkill {
	if doc.FrontmatterName != "" {
		s.Name = doc.FrontmatterName
	}
	if doc.Description != "" {
		s.Description = doc.Description
	}
	if doc.Body != "" {
		s.ReadmeMarkdown = doc.Body
	}
	return s
}
