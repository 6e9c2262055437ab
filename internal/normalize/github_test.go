package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javainthinking/skillspick/internal/normalize"
)

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want normalize.GitHubURL
		ok   bool
	}{
		{"root", "https://github.com/acme/tools", normalize.GitHubURL{Owner: "acme", Repo: "tools", Kind: "root"}, true},
		{"root with git suffix", "https://github.com/acme/tools.git", normalize.GitHubURL{Owner: "acme", Repo: "tools", Kind: "root"}, true},
		{"tree", "https://github.com/acme/tools/tree/dev/skills/pdf", normalize.GitHubURL{Owner: "acme", Repo: "tools", Kind: "tree", Ref: "dev", Path: "skills/pdf"}, true},
		{"blob", "https://github.com/acme/tools/blob/main/skills/pdf/SKILL.md?plain=1", normalize.GitHubURL{Owner: "acme", Repo: "tools", Kind: "blob", Ref: "main", Path: "skills/pdf/SKILL.md"}, true},
		{"tree without dir", "https://github.com/acme/tools/tree/main", normalize.GitHubURL{Owner: "acme", Repo: "tools", Kind: "tree", Ref: "main"}, true},
		{"issues page", "https://github.com/acme/tools/issues/3", normalize.GitHubURL{}, false},
		{"other host", "https://gitlab.com/acme/tools", normalize.GitHubURL{}, false},
		{"owner only", "https://github.com/acme", normalize.GitHubURL{}, false},
		{"reserved owner", "https://github.com/topics/agents", normalize.GitHubURL{}, false},
		{"not a url", "acme/tools", normalize.GitHubURL{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalize.ParseGitHubURL(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepoRoot(t *testing.T) {
	got, ok := normalize.RepoRoot("https://www.github.com/acme/tools.git/tree/main/x?tab=readme#top")
	require.True(t, ok)
	assert.Equal(t, "https://github.com/acme/tools", got)

	_, ok = normalize.RepoRoot("https://github.com/sponsors/acme")
	assert.False(t, ok)
}

func TestNormalizeRepoURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"acme/tools", "https://github.com/acme/tools", true},
		{"github.com/acme/tools.git", "https://github.com/acme/tools", true},
		{"https://github.com/acme/tools.git", "https://github.com/acme/tools", true},
		{"https://github.com/acme/tools/tree/main/skills/pdf", "https://github.com/acme/tools/tree/main/skills/pdf", true},
		{"https://gitlab.com/acme/tools.git", "https://gitlab.com/acme/tools", true},
		{"  ", "", false},
		{"tools", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := normalize.NormalizeRepoURL(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURLBuilders(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/tools/tree/main/skills/pdf", normalize.TreeURL("acme", "tools", "main", "skills/pdf"))
	assert.Equal(t, "https://github.com/acme/tools/tree/main", normalize.TreeURL("acme", "tools", "main", ""))
	assert.Equal(t,
		"https://raw.githubusercontent.com/acme/tools/main/skills/pdf/SKILL.md",
		normalize.RawURL("https://raw.githubusercontent.com/", "acme", "tools", "main", "/skills/pdf/SKILL.md"),
	)
}
