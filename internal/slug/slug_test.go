package slug_test

import (
	"strings"
	"testing"

	"github.com/javainthinking/skillspick/internal/slug"
)

func TestBase(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"punctuation collapses", "My Skill!!", "my-skill"},
		{"quotes are dropped", `Claude's "PDF" tool`, "claudes-pdf-tool"},
		{"backtick dropped", "run `make`", "run-make"},
		{"leading and trailing separators", "  --Hello, World--  ", "hello-world"},
		{"non ascii becomes separator", "Café Über", "caf-ber"},
		{"digits kept", "GPT 4o Helper", "gpt-4o-helper"},
		{"empty falls back", "", "skill"},
		{"only symbols falls back", "!!!", "skill"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := slug.Base(tt.input); got != tt.want {
				t.Errorf("Base(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBase_TruncatesAfterTrimming(t *testing.T) {
	got := slug.Base(strings.Repeat("a", 79) + " b")
	if len(got) != 80 {
		t.Fatalf("expected 80 chars, got %d", len(got))
	}
	if !strings.HasSuffix(got, "a-") {
		t.Errorf("expected truncation to keep the separator, got %q", got[len(got)-3:])
	}
}

func TestBuild_DeterministicWithRepoSuffix(t *testing.T) {
	first := slug.Build("My Skill!!", "https://github.com/a/b")
	second := slug.Build("My Skill!!", "https://github.com/a/b")

	if first != second {
		t.Fatalf("Build is not deterministic: %q vs %q", first, second)
	}
	if first != "my-skill-ba4c32" {
		t.Errorf("Build() = %q, want %q", first, "my-skill-ba4c32")
	}
}

func TestBuild_WithoutRepo(t *testing.T) {
	if got := slug.Build("My Skill!!", ""); got != "my-skill" {
		t.Errorf("Build() = %q, want %q", got, "my-skill")
	}
}

func TestSuffix(t *testing.T) {
	tests := map[string]string{
		"https://github.com/a/b":               "ba4c32",
		"https://github.com/acme/foo-tool":     "4819af",
		"https://github.com/anthropics/skills": "f6699a",
		// hash is 0x005ad864; hex is not zero padded
		"https://github.com/o/r706": "5ad864",
	}
	for input, want := range tests {
		if got := slug.Suffix(input); got != want {
			t.Errorf("Suffix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCandidate(t *testing.T) {
	if got := slug.Candidate("pdf-ba4c32", 1); got != "pdf-ba4c32" {
		t.Errorf("Candidate(1) = %q", got)
	}
	if got := slug.Candidate("pdf-ba4c32", 3); got != "pdf-ba4c32-3" {
		t.Errorf("Candidate(3) = %q", got)
	}
}
