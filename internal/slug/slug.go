// Package slug builds URL-safe catalog slugs.
package slug

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	maxBaseLength = 80
	suffixLength  = 6
	fallback      = "skill"

	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

// Base lowercases name, drops quote characters, collapses every run of
// characters outside [a-z0-9] to one hyphen, trims hyphens and then
// truncates to 80 characters. Truncation may leave a trailing hyphen; the
// published slugs have the same shape.
func Base(name string) string {
	lowered := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lowered))
	pendingHyphen := false
	for _, r := range lowered {
		switch {
		case r == '\'' || r == '"' || r == '`':
			continue
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}

	out := b.String()
	if len(out) > maxBaseLength {
		out = out[:maxBaseLength]
	}
	if out == "" {
		return fallback
	}
	return out
}

// Build returns the slug for a skill. With a repo URL the base gets a
// six-character hash suffix so unrelated skills with the same name differ.
func Build(name, repoURL string) string {
	base := Base(name)
	if repoURL == "" {
		return base
	}
	return base + "-" + Suffix(repoURL)
}

// Suffix is the first six hex digits of the unpadded FNV-1a hash of s.
func Suffix(s string) string {
	h := strconv.FormatUint(uint64(hashUTF16(s)), 16)
	if len(h) > suffixLength {
		h = h[:suffixLength]
	}
	return h
}

// Candidate returns the n-th slug to try for a new skill: the slug itself
// first, then slug-2, slug-3 and so on.
func Candidate(slug string, n int) string {
	if n <= 1 {
		return slug
	}
	return slug + "-" + strconv.Itoa(n)
}

// hashUTF16 is 32-bit FNV-1a over UTF-16 code units, so slugs match the
// ones already published by the hosted catalog.
func hashUTF16(s string) uint32 {
	h := uint32(fnvOffset32)
	for _, unit := range utf16.Encode([]rune(s)) {
		h ^= uint32(unit)
		h *= fnvPrime32
	}
	return h
}
