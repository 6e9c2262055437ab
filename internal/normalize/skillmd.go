package normalize

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const (
	maxDocNameLen        = 120
	maxDocDescriptionLen = 300
)

// SkillDoc is the useful part of a SKILL.md file.
type SkillDoc struct {
	// Name is the front matter name, else the first level-1 heading, else
	// the fallback passed to ParseSkillMD.
	Name string
	// FrontmatterName is set only when the front matter declares a name.
	FrontmatterName string
	Description     string
	// Body is the full document as fetched.
	Body string
}

var skillMarkdown = goldmark.New(goldmark.WithExtensions(meta.Meta))

// ParseSkillMD extracts name and description from a SKILL.md document.
// Front matter name and description win; otherwise the first level-1
// heading names the skill and the first paragraph or list item after it
// describes it.
func ParseSkillMD(src []byte, fallbackName string) SkillDoc {
	doc := SkillDoc{Body: string(src)}

	pctx := parser.NewContext()
	root := skillMarkdown.Parser().Parse(text.NewReader(src), parser.WithContext(pctx))

	if fm := meta.Get(pctx); fm != nil {
		doc.FrontmatterName = truncateRunes(metaString(fm, "name"), maxDocNameLen)
		doc.Description = truncateRunes(metaString(fm, "description"), maxDocDescriptionLen)
	}

	heading, after := firstHeading(root, src)
	switch {
	case doc.FrontmatterName != "":
		doc.Name = doc.FrontmatterName
	case heading != "" && utf8.RuneCountInString(heading) <= maxDocNameLen:
		doc.Name = heading
	default:
		doc.Name = fallbackName
	}

	if doc.Description == "" && after != nil {
		doc.Description = truncateRunes(firstProse(after, src), maxDocDescriptionLen)
	}
	return doc
}

func metaString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// firstHeading returns the text of the first level-1 heading and the node
// following it.
func firstHeading(root ast.Node, src []byte) (string, ast.Node) {
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			return strings.TrimSpace(inlineText(h, src)), h.NextSibling()
		}
	}
	return "", nil
}

// firstProse returns the text of the first paragraph or list item at or
// after start. Headings, code and HTML blocks are passed over.
func firstProse(start ast.Node, src []byte) string {
	for n := start; n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Paragraph:
			if s := strings.TrimSpace(inlineText(node, src)); s != "" {
				return s
			}
		case *ast.List:
			if item := node.FirstChild(); item != nil {
				if s := strings.TrimSpace(inlineText(item, src)); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// inlineText concatenates the text segments under n. Soft line breaks
// become spaces.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.List:
			if node != n {
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(buf.String()), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit]))
}
