// Package extract converts raw note files into indexable documents:
// frontmatter parsing, markdown cleanup, heading and tag collection.
package extract

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/marklambrecht/lightning-local-search/internal/store"
)

// FileMeta carries the file-system timestamps for a note, epoch millis.
type FileMeta struct {
	CreatedAt  int64
	ModifiedAt int64
}

// structuralKeys are frontmatter keys that feed dedicated document
// fields and are excluded from the flattened frontmatter blob.
var structuralKeys = map[string]struct{}{
	"tags": {},
}

var (
	reFrontmatter = regexp.MustCompile(`(?ms)^---\s*\n(.*?)\n---\s*\n?`)
	reInlineTag   = regexp.MustCompile(`(?:^|\s)#([A-Za-z][\w/-]*)`)
)

// Extractor turns raw markdown into store documents. One instance is
// shared by the full rebuild and the incremental sync path; it is safe
// for use from the single indexing context.
type Extractor struct {
	md goldmark.Markdown
}

// NewExtractor creates an extractor with a default goldmark parser.
func NewExtractor() *Extractor {
	return &Extractor{md: goldmark.New()}
}

// Extract builds the indexable document for one note. Frontmatter
// timestamps override the file-system ones when present and parseable.
func (x *Extractor) Extract(notePath string, content []byte, meta FileMeta) (*store.Document, error) {
	fmBytes, body := splitFrontmatter(content)
	front, err := parseFrontmatter(fmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter of %s: %w", notePath, err)
	}

	cleaned, headings := x.cleanMarkdown(body)

	doc := &store.Document{
		Path:        notePath,
		Body:        cleaned,
		Folder:      folderOf(notePath),
		Headings:    headings,
		Tags:        collectTags(front, body),
		CreatedAt:   meta.CreatedAt,
		ModifiedAt:  meta.ModifiedAt,
		Frontmatter: flattenFrontmatter(front),
	}
	doc.Title = titleOf(notePath, front, headings)

	if ts, ok := frontmatterTime(front, "created"); ok {
		doc.CreatedAt = ts
	}
	if ts, ok := frontmatterTime(front, "modified"); ok {
		doc.ModifiedAt = ts
	}
	return doc, nil
}

// cleanMarkdown walks the goldmark AST collecting plain text and the
// heading list. Markdown syntax, link targets and emphasis markers are
// dropped; code block contents are kept as text.
func (x *Extractor) cleanMarkdown(body []byte) (string, []string) {
	root := x.md.Parser().Parse(gtext.NewReader(body))

	var parts []string
	var headings []string

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading:
			if h := nodeText(n, body); h != "" {
				headings = append(headings, h)
			}
		case *ast.Text:
			if t := string(n.Segment.Value(body)); t != "" {
				parts = append(parts, t)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				parts = append(parts, string(seg.Value(body)))
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			if t := nodeText(n, body); t != "" {
				parts = append(parts, t)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return CollapseWhitespace(strings.Join(parts, " ")), headings
}

// nodeText concatenates the text segments beneath a node.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return CollapseWhitespace(b.String())
}

// splitFrontmatter separates the leading YAML block from the body.
func splitFrontmatter(data []byte) ([]byte, []byte) {
	loc := reFrontmatter.FindSubmatchIndex(data)
	if len(loc) < 4 {
		return nil, data
	}
	return data[loc[2]:loc[3]], data[loc[1]:]
}

// parseFrontmatter decodes the YAML mapping into ordered key/values.
// Scalars become single-element slices, sequences keep their order,
// nested mappings are ignored.
func parseFrontmatter(fm []byte) (map[string][]string, error) {
	result := make(map[string][]string)
	if len(fm) == 0 {
		return result, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(fm, &node); err != nil {
		return nil, err
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return result, nil
	}
	mapping := node.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return result, nil
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		value := mapping.Content[i+1]
		switch value.Kind {
		case yaml.ScalarNode:
			result[key] = []string{value.Value}
		case yaml.SequenceNode:
			vals := make([]string, 0, len(value.Content))
			for _, child := range value.Content {
				if child.Kind == yaml.ScalarNode {
					vals = append(vals, child.Value)
				}
			}
			result[key] = vals
		}
	}
	return result, nil
}

// flattenFrontmatter renders frontmatter as newline-joined key:value
// lines, one line per scalar value, excluding structural keys. This is
// the blob the frontmatter post-filter substring-matches against.
func flattenFrontmatter(front map[string][]string) string {
	keys := make([]string, 0, len(front))
	for k := range front {
		if _, structural := structuralKeys[strings.ToLower(k)]; structural {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		for _, v := range front[k] {
			lines = append(lines, k+":"+v)
		}
	}
	return strings.Join(lines, "\n")
}

// collectTags merges frontmatter tags with inline #tags from the body,
// lowercased and deduplicated, preserving first-seen order.
func collectTags(front map[string][]string, body []byte) []string {
	seen := make(map[string]struct{})
	var tags []string
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	for _, t := range front["tags"] {
		add(t)
	}
	for _, m := range reInlineTag.FindAllStringSubmatch(string(body), -1) {
		add(m[1])
	}
	return tags
}

// titleOf picks the display title: frontmatter title, else the first
// heading, else the filename stem.
func titleOf(notePath string, front map[string][]string, headings []string) string {
	if vals, ok := front["title"]; ok && len(vals) > 0 && vals[0] != "" {
		return vals[0]
	}
	if len(headings) > 0 {
		return headings[0]
	}
	base := path.Base(notePath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// frontmatterTime parses a frontmatter date value to epoch millis.
func frontmatterTime(front map[string][]string, key string) (int64, bool) {
	vals, ok := front[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return 0, false
	}
	t, err := dateparse.ParseAny(vals[0])
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

// folderOf returns the slash-separated parent folder, "" at the root.
func folderOf(notePath string) string {
	dir := path.Dir(strings.ReplaceAll(notePath, "\\", "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
