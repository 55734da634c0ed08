package search

import (
	"strings"

	"github.com/marklambrecht/lightning-local-search/internal/query"
	"github.com/marklambrecht/lightning-local-search/internal/store"
)

// filterFunc decides whether a candidate hit survives one post-filter
// pass. Passes are pure and order-independent; each only shrinks the
// candidate set.
type filterFunc func(hit store.Hit) bool

// applyFilter keeps the hits a pass accepts, preserving rank order.
func applyFilter(hits []store.Hit, filter filterFunc) []store.Hit {
	kept := hits[:0]
	for _, hit := range hits {
		if filter(hit) {
			kept = append(kept, hit)
		}
	}
	return kept
}

// buildPostFilters assembles the passes for every constraint the engine
// cannot apply natively. An empty slice means the engine result set is
// final and no over-fetch is needed.
func (c *Coordinator) buildPostFilters(q query.ParsedQuery, opts Options) []filterFunc {
	var filters []filterFunc

	if paths := nonEmpty(q.Paths); len(paths) > 0 {
		filters = append(filters, pathFilter(paths))
	}
	if len(q.Phrases) > 0 {
		filters = append(filters, c.phraseFilter(q.Phrases, opts.CaseSensitive))
	}
	// The engine is case-insensitive, so exact-case term containment
	// only exists as a post pass.
	if opts.CaseSensitive && q.Text != "" {
		filters = append(filters, caseSensitiveTermFilter(strings.Fields(q.Text)))
	}
	if len(q.ExcludedTerms) > 0 {
		filters = append(filters, c.excludedTermFilter(q.ExcludedTerms))
	}
	if len(q.ExcludedTags) > 0 {
		filters = append(filters, excludedTagFilter(q.ExcludedTags))
	}
	if terms := nonEmpty(q.Headings); len(terms) > 0 {
		filters = append(filters, headingFilter(terms))
	}
	if terms := nonEmpty(q.Titles); len(terms) > 0 {
		filters = append(filters, titleFilter(terms))
	}
	if len(q.Properties) > 0 {
		filters = append(filters, propertyFilter(q.Properties))
	}
	return filters
}

// pathFilter matches a document when, for every filter prefix p, its
// folder equals p, its folder lies under p, or its path lies under p.
// Comparison is case-insensitive and segment-aware: `work` matches
// folder `work/projects` and path `work/notes.md` but never `workshop`.
func pathFilter(paths []string) filterFunc {
	prefixes := make([]string, len(paths))
	for i, p := range paths {
		prefixes[i] = strings.ToLower(strings.Trim(p, "/"))
	}
	return func(hit store.Hit) bool {
		folder := strings.ToLower(hit.Doc.Folder)
		path := strings.ToLower(hit.Doc.Path)
		for _, p := range prefixes {
			if folder != p &&
				!strings.HasPrefix(folder, p+"/") &&
				!strings.HasPrefix(path, p+"/") {
				return false
			}
		}
		return true
	}
}

// phraseFilter requires every exact phrase to appear in the document's
// concatenated title, body and headings.
func (c *Coordinator) phraseFilter(phrases []string, caseSensitive bool) filterFunc {
	if caseSensitive {
		return func(hit store.Hit) bool {
			hay := haystack(hit.Doc)
			for _, phrase := range phrases {
				if !strings.Contains(hay, phrase) {
					return false
				}
			}
			return true
		}
	}
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return func(hit store.Hit) bool {
		hay := c.foldedHaystack(hit)
		for _, phrase := range lowered {
			if !strings.Contains(hay, phrase) {
				return false
			}
		}
		return true
	}
}

// caseSensitiveTermFilter requires every free-text term with its exact
// casing.
func caseSensitiveTermFilter(terms []string) filterFunc {
	return func(hit store.Hit) bool {
		hay := haystack(hit.Doc)
		for _, term := range terms {
			if !strings.Contains(hay, term) {
				return false
			}
		}
		return true
	}
}

// excludedTermFilter drops documents containing any excluded term.
func (c *Coordinator) excludedTermFilter(terms []string) filterFunc {
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return func(hit store.Hit) bool {
		hay := c.foldedHaystack(hit)
		for _, term := range lowered {
			if strings.Contains(hay, term) {
				return false
			}
		}
		return true
	}
}

// excludedTagFilter drops documents carrying any excluded tag. Tags are
// stored lowercased.
func excludedTagFilter(tags []string) filterFunc {
	return func(hit store.Hit) bool {
		for _, excluded := range tags {
			for _, tag := range hit.Doc.Tags {
				if tag == excluded {
					return false
				}
			}
		}
		return true
	}
}

// headingFilter requires, per term, at least one heading containing it.
func headingFilter(terms []string) filterFunc {
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return func(hit store.Hit) bool {
		for _, term := range lowered {
			found := false
			for _, heading := range hit.Doc.Headings {
				if strings.Contains(strings.ToLower(heading), term) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
}

// titleFilter requires the title to contain every file:/title: term.
func titleFilter(terms []string) filterFunc {
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return func(hit store.Hit) bool {
		title := strings.ToLower(hit.Doc.Title)
		for _, term := range lowered {
			if !strings.Contains(title, term) {
				return false
			}
		}
		return true
	}
}

// propertyFilter matches frontmatter equality as substring containment
// of `key:value` against the document's flattened frontmatter blob.
func propertyFilter(props map[string]string) filterFunc {
	needles := make([]string, 0, len(props))
	for k, v := range props {
		needles = append(needles, strings.ToLower(k+":"+v))
	}
	return func(hit store.Hit) bool {
		front := strings.ToLower(hit.Doc.Frontmatter)
		for _, needle := range needles {
			if !strings.Contains(front, needle) {
				return false
			}
		}
		return true
	}
}

// haystack is the searchable text of a document for containment checks.
func haystack(doc *store.Document) string {
	return doc.Title + "\n" + doc.Body + "\n" + strings.Join(doc.Headings, "\n")
}

// foldedHaystack returns the lowercased haystack, cached per internal
// id. Bodies are large and several passes fold the same document.
func (c *Coordinator) foldedHaystack(hit store.Hit) string {
	if hay, ok := c.folded.Get(hit.ID); ok {
		return hay
	}
	hay := strings.ToLower(haystack(hit.Doc))
	c.folded.Add(hit.ID, hay)
	return hay
}

// nonEmpty drops empty-string entries a value-less prefix token leaves
// behind; an empty filter value is accepted but constrains nothing.
func nonEmpty(values []string) []string {
	kept := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			kept = append(kept, v)
		}
	}
	return kept
}
