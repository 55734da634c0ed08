// Package query translates the raw search string into a structured
// query. Parsing is total: malformed fragments degrade to literal free
// text, never to an error.
package query

import (
	"regexp"
	"strings"
	"time"
)

// DateTarget selects which timestamp a date filter constrains.
type DateTarget int

const (
	DateCreated DateTarget = iota
	DateModified
)

// DateOp is the comparison applied by a date filter.
type DateOp int

const (
	// DateOn matches anywhere within the named calendar day.
	DateOn DateOp = iota
	// DateBefore matches strictly before the start of the day.
	DateBefore
	// DateAfter matches strictly after the end of the day.
	DateAfter
)

// DateFilter is one created:/modified: clause. Date is midnight UTC of
// the written calendar day.
type DateFilter struct {
	Target DateTarget
	Op     DateOp
	Date   time.Time
}

// ParsedQuery is the structured form of a raw query string. Text holds
// whatever free text remains after every structured token was removed.
type ParsedQuery struct {
	Text          string
	Phrases       []string
	Tags          []string
	ExcludedTags  []string
	ExcludedTerms []string
	Paths         []string
	Headings      []string
	Titles        []string
	Properties    map[string]string
	Dates         []DateFilter
}

// HasPostFilters reports whether the query carries any constraint the
// engine cannot apply natively.
func (q ParsedQuery) HasPostFilters() bool {
	return len(q.Phrases) > 0 ||
		len(q.ExcludedTags) > 0 ||
		len(q.ExcludedTerms) > 0 ||
		len(q.Paths) > 0 ||
		len(q.Headings) > 0 ||
		len(q.Titles) > 0 ||
		len(q.Properties) > 0
}

// reservedKeys are prefixes handled by a specific extraction rule. The
// generic key:value catch-all must skip them, otherwise it would consume
// tokens that belong to earlier rules. A note property that collides
// with one of these names can only be filtered via the [key]:value form.
var reservedKeys = map[string]struct{}{
	"path": {}, "folder": {}, "created": {}, "modified": {},
	"title": {}, "heading": {}, "file": {}, "tag": {},
	"line": {}, "section": {},
}

var (
	rePhrase       = regexp.MustCompile(`"([^"]*)"`)
	reExcludedTag  = regexp.MustCompile(`(?:^|\s)-#([\w/-]+)`)
	reTag          = regexp.MustCompile(`(?:^|\s)#([\w/-]+)`)
	reHeadingGroup = regexp.MustCompile(`(?:^|\s)heading:\(([^)]*)\)`)
	rePath         = regexp.MustCompile(`(?:^|\s)(?:path|folder):(\S*)`)
	reTitle        = regexp.MustCompile(`(?:^|\s)(?:file|title):(\S*)`)
	reTagKey       = regexp.MustCompile(`(?:^|\s)tag:#?(\S*)`)
	reHeading      = regexp.MustCompile(`(?:^|\s)heading:(\S*)`)
	reDate         = regexp.MustCompile(`(?:^|\s)(created|modified):([<>]?)(\d{4}-\d{2}-\d{2})`)
	reBracketProp  = regexp.MustCompile(`(?:^|\s)\[([^\]\s]+)\]:(\S*)`)
	reGenericProp  = regexp.MustCompile(`(?:^|\s)([A-Za-z][\w-]*):(\S*)`)
	reExcludedTerm = regexp.MustCompile(`(?:^|\s)-(\S+)`)
	reWhitespace   = regexp.MustCompile(`\s+`)
)

// Parse extracts structured tokens from raw in a fixed pass order. Each
// pass pattern-matches against the residue of the previous passes, so
// specific rules always win over the generic frontmatter catch-all, and
// negated tags are consumed before plain tags would see a dangling body.
func Parse(raw string) ParsedQuery {
	q := ParsedQuery{Properties: make(map[string]string)}
	rest := raw

	rest = extract(rest, rePhrase, func(m []string) bool {
		q.Phrases = append(q.Phrases, m[1])
		return true
	})
	rest = extract(rest, reExcludedTag, func(m []string) bool {
		q.ExcludedTags = append(q.ExcludedTags, strings.ToLower(m[1]))
		return true
	})
	rest = extract(rest, reTag, func(m []string) bool {
		q.Tags = append(q.Tags, strings.ToLower(m[1]))
		return true
	})
	rest = extract(rest, reHeadingGroup, func(m []string) bool {
		q.Headings = append(q.Headings, strings.Fields(m[1])...)
		return true
	})
	rest = extract(rest, rePath, func(m []string) bool {
		q.Paths = append(q.Paths, m[1])
		return true
	})
	rest = extract(rest, reTitle, func(m []string) bool {
		q.Titles = append(q.Titles, m[1])
		return true
	})
	rest = extract(rest, reTagKey, func(m []string) bool {
		q.Tags = append(q.Tags, strings.ToLower(m[1]))
		return true
	})
	rest = extract(rest, reHeading, func(m []string) bool {
		q.Headings = append(q.Headings, m[1])
		return true
	})
	rest = extract(rest, reDate, func(m []string) bool {
		date, err := time.ParseInLocation("2006-01-02", m[3], time.UTC)
		if err != nil {
			// Impossible calendar date: leave the token as literal text.
			return false
		}
		df := DateFilter{Date: date}
		if m[1] == "modified" {
			df.Target = DateModified
		}
		switch m[2] {
		case "<":
			df.Op = DateBefore
		case ">":
			df.Op = DateAfter
		}
		q.Dates = append(q.Dates, df)
		return true
	})
	rest = extract(rest, reBracketProp, func(m []string) bool {
		q.Properties[strings.ToLower(m[1])] = m[2]
		return true
	})
	rest = extract(rest, reGenericProp, func(m []string) bool {
		key := strings.ToLower(m[1])
		if _, reserved := reservedKeys[key]; reserved {
			return false
		}
		q.Properties[key] = m[2]
		return true
	})
	rest = extract(rest, reExcludedTerm, func(m []string) bool {
		q.ExcludedTerms = append(q.ExcludedTerms, m[1])
		return true
	})

	q.Text = strings.TrimSpace(reWhitespace.ReplaceAllString(rest, " "))
	return q
}

// extract applies one pass: every match is handed to consume, and
// consumed matches are replaced by a single space so surrounding tokens
// stay separated. A consume returning false keeps the token in place.
func extract(s string, re *regexp.Regexp, consume func(groups []string) bool) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, loc := range matches {
		groups := make([]string, 0, len(loc)/2)
		for i := 0; i < len(loc); i += 2 {
			if loc[i] < 0 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, s[loc[i]:loc[i+1]])
		}
		if !consume(groups) {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(" ")
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
