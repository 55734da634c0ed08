// Package search orchestrates parsed queries against the index engine:
// native filter construction, over-fetching, post-filtering of the
// constraints the engine cannot express, and result shaping.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/marklambrecht/lightning-local-search/internal/cache"
	"github.com/marklambrecht/lightning-local-search/internal/extract"
	"github.com/marklambrecht/lightning-local-search/internal/query"
	"github.com/marklambrecht/lightning-local-search/internal/store"
)

// overFetchFactor is how many candidates are requested from the engine
// per requested result whenever any post-filter is active. Post-filters
// only shrink the candidate set, so under-fetching would silently drop
// valid results that rank below the cutoff.
const overFetchFactor = 10

// fuzzyMinTermLen is the term length above which fuzzy matching is
// allowed. Short terms under edit distance 1 match far too much.
const fuzzyMinTermLen = 4

// foldCacheSize bounds the case-folded document text cache used by the
// containment post-filters.
const foldCacheSize = 1024

// ErrInvalidLimit reports a non-positive result limit.
var ErrInvalidLimit = errors.New("limit must be positive")

// ErrInvalidExcerptLength reports a non-positive excerpt length.
var ErrInvalidExcerptLength = errors.New("excerpt length must be positive")

// Coordinator executes two-phase search: engine-native retrieval
// followed by application-level post-filtering and truncation.
type Coordinator struct {
	cache *cache.Manager

	// folded caches case-folded document text per internal id. Ids are
	// unique within one engine but restart when the manager swaps in a
	// fresh engine after a rebuild or snapshot load, so the cache is
	// purged whenever the engine handle changes.
	mu     sync.Mutex
	engine *store.Engine
	folded *lru.Cache[uint64, string]
}

// NewCoordinator wires a coordinator against the cache manager that
// owns the engine handle.
func NewCoordinator(m *cache.Manager) (*Coordinator, error) {
	if m == nil {
		return nil, fmt.Errorf("nil cache manager")
	}
	folded, err := lru.New[uint64, string](foldCacheSize)
	if err != nil {
		return nil, err
	}
	return &Coordinator{cache: m, folded: folded}, nil
}

// Search runs a parsed query and returns at most opts.Limit results,
// ranked by engine score. A not-yet-initialized index yields an empty
// list, never an error; invalid options are contract violations and do
// error.
func (c *Coordinator) Search(ctx context.Context, q query.ParsedQuery, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if opts.ExcerptLength <= 0 {
		return nil, ErrInvalidExcerptLength
	}

	engine := c.cache.Engine()
	if engine == nil {
		return []Result{}, nil
	}
	c.refreshFolds(engine)

	term := buildTerm(q)
	filters := buildNativeFilters(q)
	postFilters := c.buildPostFilters(q, opts)

	fetch := opts.Limit
	if len(postFilters) > 0 {
		fetch = opts.Limit * overFetchFactor
	}

	req := store.SearchRequest{
		Term:    term,
		Limit:   fetch,
		Filters: filters,
	}
	if opts.Fuzzy && len(q.Phrases) == 0 && len([]rune(term)) > fuzzyMinTermLen {
		req.Fuzziness = 1
	}

	hits, err := engine.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	// A fuzzy query that finds nothing gets one exact retry: never
	// return empty when an exact match might exist.
	if len(hits) == 0 && req.Fuzziness > 0 {
		req.Fuzziness = 0
		hits, err = engine.Search(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	for _, filter := range postFilters {
		hits = applyFilter(hits, filter)
		if len(hits) == 0 {
			break
		}
	}
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	excerptTerms := excerptTermsOf(q)
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Path:        hit.Doc.Path,
			Title:       hit.Doc.Title,
			Score:       hit.Score,
			ScoreSource: "text",
			Excerpt:     extract.Excerpt(hit.Doc.Body, excerptTerms, opts.ExcerptLength),
			Tags:        hit.Doc.Tags,
			Folder:      hit.Doc.Folder,
			Created:     displayTime(hit.Doc.CreatedAt),
			Modified:    displayTime(hit.Doc.ModifiedAt),
			Matched:     hit.Matched,
		})
	}
	return results, nil
}

// refreshFolds drops the folded-text cache when the manager has swapped
// in a new engine: entries keyed by the previous generation's ids would
// alias fresh documents and post-filters would match against stale text.
func (c *Coordinator) refreshFolds(engine *store.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if engine != c.engine {
		c.folded.Purge()
		c.engine = engine
	}
}

// buildTerm assembles the engine search term: the residual free text
// plus, per phrase, only its longest non-trivial word. The engine's
// tokenizer is not phrase-aware, so whole phrases degrade precision;
// exact phrase matching is entirely the post-filter's job.
func buildTerm(q query.ParsedQuery) string {
	parts := make([]string, 0, 1+len(q.Phrases))
	if q.Text != "" {
		parts = append(parts, q.Text)
	}
	for _, phrase := range q.Phrases {
		if w := longestWord(phrase); w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, " ")
}

// longestWord returns the longest word of at least three runes.
func longestWord(phrase string) string {
	var best string
	bestLen := 0
	for _, w := range strings.Fields(phrase) {
		if n := utf8.RuneCountInString(w); n >= 3 && n > bestLen {
			best = w
			bestLen = n
		}
	}
	return best
}

// buildNativeFilters maps the query onto the engine's sealed filter
// union: tag containment and timestamp ranges. Everything else is a
// post-filter.
func buildNativeFilters(q query.ParsedQuery) []store.Filter {
	var filters []store.Filter
	for _, tag := range q.Tags {
		if tag == "" {
			continue
		}
		filters = append(filters, store.TagFilter{Tag: tag})
	}
	for _, df := range q.Dates {
		filters = append(filters, dateRange(df))
	}
	return filters
}

// dateRange converts a calendar-day filter into a numeric range over
// epoch millis. "on" covers the whole day [start, nextDay); "before" is
// everything up to the start; "after" everything from the next day on.
func dateRange(df query.DateFilter) store.DateRangeFilter {
	field := store.FieldCreated
	if df.Target == query.DateModified {
		field = store.FieldModified
	}
	dayStart := float64(df.Date.UnixMilli())
	nextDay := float64(df.Date.AddDate(0, 0, 1).UnixMilli())

	switch df.Op {
	case query.DateBefore:
		return store.DateRangeFilter{Field: field, Max: &dayStart}
	case query.DateAfter:
		return store.DateRangeFilter{Field: field, Min: &nextDay}
	default:
		return store.DateRangeFilter{Field: field, Min: &dayStart, Max: &nextDay}
	}
}

// excerptTermsOf lists the terms worth centering an excerpt on.
func excerptTermsOf(q query.ParsedQuery) []string {
	terms := append([]string(nil), q.Phrases...)
	terms = append(terms, strings.Fields(q.Text)...)
	return terms
}

func displayTime(millis int64) string {
	if millis == 0 {
		return ""
	}
	return time.UnixMilli(millis).UTC().Format("2006-01-02 15:04")
}
