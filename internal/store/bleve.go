package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// ErrClosed is returned by mutations against a closed engine.
var ErrClosed = errors.New("engine is closed")

// Engine wraps a Bleve in-memory index behind the insert/remove/search/
// serialize contract. Internal ids are engine-assigned and opaque to
// callers; the cache manager keeps the path→id table in lockstep.
//
// The engine also retains the full stored document per id. Bleve only
// needs the indexed terms, but post-filtering and excerpt generation
// need the complete body, and serialization re-feeds the stored
// documents into a fresh index on load.
type Engine struct {
	mu     sync.RWMutex
	idx    bleve.Index
	docs   map[uint64]*Document
	nextID uint64
	closed bool
}

// bleveDoc mirrors the indexed schema. Text fields are analyzed with the
// standard analyzer; path, tags and folder are exact keyword terms so
// TagFilter clauses match whole tags, not tokens.
type bleveDoc struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Headings    []string `json:"headings"`
	Path        string   `json:"path"`
	Tags        []string `json:"tags"`
	Folder      string   `json:"folder"`
	CreatedAt   int64    `json:"createdAt"`
	ModifiedAt  int64    `json:"modifiedAt"`
	Frontmatter string   `json:"frontmatter"`
}

// engineSnapshot is the wire form produced by Serialize.
type engineSnapshot struct {
	NextID uint64               `json:"next_id"`
	Docs   map[uint64]*Document `json:"docs"`
}

// NewEngine creates an empty in-memory engine.
func NewEngine() (*Engine, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &Engine{
		idx:  idx,
		docs: make(map[uint64]*Document),
	}, nil
}

// buildIndexMapping creates the Bleve mapping for the note schema.
func buildIndexMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = false

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name
	exact.Store = false

	num := bleve.NewNumericFieldMapping()
	num.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("body", text)
	doc.AddFieldMappingsAt("headings", text)
	doc.AddFieldMappingsAt("frontmatter", text)
	doc.AddFieldMappingsAt("path", exact)
	doc.AddFieldMappingsAt("tags", exact)
	doc.AddFieldMappingsAt("folder", exact)
	doc.AddFieldMappingsAt("createdAt", num)
	doc.AddFieldMappingsAt("modifiedAt", num)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// Insert adds a document and returns its engine-assigned internal id.
// Re-indexing an updated note is remove-then-insert, driven by the
// cache manager's path→id table.
func (e *Engine) Insert(ctx context.Context, doc *Document) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}

	id := e.nextID + 1
	if err := e.indexLocked(id, doc); err != nil {
		return 0, err
	}
	e.nextID = id
	e.docs[id] = doc
	return id, nil
}

func (e *Engine) indexLocked(id uint64, doc *Document) error {
	bd := bleveDoc{
		Title:       doc.Title,
		Body:        doc.Body,
		Headings:    doc.Headings,
		Path:        doc.Path,
		Tags:        doc.Tags,
		Folder:      doc.Folder,
		CreatedAt:   doc.CreatedAt,
		ModifiedAt:  doc.ModifiedAt,
		Frontmatter: doc.Frontmatter,
	}
	if err := e.idx.Index(idKey(id), bd); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.Path, err)
	}
	return nil
}

// Remove deletes a document by internal id. Removing an id that is no
// longer present is treated as already-removed, not an error.
func (e *Engine) Remove(ctx context.Context, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if _, ok := e.docs[id]; !ok {
		return nil
	}
	if err := e.idx.Delete(idKey(id)); err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	delete(e.docs, id)
	return nil
}

// Search executes a native query: analyzed term matching over the text
// fields plus the request's native filter clauses, ranked by score.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}
	if req.Limit <= 0 {
		return nil, fmt.Errorf("invalid limit %d", req.Limit)
	}

	q := e.buildQuery(req)
	sr := bleve.NewSearchRequestOptions(q, req.Limit, 0, false)
	sr.IncludeLocations = true

	result, err := e.idx.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		doc, ok := e.docs[id]
		if !ok {
			continue
		}
		matched := make([]string, 0, len(hit.Locations))
		seen := make(map[string]struct{})
		for _, fieldLocs := range hit.Locations {
			for term := range fieldLocs {
				if _, dup := seen[term]; dup {
					continue
				}
				seen[term] = struct{}{}
				matched = append(matched, term)
			}
		}
		hits = append(hits, Hit{
			ID:      id,
			Score:   hit.Score,
			Matched: matched,
			Doc:     doc,
		})
	}
	return hits, nil
}

// buildQuery assembles the Bleve query for a request. The term matches
// across title (boosted), body, headings and frontmatter; filters are
// conjoined so every clause must hold.
func (e *Engine) buildQuery(req SearchRequest) query.Query {
	var base query.Query
	term := strings.TrimSpace(req.Term)
	if term == "" {
		base = bleve.NewMatchAllQuery()
	} else {
		title := bleve.NewMatchQuery(term)
		title.SetField("title")
		title.SetBoost(2.0)
		body := bleve.NewMatchQuery(term)
		body.SetField("body")
		headings := bleve.NewMatchQuery(term)
		headings.SetField("headings")
		front := bleve.NewMatchQuery(term)
		front.SetField("frontmatter")
		if req.Fuzziness > 0 {
			title.SetFuzziness(req.Fuzziness)
			body.SetFuzziness(req.Fuzziness)
			headings.SetFuzziness(req.Fuzziness)
			front.SetFuzziness(req.Fuzziness)
		}
		base = bleve.NewDisjunctionQuery(title, body, headings, front)
	}

	if len(req.Filters) == 0 {
		return base
	}

	clauses := make([]query.Query, 0, len(req.Filters)+1)
	clauses = append(clauses, base)
	for _, f := range req.Filters {
		switch f := f.(type) {
		case TagFilter:
			tq := bleve.NewTermQuery(f.Tag)
			tq.SetField("tags")
			clauses = append(clauses, tq)
		case DateRangeFilter:
			// Bleve numeric ranges default to inclusive min, exclusive max,
			// matching the [Min, Max) contract.
			nq := bleve.NewNumericRangeQuery(f.Min, f.Max)
			nq.SetField(f.Field.indexField())
			clauses = append(clauses, nq)
		}
	}
	return bleve.NewConjunctionQuery(clauses...)
}

// Document returns the stored document for an internal id, or nil.
func (e *Engine) Document(id uint64) *Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docs[id]
}

// Count returns the number of live documents.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Serialize captures the engine contents as a self-contained blob.
func (e *Engine) Serialize() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}
	return json.Marshal(engineSnapshot{
		NextID: e.nextID,
		Docs:   e.docs,
	})
}

// Deserialize reconstitutes an engine from a Serialize blob by feeding
// the stored documents into a fresh index under their original ids, so
// the path→id table persisted alongside the blob stays valid.
func Deserialize(blob []byte) (*Engine, error) {
	var snap engineSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode engine snapshot: %w", err)
	}

	e, err := NewEngine()
	if err != nil {
		return nil, err
	}
	batch := e.idx.NewBatch()
	for id, doc := range snap.Docs {
		bd := bleveDoc{
			Title:       doc.Title,
			Body:        doc.Body,
			Headings:    doc.Headings,
			Path:        doc.Path,
			Tags:        doc.Tags,
			Folder:      doc.Folder,
			CreatedAt:   doc.CreatedAt,
			ModifiedAt:  doc.ModifiedAt,
			Frontmatter: doc.Frontmatter,
		}
		if err := batch.Index(idKey(id), bd); err != nil {
			return nil, fmt.Errorf("failed to restore document %s: %w", doc.Path, err)
		}
		e.docs[id] = doc
	}
	if err := e.idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to restore index: %w", err)
	}
	e.nextID = snap.NextID
	return e, nil
}

// Close releases the underlying index. Safe to call multiple times.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.idx.Close()
}

func idKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
