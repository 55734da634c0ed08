package store

// SchemaVersion identifies the document schema baked into the engine.
// Snapshots serialized under a different version are discarded and the
// index is rebuilt from the vault.
const SchemaVersion = 1

// Document is the indexable representation of a single note.
// Path is the stable identity; it changes only when the note is renamed.
type Document struct {
	Path        string   `json:"path"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags"`
	Folder      string   `json:"folder"`
	Headings    []string `json:"headings"`
	CreatedAt   int64    `json:"createdAt"`  // epoch millis
	ModifiedAt  int64    `json:"modifiedAt"` // epoch millis
	Frontmatter string   `json:"frontmatter"`
}

// Hit is a single engine match, score on the engine's native scale.
type Hit struct {
	ID      uint64
	Score   float64
	Matched []string
	Doc     *Document
}

// DateField selects which timestamp a DateRangeFilter applies to.
type DateField int

const (
	FieldCreated DateField = iota
	FieldModified
)

// indexField returns the engine field name for the date field.
func (f DateField) indexField() string {
	if f == FieldModified {
		return "modifiedAt"
	}
	return "createdAt"
}

// String returns a human-readable field name.
func (f DateField) String() string {
	if f == FieldModified {
		return "modified"
	}
	return "created"
}

// Filter is a native engine filter clause. The set is sealed: the engine
// supports exactly tag containment and numeric date ranges. Constraints
// the engine cannot express live in the search coordinator's post-filters.
type Filter interface {
	isFilter()
}

// TagFilter matches documents whose tag list contains Tag.
type TagFilter struct {
	Tag string
}

func (TagFilter) isFilter() {}

// DateRangeFilter matches documents whose timestamp field lies in
// [Min, Max). A nil bound is unbounded on that side.
type DateRangeFilter struct {
	Field DateField
	Min   *float64
	Max   *float64
}

func (DateRangeFilter) isFilter() {}

// SearchRequest is a single engine-native query.
// An empty Term matches all documents subject to Filters, which lets
// pure-filter queries return the full candidate set for post-filtering.
type SearchRequest struct {
	Term      string
	Fuzziness int
	Limit     int
	Filters   []Filter
}
