package search

// Options controls one search invocation.
type Options struct {
	// Limit caps the result count. Must be positive.
	Limit int
	// ExcerptLength is the maximum excerpt size in runes. Must be positive.
	ExcerptLength int
	// Fuzzy enables engine-native edit-distance tolerance.
	Fuzzy bool
	// CaseSensitive makes phrase and term containment exact-case.
	CaseSensitive bool
}

// DefaultOptions returns the options used when callers pass zero values.
func DefaultOptions() Options {
	return Options{
		Limit:         10,
		ExcerptLength: 200,
	}
}

// Result is one ranked search hit, recomputed per query and never
// persisted. Score is on the engine's native scale.
type Result struct {
	Path        string   `json:"path"`
	Title       string   `json:"title"`
	Score       float64  `json:"score"`
	ScoreSource string   `json:"score_source"`
	Excerpt     string   `json:"excerpt"`
	Tags        []string `json:"tags,omitempty"`
	Folder      string   `json:"folder"`
	Created     string   `json:"created"`
	Modified    string   `json:"modified"`
	Matched     []string `json:"matched,omitempty"`
}
