package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FreeTextOnly(t *testing.T) {
	q := Parse("quarterly   planning\tmeeting")

	assert.Equal(t, "quarterly planning meeting", q.Text)
	assert.Empty(t, q.Phrases)
	assert.Empty(t, q.Tags)
	assert.Empty(t, q.Properties)
}

func TestParse_Phrases(t *testing.T) {
	q := Parse(`"quarterly planning" review "next steps"`)

	assert.Equal(t, []string{"quarterly planning", "next steps"}, q.Phrases)
	assert.Equal(t, "review", q.Text)
}

func TestParse_TagsAndNegatedTags(t *testing.T) {
	// Negated tags are consumed before plain tags, so the leading dash
	// never strands a bare #tag.
	q := Parse("#project -#old #Work/Active notes")

	assert.Equal(t, []string{"project", "work/active"}, q.Tags)
	assert.Equal(t, []string{"old"}, q.ExcludedTags)
	assert.Equal(t, "notes", q.Text)
}

func TestParse_PathAndFolderAlias(t *testing.T) {
	q := Parse("path:work folder:personal/journal meeting")

	assert.Equal(t, []string{"work", "personal/journal"}, q.Paths)
	assert.Equal(t, "meeting", q.Text)
}

func TestParse_TitleFileAndTagPrefixes(t *testing.T) {
	q := Parse("file:roadmap title:q3 tag:#project tag:urgent")

	assert.Equal(t, []string{"roadmap", "q3"}, q.Titles)
	assert.Equal(t, []string{"project", "urgent"}, q.Tags)
	assert.Empty(t, q.Text)
}

func TestParse_HeadingSingleAndGroup(t *testing.T) {
	q := Parse("heading:(alpha beta) heading:gamma rest")

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, q.Headings)
	assert.Equal(t, "rest", q.Text)
}

func TestParse_DateFilters(t *testing.T) {
	q := Parse("created:>2024-01-01 modified:<2024-06-15 created:2024-03-03")

	require.Len(t, q.Dates, 3)
	assert.Equal(t, DateFilter{Target: DateCreated, Op: DateAfter,
		Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, q.Dates[0])
	assert.Equal(t, DateFilter{Target: DateModified, Op: DateBefore,
		Date: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)}, q.Dates[1])
	assert.Equal(t, DateFilter{Target: DateCreated, Op: DateOn,
		Date: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)}, q.Dates[2])
	assert.Empty(t, q.Text)
}

func TestParse_InvalidDateStaysLiteral(t *testing.T) {
	q := Parse("created:2024-13-40 meeting")

	assert.Empty(t, q.Dates)
	assert.Equal(t, "created:2024-13-40 meeting", q.Text)
}

func TestParse_FrontmatterFilters(t *testing.T) {
	q := Parse("[status]:active priority:high notes")

	assert.Equal(t, map[string]string{"status": "active", "priority": "high"}, q.Properties)
	assert.Equal(t, "notes", q.Text)
}

func TestParse_BracketedFormBypassesReservedSet(t *testing.T) {
	// A property literally named "tag" is only reachable through the
	// bracketed form; the bare form belongs to the tag rule.
	q := Parse("[tag]:custom")

	assert.Equal(t, map[string]string{"tag": "custom"}, q.Properties)
	assert.Empty(t, q.Tags)
}

func TestParse_ReservedKeysNotConsumedAsProperties(t *testing.T) {
	q := Parse("line:12 section:intro")

	assert.Empty(t, q.Properties)
	assert.Equal(t, "line:12 section:intro", q.Text)
}

func TestParse_ExcludedTerms(t *testing.T) {
	q := Parse("meeting -dentist -draft")

	assert.Equal(t, []string{"dentist", "draft"}, q.ExcludedTerms)
	assert.Equal(t, "meeting", q.Text)
}

func TestParse_EmptyValueAccepted(t *testing.T) {
	q := Parse("path: meeting")

	require.Len(t, q.Paths, 1)
	assert.Equal(t, "", q.Paths[0])
	assert.Equal(t, "meeting", q.Text)
}

func TestParse_DuplicatesNotDeduplicated(t *testing.T) {
	q := Parse("#a #a path:x path:x")

	assert.Equal(t, []string{"a", "a"}, q.Tags)
	assert.Equal(t, []string{"x", "x"}, q.Paths)
}

func TestParse_Total_NeverPanicsOnMalformedInput(t *testing.T) {
	inputs := []string{
		"", "   ", `"`, `"unterminated`, "-", "-#", "#", ":",
		"::::", "[x]:", "created:>", "-#-#-#", `""`, "heading:(",
	}
	for _, raw := range inputs {
		assert.NotPanics(t, func() { Parse(raw) }, "input %q", raw)
	}
}

func TestParse_EverythingCombined(t *testing.T) {
	q := Parse(`"exact phrase" #work -#archive path:projects created:>2023-12-31 status:open -noise remaining words`)

	assert.Equal(t, []string{"exact phrase"}, q.Phrases)
	assert.Equal(t, []string{"work"}, q.Tags)
	assert.Equal(t, []string{"archive"}, q.ExcludedTags)
	assert.Equal(t, []string{"projects"}, q.Paths)
	require.Len(t, q.Dates, 1)
	assert.Equal(t, map[string]string{"status": "open"}, q.Properties)
	assert.Equal(t, []string{"noise"}, q.ExcludedTerms)
	assert.Equal(t, "remaining words", q.Text)
	assert.True(t, q.HasPostFilters())
}

// Every non-whitespace character of the input must be accounted for by
// exactly one extracted token or the residual text: extraction removes,
// it never silently drops.
func TestParse_NoSilentDataLoss(t *testing.T) {
	raw := `"a phrase" #tag -#ex path:p/q created:>2024-01-01 key:val -not residue`
	q := Parse(raw)

	assert.Equal(t, []string{"a phrase"}, q.Phrases)
	assert.Equal(t, []string{"tag"}, q.Tags)
	assert.Equal(t, []string{"ex"}, q.ExcludedTags)
	assert.Equal(t, []string{"p/q"}, q.Paths)
	require.Len(t, q.Dates, 1)
	assert.Equal(t, "val", q.Properties["key"])
	assert.Equal(t, []string{"not"}, q.ExcludedTerms)
	assert.Equal(t, "residue", q.Text)
}
