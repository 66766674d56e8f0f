package engine

import (
	"strconv"
	"strings"
)

// MatchReason names the rule that selected a candidate row, in strict
// priority order.
type MatchReason string

const (
	ReasonExactID       MatchReason = "exact_id"
	ReasonSuffixContent MatchReason = "suffix_and_content"
	ReasonContent       MatchReason = "content"
	ReasonMultiple      MatchReason = "multiple"
	ReasonAdjacency     MatchReason = "suffix_adjacency"
	ReasonSingleRow     MatchReason = "single_row"
)

// ExpectedVariant is what the matcher looks for in a result snapshot.
type ExpectedVariant struct {
	// ID is the full variant identifier.
	ID string

	// Suffix is the variant tail as the remote grid truncates it.
	Suffix string

	// PackageContent is the expected package content, textual as rendered.
	PackageContent string

	// MultipleQty is the expected order multiple.
	MultipleQty int

	// Name is the article name, carried for diagnostics only.
	Name string
}

// ExpectedFromVariant derives the matcher input from a catalog descriptor.
func ExpectedFromVariant(v *VariantDescriptor) ExpectedVariant {
	return ExpectedVariant{
		ID:             v.ID,
		Suffix:         v.Suffix,
		PackageContent: v.PackageContent,
		MultipleQty:    v.MultipleQty,
		Name:           v.Name,
	}
}

// CandidateMatch is the matcher's verdict for one snapshot page.
type CandidateMatch struct {
	// RowIndex is the chosen row's index within the snapshot.
	RowIndex int

	// Reason names the rule that matched.
	Reason MatchReason

	// LowConfidence is set for any reason weaker than an exact id or a
	// suffix-plus-content match: truncated suffixes can collide across
	// distinct variants, so the caller should log the selection.
	LowConfidence bool
}

// CandidateRow is one snapshot row under consideration, with its derived
// match flags. Ephemeral; it exists only during one matching pass.
type CandidateRow struct {
	Index int
	Cells []string

	ExactID        bool
	Suffix         bool
	Content        bool
	Multiple       bool
	SuffixAdjacent bool
}

// Column roles recognized in header captions. Matching is
// case-insensitive substring matching; unmapped captions are ignored.
var (
	contentCaptions  = []string{"contenuto", "content", "conf", "package"}
	multipleCaptions = []string{"multipl"}
)

// ChooseBestCandidate scores one page of a rendered result table against
// the expected variant and selects a row by strict priority:
// exact-id > suffix+content > content > multiple > suffix-adjacency >
// single-row fallback. It is deterministic and side-effect-free:
// identical inputs always yield identical output. ok is false when no
// rule selects a row on this page; pagination is the caller's concern.
func ChooseBestCandidate(captions []string, rows [][]string, expected ExpectedVariant) (CandidateMatch, bool) {
	contentCol, multipleCol := mapColumns(captions)

	candidates := make([]CandidateRow, len(rows))
	for i, cells := range rows {
		candidates[i] = scoreRow(i, cells, contentCol, multipleCol, expected)
	}

	if idx, ok := firstWhere(candidates, func(c CandidateRow) bool { return c.ExactID }); ok {
		return CandidateMatch{RowIndex: idx, Reason: ReasonExactID}, true
	}
	if idx, ok := firstWhere(candidates, func(c CandidateRow) bool { return c.Suffix && c.Content }); ok {
		return CandidateMatch{RowIndex: idx, Reason: ReasonSuffixContent}, true
	}
	if idx, ok := firstWhere(candidates, func(c CandidateRow) bool { return c.Content }); ok {
		return CandidateMatch{RowIndex: idx, Reason: ReasonContent, LowConfidence: true}, true
	}
	if idx, ok := firstWhere(candidates, func(c CandidateRow) bool { return c.Multiple }); ok {
		return CandidateMatch{RowIndex: idx, Reason: ReasonMultiple, LowConfidence: true}, true
	}
	if idx, ok := firstWhere(candidates, func(c CandidateRow) bool { return c.SuffixAdjacent }); ok {
		return CandidateMatch{RowIndex: idx, Reason: ReasonAdjacency, LowConfidence: true}, true
	}
	if len(rows) == 1 {
		// A one-row result set is accepted regardless of attribute match:
		// the remote search already filtered by the typed query.
		return CandidateMatch{RowIndex: 0, Reason: ReasonSingleRow, LowConfidence: true}, true
	}
	return CandidateMatch{}, false
}

// mapColumns maps header captions to semantic column roles. -1 means the
// role was not found.
func mapColumns(captions []string) (contentCol, multipleCol int) {
	contentCol, multipleCol = -1, -1
	for i, caption := range captions {
		lower := strings.ToLower(caption)
		if contentCol < 0 && captionMatches(lower, contentCaptions) {
			contentCol = i
			continue
		}
		if multipleCol < 0 && captionMatches(lower, multipleCaptions) {
			multipleCol = i
		}
	}
	return contentCol, multipleCol
}

func captionMatches(lower string, vocabulary []string) bool {
	for _, v := range vocabulary {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

func scoreRow(index int, cells []string, contentCol, multipleCol int, expected ExpectedVariant) CandidateRow {
	c := CandidateRow{Index: index, Cells: cells}

	for i, cell := range cells {
		trimmed := strings.TrimSpace(cell)
		if expected.ID != "" && strings.EqualFold(trimmed, expected.ID) {
			c.ExactID = true
		}
		if expected.Suffix != "" && strings.EqualFold(trimmed, expected.Suffix) {
			c.Suffix = true
			if i+1 < len(cells) && adjacentValueMatches(cells[i+1], expected) {
				c.SuffixAdjacent = true
			}
		}
	}

	if contentCol >= 0 && contentCol < len(cells) {
		c.Content = numericEqual(cells[contentCol], expected.PackageContent)
	}
	if multipleCol >= 0 && multipleCol < len(cells) {
		c.Multiple = numericEqual(cells[multipleCol], strconv.Itoa(expected.MultipleQty))
	}

	return c
}

// adjacentValueMatches reports whether the cell immediately after a
// suffix cell equals one of the expected values. Grids that truncate the
// id render suffix and content side by side, so adjacency is a usable,
// if weak, signal.
func adjacentValueMatches(cell string, expected ExpectedVariant) bool {
	if expected.PackageContent != "" && numericEqual(cell, expected.PackageContent) {
		return true
	}
	return expected.MultipleQty > 0 && numericEqual(cell, strconv.Itoa(expected.MultipleQty))
}

// numericEqual compares two cells numerically when both parse, falling
// back to trimmed string equality. The remote grid renders "5,00" where
// the catalog stores "5".
func numericEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	fa, errA := parseCellNumber(a)
	fb, errB := parseCellNumber(b)
	if errA == nil && errB == nil {
		return fa == fb
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func parseCellNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return strconv.ParseFloat(s, 64)
}

func firstWhere(candidates []CandidateRow, pred func(CandidateRow) bool) (int, bool) {
	for _, c := range candidates {
		if pred(c) {
			return c.Index, true
		}
	}
	return 0, false
}
