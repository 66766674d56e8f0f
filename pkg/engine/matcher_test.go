package engine

import (
	"reflect"
	"testing"
)

var testExpected = ExpectedVariant{
	ID:             "10839.314.016K3",
	Suffix:         "K3",
	PackageContent: "5",
	MultipleQty:    10,
}

func TestChooseBestCandidateExactID(t *testing.T) {
	captions := []string{"Codice", "Contenuto", "Multiplo"}
	rows := [][]string{
		{"10839.314.016K1", "1,00", "1"},
		{"10839.314.016K3", "5,00", "10"},
	}

	match, ok := ChooseBestCandidate(captions, rows, testExpected)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.RowIndex != 1 {
		t.Errorf("expected row 1, got %d", match.RowIndex)
	}
	if match.Reason != ReasonExactID {
		t.Errorf("expected reason %s, got %s", ReasonExactID, match.Reason)
	}
	if match.LowConfidence {
		t.Error("exact id match must not be low confidence")
	}
}

func TestChooseBestCandidateSuffixAndContent(t *testing.T) {
	// The grid truncates the id to the bare suffix.
	captions := []string{"Variante", "Contenuto"}
	rows := [][]string{
		{"K1", "1,00"},
		{"K3", "5,00"},
	}

	match, ok := ChooseBestCandidate(captions, rows, testExpected)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.RowIndex != 1 || match.Reason != ReasonSuffixContent {
		t.Errorf("expected row 1 via %s, got row %d via %s", ReasonSuffixContent, match.RowIndex, match.Reason)
	}
	if match.LowConfidence {
		t.Error("suffix+content match must not be low confidence")
	}
}

func TestChooseBestCandidateContentOnlyIsLowConfidence(t *testing.T) {
	captions := []string{"Variante", "Contenuto"}
	rows := [][]string{
		{"XX", "1,00"},
		{"YY", "5,00"},
	}

	match, ok := ChooseBestCandidate(captions, rows, testExpected)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.RowIndex != 1 || match.Reason != ReasonContent {
		t.Errorf("expected row 1 via %s, got row %d via %s", ReasonContent, match.RowIndex, match.Reason)
	}
	if !match.LowConfidence {
		t.Error("content-only match must be low confidence")
	}
}

func TestChooseBestCandidateMultipleColumn(t *testing.T) {
	captions := []string{"Variante", "Multiplo"}
	rows := [][]string{
		{"XX", "1"},
		{"YY", "10"},
	}

	match, ok := ChooseBestCandidate(captions, rows, testExpected)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.RowIndex != 1 || match.Reason != ReasonMultiple {
		t.Errorf("expected row 1 via %s, got row %d via %s", ReasonMultiple, match.RowIndex, match.Reason)
	}
}

func TestChooseBestCandidateSuffixAdjacency(t *testing.T) {
	// No recognizable captions; the value next to the suffix cell is the
	// only signal left.
	captions := []string{"", "", ""}
	rows := [][]string{
		{"K1", "1,00", "x"},
		{"K3", "5,00", "x"},
	}

	match, ok := ChooseBestCandidate(captions, rows, testExpected)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.RowIndex != 1 || match.Reason != ReasonAdjacency {
		t.Errorf("expected row 1 via %s, got row %d via %s", ReasonAdjacency, match.RowIndex, match.Reason)
	}
	if !match.LowConfidence {
		t.Error("adjacency match must be low confidence")
	}
}

func TestChooseBestCandidateSingleRowFallback(t *testing.T) {
	captions := []string{"Codice"}
	rows := [][]string{{"something-unrelated"}}

	match, ok := ChooseBestCandidate(captions, rows, testExpected)
	if !ok {
		t.Fatal("expected the single row to be accepted")
	}
	if match.RowIndex != 0 || match.Reason != ReasonSingleRow {
		t.Errorf("expected row 0 via %s, got row %d via %s", ReasonSingleRow, match.RowIndex, match.Reason)
	}
	if !match.LowConfidence {
		t.Error("single-row fallback must be low confidence")
	}
}

func TestChooseBestCandidateNoMatchOnMultiRowPage(t *testing.T) {
	captions := []string{"Codice"}
	rows := [][]string{{"aaa"}, {"bbb"}}

	if _, ok := ChooseBestCandidate(captions, rows, testExpected); ok {
		t.Fatal("expected no match; pagination is the caller's decision")
	}
}

func TestChooseBestCandidateDeterministic(t *testing.T) {
	captions := []string{"Codice", "Contenuto"}
	rows := [][]string{
		{"K3", "5,00"},
		{"10839.314.016K3", "5,00"},
	}

	first, ok := ChooseBestCandidate(captions, rows, testExpected)
	if !ok {
		t.Fatal("expected a match")
	}
	for i := 0; i < 50; i++ {
		again, ok := ChooseBestCandidate(captions, rows, testExpected)
		if !ok || !reflect.DeepEqual(first, again) {
			t.Fatalf("matcher not deterministic: %+v vs %+v", first, again)
		}
	}
	if first.Reason != ReasonExactID {
		t.Errorf("exact id must outrank suffix+content, got %s", first.Reason)
	}
}

func TestNumericEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"5,00", "5", true},
		{"1.000", "1000", true},
		{"5,50", "5.5", false}, // thousands-separator convention strips the dot
		{"K3", "K3", true},
		{"k3", "K3", true},
		{"", "5", false},
		{"5", "", false},
	}
	for _, tt := range tests {
		if got := numericEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("numericEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
