package budget

import (
	"strings"
	"testing"

	"github.com/54b3r/ragcore-go/internal/rag"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
		{strings.Repeat("ü", 8), 2}, // runes, not bytes
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateDocuments(t *testing.T) {
	t.Parallel()
	docs := []rag.Document{
		{ID: "a", Content: "hello world"}, // 4 overhead + 2 content = 6
		{ID: "b", Content: "hello world"},
	}
	if got := EstimateDocuments(docs); got != 12 {
		t.Errorf("EstimateDocuments = %d, want 12", got)
	}
}

func Test_Fit_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	docs := []rag.Document{{ID: "a", Content: "hi"}, {ID: "b", Content: "there"}}
	if got := Fit(docs, 1000); len(got) != 2 {
		t.Errorf("want 2 documents, got %d", len(got))
	}
}

func Test_Fit_DropsLowestRanked(t *testing.T) {
	t.Parallel()
	docs := []rag.Document{
		{ID: "best", Content: strings.Repeat("x", 40)},  // 14
		{ID: "mid", Content: strings.Repeat("x", 40)},   // 14
		{ID: "worst", Content: strings.Repeat("x", 40)}, // 14
	}
	got := Fit(docs, 30)
	if len(got) != 2 || got[0].ID != "best" || got[1].ID != "mid" {
		t.Errorf("want [best mid], got %+v", got)
	}
}

func Test_Fit_FirstDocumentTooLarge(t *testing.T) {
	t.Parallel()
	docs := []rag.Document{{ID: "huge", Content: strings.Repeat("x", 4000)}, {ID: "small", Content: "x"}}
	if got := Fit(docs, 50); len(got) != 0 {
		t.Errorf("want no documents, got %+v", got)
	}
}

func Test_Fit_DisabledBudget(t *testing.T) {
	t.Parallel()
	docs := []rag.Document{{ID: "a", Content: strings.Repeat("x", 4000)}}
	if got := Fit(docs, 0); len(got) != 1 {
		t.Errorf("want budget disabled, got %d documents", len(got))
	}
}
