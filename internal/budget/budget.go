// Package budget provides token budget estimation for retrieved context.
// Callers that hand retrieval results to a language model cap the amount of
// text with a token budget. Because embedding and chat backends use
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose and code).
package budget

import (
	"unicode/utf8"

	"github.com/54b3r/ragcore-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// perDocumentOverhead approximates the separator and citation tokens a
	// caller wraps around each document.
	perDocumentOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
// Characters are counted as runes so multi-byte text is not overcounted.
func Estimate(s string) int {
	chars := utf8.RuneCountInString(s)
	n := chars / charsPerToken
	if n == 0 && chars > 0 {
		return 1
	}
	return n
}

// EstimateDocument returns the estimated token cost of one retrieved
// document, including the per-document overhead.
func EstimateDocument(d rag.Document) int {
	return perDocumentOverhead + Estimate(d.Content)
}

// EstimateDocuments sums EstimateDocument over docs.
func EstimateDocuments(docs []rag.Document) int {
	total := 0
	for _, d := range docs {
		total += EstimateDocument(d)
	}
	return total
}

// Fit returns the longest best-first prefix of docs whose estimated total
// fits within maxTokens. Lower-ranked documents are dropped first; the input
// order is the ranking. A non-positive maxTokens disables the budget.
func Fit(docs []rag.Document, maxTokens int) []rag.Document {
	if maxTokens <= 0 {
		return docs
	}
	used := 0
	for i, d := range docs {
		used += EstimateDocument(d)
		if used > maxTokens {
			return docs[:i]
		}
	}
	return docs
}
