package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssemble_FormatsAndJoins(t *testing.T) {
	results := []SearchResult{
		{Text: "Supply meets demand.", Similarity: 0.912},
		{Text: "Prices adjust.", Similarity: 0.75},
	}

	got := Assemble(results, 2000)
	assert.Equal(t, "[Similarity: 0.91] Supply meets demand.\n\n[Similarity: 0.75] Prices adjust.", got)
}

func TestAssemble_StopsAtFirstOverflow(t *testing.T) {
	results := []SearchResult{
		{Text: strings.Repeat("a", 10), Similarity: 0.9},
		{Text: strings.Repeat("b", 10), Similarity: 0.8},
		{Text: "c", Similarity: 0.7},
	}

	// The second entry overflows; the third would fit but is not considered.
	got := Assemble(results, 15)
	assert.Equal(t, "[Similarity: 0.90] aaaaaaaaaa", got)
}

func TestAssemble_ExactBudgetFits(t *testing.T) {
	results := []SearchResult{
		{Text: "12345", Similarity: 1},
		{Text: "67890", Similarity: 1},
	}
	got := Assemble(results, 10)
	assert.Contains(t, got, "12345")
	assert.Contains(t, got, "67890")
}

func TestAssemble_EmptyCases(t *testing.T) {
	results := []SearchResult{{Text: "anything", Similarity: 0.99}}

	assert.Equal(t, "", Assemble(results, 0))
	assert.Equal(t, "", Assemble(results, -3))
	assert.Equal(t, "", Assemble(nil, 100))
	assert.Equal(t, "", Assemble(results, 2), "first entry overflows")
}

func TestAssemble_LengthBound(t *testing.T) {
	var results []SearchResult
	for i := 0; i < 20; i++ {
		results = append(results, SearchResult{Text: strings.Repeat("x", 37), Similarity: 0.8})
	}

	const budget = 200
	got := Assemble(results, budget)
	entries := strings.Count(got, "[Similarity:")
	overhead := entries*len("[Similarity: 0.80] ") + (entries-1)*len("\n\n")
	assert.LessOrEqual(t, len(got), budget+overhead)
	assert.Equal(t, budget/37, entries)
}
