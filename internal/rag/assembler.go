package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const contextSeparator = "\n\n"

// Assemble joins ranked results into a prompt context. Only chunk text counts
// against maxLength; the similarity tag is overhead. Assembly stops at the
// first result that would overflow, so the output is always a prefix of the
// ranking.
func Assemble(results []SearchResult, maxLength int) string {
	if maxLength <= 0 || len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	used := 0
	for _, r := range results {
		size := utf8.RuneCountInString(r.Text)
		if used+size > maxLength {
			break
		}
		parts = append(parts, fmt.Sprintf("[Similarity: %.2f] %s", r.Similarity, r.Text))
		used += size
	}

	return strings.Join(parts, contextSeparator)
}
