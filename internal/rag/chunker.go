package rag

import (
	"fmt"
	"strings"
)

// sentenceSearchRatio is the fraction of a window that must precede a period
// for the chunk to be shortened to end at it.
const sentenceSearchRatio = 0.7

// ValidateChunking rejects parameters that would stall or reverse the window.
func ValidateChunking(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return &ConfigurationError{Field: "chunk_size", Reason: fmt.Sprintf("must be positive, got %d", chunkSize)}
	}
	if overlap < 0 {
		return &ConfigurationError{Field: "chunk_overlap", Reason: fmt.Sprintf("must not be negative, got %d", overlap)}
	}
	if overlap >= chunkSize {
		return &ConfigurationError{Field: "chunk_overlap", Reason: fmt.Sprintf("must be smaller than chunk_size (%d >= %d)", overlap, chunkSize)}
	}
	return nil
}

// ChunkText splits text into overlapping, sentence-aligned chunks of at most
// chunkSize runes. Chunk IDs are "<sourceID>_<index>", so chunking the same
// text twice yields the same chunks.
func ChunkText(sourceID, text string, chunkSize, overlap int) ([]Chunk, error) {
	if err := ValidateChunking(chunkSize, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return []Chunk{}, nil
	}

	chunks := make([]Chunk, 0, n/(chunkSize-overlap)+1)
	start := 0
	for start < n {
		end := start + chunkSize
		if end >= n {
			end = n
		} else if period := lastPeriod(runes[start:end]); float64(period) > float64(chunkSize)*sentenceSearchRatio {
			end = start + period + 1
		}

		chunks = append(chunks, Chunk{
			ChunkID:     fmt.Sprintf("%s_%d", sourceID, len(chunks)),
			SourceID:    sourceID,
			Text:        strings.TrimSpace(string(runes[start:end])),
			StartOffset: start,
			EndOffset:   end,
		})

		if end == n {
			break
		}
		// A shortened window can leave end-overlap at or behind start.
		start = max(end-overlap, start+1)
	}

	return chunks, nil
}

func lastPeriod(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' {
			return i
		}
	}
	return -1
}
