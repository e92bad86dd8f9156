package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

var ErrNoExtractableText = errors.New("pdf contains no extractable text")

// ExtractionResult contains the result of PDF text extraction
type ExtractionResult struct {
	Text           string
	Pages          int
	SkippedPages   []int
	ProcessingTime time.Duration
	WordCount      int
}

var (
	multiSpace   = regexp.MustCompile(`[ \t]+`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

// ExtractPDFText reads the plain text of every page. Pages that fail to
// decode are skipped and reported; a document with no text at all is an error.
func ExtractPDFText(ctx context.Context, content []byte) (*ExtractionResult, error) {
	start := time.Now()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	result := &ExtractionResult{Pages: reader.NumPage()}
	var textBuilder strings.Builder

	for i := 1; i <= result.Pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("Failed to extract text from page", "page", i, "error", err)
			result.SkippedPages = append(result.SkippedPages, i)
			continue
		}
		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(text)
	}

	result.Text = cleanExtractedText(textBuilder.String())
	if result.Text == "" {
		return nil, ErrNoExtractableText
	}
	result.WordCount = len(strings.Fields(result.Text))
	result.ProcessingTime = time.Since(start)
	return result, nil
}

func cleanExtractedText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	text = multiSpace.ReplaceAllString(text, " ")
	text = multiNewline.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
