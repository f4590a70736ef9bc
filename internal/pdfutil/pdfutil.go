// Package pdfutil extracts a plain-text excerpt from PDF deliverables. The
// excerpt enriches the captioner prompt; extraction failures are advisory
// and callers simply proceed without the excerpt.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractSnippet returns up to maxRunes of text from the document, reading
// pages until the budget is spent.
func ExtractSnippet(data []byte, maxRunes int) (string, error) {
	if maxRunes <= 0 {
		maxRunes = 500
	}
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
		if builder.Len() >= maxRunes*4 { // rough byte budget before trimming
			break
		}
	}
	text := strings.Join(strings.Fields(builder.String()), " ")
	runes := []rune(text)
	if len(runes) > maxRunes {
		runes = runes[:maxRunes]
	}
	return string(runes), nil
}

// IsPDF reports whether the filename looks like a PDF deliverable.
func IsPDF(fileName string) bool {
	return strings.EqualFold(strings.TrimPrefix(extOf(fileName), "."), "pdf")
}

func extOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx == -1 {
		return ""
	}
	return name[idx:]
}
