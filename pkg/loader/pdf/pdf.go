// Package pdf extracts plain text from PDF files.
package pdf

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is the text of a PDF with its page count.
type Document struct {
	Text  string
	Pages int
}

// Load reads the PDF at path and joins the plain text of all pages with a
// single space. Pages without content contribute nothing but are counted.
func Load(path string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	parts := make([]string, 0, total)
	for pageIndex := 1; pageIndex <= total; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			return Document{}, fmt.Errorf("failed to extract text from page %d: %w", pageIndex, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	return Document{Text: strings.Join(parts, " "), Pages: total}, nil
}
