package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Parser extrahiert Text aus PDF-Dokumenten als Analyse-Eingabe
type Parser struct {
	maxChars int
}

// NewParser erstellt einen Parser, der höchstens maxChars Zeichen liefert (0 = unbegrenzt)
func NewParser(maxChars int) *Parser {
	return &Parser{maxChars: maxChars}
}

// Document ist der extrahierte Text eines PDFs
type Document struct {
	Text      string
	PageCount int
	Truncated bool
}

// Parse liest ein PDF aus data und liefert seinen Klartext
func (p *Parser) Parse(data []byte) (*Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("fehler beim Lesen der PDF: %w", err)
	}

	var content strings.Builder
	totalPages := r.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n")
		}
		content.WriteString(strings.TrimSpace(text))
	}

	text, truncated := LimitText(content.String(), p.maxChars)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("PDF enthält keinen extrahierbaren Text")
	}
	return &Document{Text: text, PageCount: totalPages, Truncated: truncated}, nil
}

// LimitText kürzt text auf maxChars Zeichen, bevorzugt an einer Satz- oder Wortgrenze.
// Gezählt und geschnitten wird in Runen, damit mehrbytige Zeichen erhalten bleiben.
func LimitText(text string, maxChars int) (string, bool) {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text, false
	}
	cut := runes[:maxChars]
	for i := len(cut) - 1; i > len(cut)/2; i-- {
		if strings.ContainsRune(".!?。！？\n", cut[i]) {
			return string(cut[:i+1]), true
		}
	}
	for i := len(cut) - 1; i > 0; i-- {
		if cut[i] == ' ' {
			return string(cut[:i]), true
		}
	}
	return string(cut), true
}
