package parser

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"ReportSync/internal/narrative"
)

// HTMLReader parses exported HTML reports. Headings, paragraphs and list
// items become paragraphs unless they sit inside a table; tables are walked
// row by row.
type HTMLReader struct{}

var _ narrative.Reader = (*HTMLReader)(nil)

// NewHTMLReader builds the .html strategy.
func NewHTMLReader() *HTMLReader {
	return &HTMLReader{}
}

// Name identifies the strategy inside the registry.
func (h *HTMLReader) Name() string {
	return "html"
}

// Parse extracts paragraphs and tables in document order.
func (h *HTMLReader) Parse(data []byte) (narrative.Document, error) {
	var doc narrative.Document

	root, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return doc, fmt.Errorf("parse html: %w", err)
	}

	root.Find("h1, h2, h3, h4, h5, h6, p, li").Each(func(_ int, sel *goquery.Selection) {
		if sel.Closest("table").Length() > 0 {
			return
		}
		if text := narrative.NormalizeText(sel.Text()); text != "" {
			doc.Paragraphs = append(doc.Paragraphs, narrative.Paragraph{
				Index: len(doc.Paragraphs) + 1,
				Text:  text,
			})
		}
	})

	root.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		table := narrative.Table{Index: len(doc.Tables) + 1}
		tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			row := narrative.Row{Index: len(table.Rows) + 1}
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				row.Cells = append(row.Cells, narrative.NormalizeText(cell.Text()))
			})
			table.Rows = append(table.Rows, row)
		})
		doc.Tables = append(doc.Tables, table)
	})

	return doc, nil
}
