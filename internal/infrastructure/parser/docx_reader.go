package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"ReportSync/internal/narrative"
)

const documentEntry = "word/document.xml"

// DocxReader parses the WordprocessingML body of a .docx archive into plain
// paragraphs and tables. Element names are matched without their namespace
// prefix, so both w: and stripped documents decode the same way.
type DocxReader struct{}

var _ narrative.Reader = (*DocxReader)(nil)

// NewDocxReader builds the .docx strategy.
func NewDocxReader() *DocxReader {
	return &DocxReader{}
}

// Name identifies the strategy inside the registry.
func (d *DocxReader) Name() string {
	return "docx"
}

// Parse unpacks the archive and walks the document body. Text inside tables
// is reported through table rows only, never duplicated as paragraphs.
func (d *DocxReader) Parse(data []byte) (narrative.Document, error) {
	var doc narrative.Document

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return doc, fmt.Errorf("open docx archive: %w", err)
	}

	entry, err := findEntry(archive, documentEntry)
	if err != nil {
		return doc, err
	}

	rc, err := entry.Open()
	if err != nil {
		return doc, fmt.Errorf("open %s: %w", documentEntry, err)
	}
	defer rc.Close()

	return readBody(rc)
}

func findEntry(archive *zip.Reader, name string) (*zip.File, error) {
	for _, file := range archive.File {
		if file.Name == name {
			return file, nil
		}
	}
	return nil, fmt.Errorf("docx archive has no %s", name)
}

func readBody(r io.Reader) (narrative.Document, error) {
	var doc narrative.Document
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return doc, fmt.Errorf("decode %s: %w", documentEntry, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "tbl":
			table, err := readTable(dec, len(doc.Tables)+1)
			if err != nil {
				return doc, err
			}
			doc.Tables = append(doc.Tables, table)
		case "p":
			raw, err := readParagraph(dec)
			if err != nil {
				return doc, err
			}
			if text := narrative.NormalizeText(raw); text != "" {
				doc.Paragraphs = append(doc.Paragraphs, narrative.Paragraph{
					Index: len(doc.Paragraphs) + 1,
					Text:  text,
				})
			}
		}
	}

	return doc, nil
}

// readParagraph consumes one w:p subtree. Only w:t runs contribute text;
// breaks and tabs turn into spaces.
func readParagraph(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	inText := false

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("decode paragraph: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				depth++
			case "t":
				inText = true
			case "br", "cr", "tab":
				sb.WriteByte(' ')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "p":
				depth--
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}

	return sb.String(), nil
}

func readTable(dec *xml.Decoder, index int) (narrative.Table, error) {
	table := narrative.Table{Index: index}

	for {
		tok, err := dec.Token()
		if err != nil {
			return table, fmt.Errorf("decode table %d: %w", index, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "tr" {
				row, err := readRow(dec, table.Index, len(table.Rows)+1)
				if err != nil {
					return table, err
				}
				table.Rows = append(table.Rows, row)
			}
		case xml.EndElement:
			if el.Name.Local == "tbl" {
				return table, nil
			}
		}
	}
}

func readRow(dec *xml.Decoder, table, index int) (narrative.Row, error) {
	row := narrative.Row{Index: index}

	for {
		tok, err := dec.Token()
		if err != nil {
			return row, fmt.Errorf("decode table %d row %d: %w", table, index, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "tc" {
				cell, err := readCell(dec)
				if err != nil {
					return row, err
				}
				row.Cells = append(row.Cells, narrative.NormalizeText(cell))
			}
		case xml.EndElement:
			if el.Name.Local == "tr" {
				return row, nil
			}
		}
	}
}

// readCell consumes one w:tc subtree, joining its paragraphs with spaces.
// Cells holding nested tables flatten to their combined text.
func readCell(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	inText := false

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("decode cell: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "tc":
				depth++
			case "t":
				inText = true
			case "br", "cr", "tab":
				sb.WriteByte(' ')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "tc":
				depth--
			case "t":
				inText = false
			case "p":
				sb.WriteByte(' ')
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}

	return sb.String(), nil
}
