package ports

import (
	"context"

	"ReportSync/internal/narrative"
	"ReportSync/internal/sheet"
)

// NarrativeSource loads and parses a narrative report from disk.
type NarrativeSource interface {
	Load(ctx context.Context, path string) (narrative.Document, error)
}

// WorkbookOpener opens spreadsheet files for reading and updating.
type WorkbookOpener interface {
	Open(path string) (Workbook, error)
}

// Workbook is one open spreadsheet. Cell addresses are A1-style strings.
type Workbook interface {
	// SheetNames lists sheets in workbook order.
	SheetNames() []string

	// ResolveSheet maps a configured sheet name to the real one, tolerating
	// case and spacing differences. ok is false when nothing matches.
	ResolveSheet(name string) (string, bool)

	// RowLabels returns the non-empty cells of one column, top to bottom.
	RowLabels(sheetName string, labelCol int) ([]sheet.Label, error)

	// HeaderColumn finds the first header cell matching any alias. A
	// headerRow below 1 means the top rows are scanned instead.
	HeaderColumn(sheetName string, aliases []string, headerRow int) (int, bool)

	// NextRow returns the first row index past the used range of the sheet.
	NextRow(sheetName string) int

	// SheetDims reports the used range of one sheet as row and column counts.
	SheetDims(sheetName string) (rows, cols int)

	CellValue(sheetName, cell string) string
	SetCell(sheetName, cell string, value int64) error
	SetRowLabel(sheetName string, row, col int, label string) error

	// AppendLogRow appends one row to an audit sheet, creating the sheet
	// and its header row on first use.
	AppendLogRow(sheetName string, header, row []string) error

	SaveAs(path string) error
	Close() error
}
