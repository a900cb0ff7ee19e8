package workbook

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"ReportSync/internal/ports"
	"ReportSync/internal/sheet"
)

// Opener opens xlsx workbooks from disk.
type Opener struct {
	logger *slog.Logger
}

var _ ports.WorkbookOpener = (*Opener)(nil)

// NewOpener wires the adapter's logger.
func NewOpener(log *slog.Logger) *Opener {
	return &Opener{logger: log}
}

// Open loads one workbook into memory.
func (o *Opener) Open(path string) (ports.Workbook, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	o.debug("workbook opened", "path", path, "sheets", len(file.GetSheetList()))
	return &Store{file: file, logger: o.logger}, nil
}

func (o *Opener) debug(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

// Store adapts one open excelize workbook to the Workbook port.
type Store struct {
	file   *excelize.File
	logger *slog.Logger
}

var _ ports.Workbook = (*Store)(nil)

// SheetNames lists sheets in workbook order.
func (s *Store) SheetNames() []string {
	return s.file.GetSheetList()
}

// ResolveSheet maps a configured name to a real sheet: exact match first,
// then a normalized match, then a unique partial match.
func (s *Store) ResolveSheet(name string) (string, bool) {
	names := s.file.GetSheetList()
	for _, existing := range names {
		if existing == name {
			return existing, true
		}
	}

	norm := sheet.NormalizeSheetName(name)
	for _, existing := range names {
		if sheet.NormalizeSheetName(existing) == norm {
			return existing, true
		}
	}

	var found string
	var hits int
	for _, existing := range names {
		if strings.Contains(sheet.NormalizeSheetName(existing), norm) {
			found = existing
			hits++
		}
	}
	if hits == 1 {
		return found, true
	}
	return "", false
}

// RowLabels returns the non-empty cells of one column, top to bottom.
func (s *Store) RowLabels(sheetName string, labelCol int) ([]sheet.Label, error) {
	rows, err := s.file.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheetName, err)
	}

	var labels []sheet.Label
	for i, row := range rows {
		if labelCol < 1 || labelCol > len(row) {
			continue
		}
		if text := strings.TrimSpace(row[labelCol-1]); text != "" {
			labels = append(labels, sheet.Label{Row: i + 1, Text: text})
		}
	}
	return labels, nil
}

// HeaderColumn finds the first header cell containing any alias. A positive
// headerRow restricts the search to that row; otherwise the top six rows are
// scanned.
func (s *Store) HeaderColumn(sheetName string, aliases []string, headerRow int) (int, bool) {
	rows, err := s.file.GetRows(sheetName)
	if err != nil {
		return 0, false
	}

	first, last := headerRow, headerRow
	if headerRow < 1 {
		first, last = 1, 6
	}
	if last > len(rows) {
		last = len(rows)
	}

	for row := first; row <= last; row++ {
		for i, cell := range rows[row-1] {
			folded := foldHeader(cell)
			if folded == "" {
				continue
			}
			for _, alias := range aliases {
				if strings.Contains(folded, foldHeader(alias)) {
					return i + 1, true
				}
			}
		}
	}
	return 0, false
}

// NextRow returns the first row index past the used range.
func (s *Store) NextRow(sheetName string) int {
	rows, _ := s.SheetDims(sheetName)
	return rows + 1
}

// SheetDims reports the used range as row and column counts.
func (s *Store) SheetDims(sheetName string) (int, int) {
	rows, err := s.file.GetRows(sheetName)
	if err != nil {
		return 0, 0
	}
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return len(rows), cols
}

// CellValue reads one cell as text; unknown sheets and cells read as empty.
func (s *Store) CellValue(sheetName, cell string) string {
	value, err := s.file.GetCellValue(sheetName, cell)
	if err != nil {
		return ""
	}
	return value
}

// SetCell writes one integer cell.
func (s *Store) SetCell(sheetName, cell string, value int64) error {
	if err := s.file.SetCellValue(sheetName, cell, value); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheetName, cell, err)
	}
	return nil
}

// SetRowLabel writes the label cell of an appended row.
func (s *Store) SetRowLabel(sheetName string, row, col int, label string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("label cell %d,%d: %w", col, row, err)
	}
	if err := s.file.SetCellValue(sheetName, cell, label); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheetName, cell, err)
	}
	return nil
}

// AppendLogRow appends one row to an audit sheet, creating the sheet and its
// header on first use.
func (s *Store) AppendLogRow(sheetName string, header, row []string) error {
	idx, err := s.file.GetSheetIndex(sheetName)
	if err != nil {
		return fmt.Errorf("find sheet %s: %w", sheetName, err)
	}

	next := 1
	if idx < 0 {
		if _, err := s.file.NewSheet(sheetName); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheetName, err)
		}
	} else {
		next = s.NextRow(sheetName)
	}

	if next == 1 {
		if err := s.writeStrings(sheetName, 1, header); err != nil {
			return err
		}
		next = 2
	}
	return s.writeStrings(sheetName, next, row)
}

func (s *Store) writeStrings(sheetName string, row int, values []string) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("log cell %d,%d: %w", i+1, row, err)
		}
		if err := s.file.SetCellValue(sheetName, cell, value); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheetName, cell, err)
		}
	}
	return nil
}

// SaveAs writes the workbook to a temp file beside the target and renames it
// into place. The target directory is created when missing.
func (s *Store) SaveAs(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	pattern := strings.TrimSuffix(filepath.Base(path), ".xlsx") + "-*.xlsx"
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp artifact: %w", err)
	}

	if err := s.file.SaveAs(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize artifact: %w", err)
	}

	s.debug("artifact saved", "path", path)
	return nil
}

// Close releases the open workbook.
func (s *Store) Close() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	return nil
}

func (s *Store) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func foldHeader(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}
