// Package export writes barcode records to an Excel workbook.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/spherical/barcode-extractor/internal/domain"
)

// SheetName is the name of the single sheet in every workbook.
const SheetName = "Barcodes"

// Column describes one spreadsheet column
type Column struct {
	Header string
	Width  float64
	Value  func(domain.BarcodeRecord) interface{}
}

// Layout is an ordered column schema
type Layout []Column

var (
	colFile = Column{Header: "PDF File", Width: 30, Value: func(r domain.BarcodeRecord) interface{} { return r.SourceFile }}
	colPath = Column{Header: "Full Path", Width: 60, Value: func(r domain.BarcodeRecord) interface{} { return r.SourcePath }}
	colPage = Column{Header: "Page", Width: 10, Value: pageValue}
	colType = Column{Header: "Barcode Type", Width: 20, Value: func(r domain.BarcodeRecord) interface{} { return r.Type }}
	colData = Column{Header: "Data", Width: 50, Value: func(r domain.BarcodeRecord) interface{} { return r.Data }}
	colStat = Column{Header: "Status", Width: 50, Value: func(r domain.BarcodeRecord) interface{} { return r.Status() }}
)

// BatchLayout is used by the folder scanner.
var BatchLayout = Layout{colFile, colPath, colPage, colType, colData}

// UploadLayout is used by the upload service.
var UploadLayout = Layout{colFile, colPage, colType, colData, colStat}

// Headers returns the header row.
func (l Layout) Headers() []string {
	headers := make([]string, len(l))
	for i, c := range l {
		headers[i] = c.Header
	}
	return headers
}

// pageValue writes real pages as numbers and the file error sentinel as text.
func pageValue(r domain.BarcodeRecord) interface{} {
	if r.Kind == domain.RecordFileError {
		return domain.ErrorPage
	}
	return r.Page
}

// Writer serializes records with a fixed layout
type Writer struct {
	layout Layout
}

// NewWriter creates a writer for the given layout
func NewWriter(layout Layout) *Writer {
	return &Writer{layout: layout}
}

// Build creates the workbook in memory. The caller must Close it.
func (w *Writer) Build(records []domain.BarcodeRecord) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		f.Close()
		return nil, domain.ExportError("failed to name sheet", err)
	}

	if err := w.writeHeader(f); err != nil {
		f.Close()
		return nil, err
	}

	for i, rec := range records {
		row := make([]interface{}, len(w.layout))
		for j, col := range w.layout {
			row[j] = col.Value(rec)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, domain.ExportError("failed to address row", err)
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, domain.ExportError(fmt.Sprintf("failed to write row %d", i+2), err)
		}
	}

	return f, nil
}

func (w *Writer) writeHeader(f *excelize.File) error {
	headers := make([]interface{}, len(w.layout))
	for i, col := range w.layout {
		headers[i] = col.Header

		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return domain.ExportError("failed to address column", err)
		}
		if err := f.SetColWidth(SheetName, name, name, col.Width); err != nil {
			return domain.ExportError(fmt.Sprintf("failed to size column %s", name), err)
		}
	}

	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		return domain.ExportError("failed to write header", err)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return domain.ExportError("failed to create header style", err)
	}
	last, err := excelize.CoordinatesToCellName(len(w.layout), 1)
	if err != nil {
		return domain.ExportError("failed to address header", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return domain.ExportError("failed to style header", err)
	}
	return nil
}

// WriteFile writes the workbook to path, creating the parent directory.
func (w *Writer) WriteFile(path string, records []domain.BarcodeRecord) error {
	f, err := w.Build(records)
	if err != nil {
		return err
	}
	defer f.Close()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.IOError(fmt.Sprintf("cannot create output directory %s", dir), err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return domain.ExportError(fmt.Sprintf("failed to save %s", path), err)
	}
	return nil
}

// Write streams the workbook to out.
func (w *Writer) Write(out io.Writer, records []domain.BarcodeRecord) error {
	f, err := w.Build(records)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(out); err != nil {
		return domain.ExportError("failed to write workbook", err)
	}
	return nil
}

// TimestampedName returns the upload workbook name for a run,
// barcodes_nf-<unix millis>-<first 8 chars of runID>.xlsx.
func TimestampedName(now time.Time, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		return fmt.Sprintf("barcodes_nf-%d.xlsx", now.UnixMilli())
	}
	return fmt.Sprintf("barcodes_nf-%d-%s.xlsx", now.UnixMilli(), short)
}
