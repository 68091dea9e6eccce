package export

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spherical/barcode-extractor/internal/domain"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	return rows
}

func TestWriteFile_UploadLayoutRoundTrip(t *testing.T) {
	okSrc := domain.Source{Name: "nota.pdf", Path: "/uploads/nota.pdf"}
	badSrc := domain.Source{Name: "broken.pdf", Path: "/uploads/broken.pdf"}
	records := []domain.BarcodeRecord{
		domain.NewBarcodeRecord(okSrc, 1, domain.Barcode{Type: "EAN13", Data: "0123456789012"}),
		domain.NewFileErrorRecord(badSrc, errors.New("pdftoppm failed")),
	}

	path := filepath.Join(t.TempDir(), "output", "barcodes.xlsx")
	require.NoError(t, NewWriter(UploadLayout).WriteFile(path, records))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"PDF File", "Page", "Barcode Type", "Data", "Status"}, rows[0])
	assert.Equal(t, []string{"nota.pdf", "1", "EAN13", "0123456789012", "SUCCESS"}, rows[1])
	assert.Equal(t, []string{"broken.pdf", "ERROR", "ERROR", "pdftoppm failed", "PROCESSING FAILURE"}, rows[2])
}

func TestWriteFile_BatchLayout(t *testing.T) {
	src := domain.Source{Name: "a.pdf", Path: "/data/pdfs/a.pdf"}
	records := []domain.BarcodeRecord{
		domain.NewBarcodeRecord(src, 1, domain.Barcode{Type: "QRCODE", Data: "abc:def"}),
		domain.NewNoBarcodeRecord(src, 2),
		domain.NewPageErrorRecord(src, 3, errors.New("decode failed")),
	}

	path := filepath.Join(t.TempDir(), "barcodes_exec.xlsx")
	require.NoError(t, NewWriter(BatchLayout).WriteFile(path, records))

	rows := readRows(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"PDF File", "Full Path", "Page", "Barcode Type", "Data"}, rows[0])
	assert.Equal(t, []string{"a.pdf", "/data/pdfs/a.pdf", "1", "QRCODE", "abc:def"}, rows[1])
	// trailing empty cells are not returned by GetRows
	assert.Equal(t, []string{"a.pdf", "/data/pdfs/a.pdf", "2"}, rows[2])
	assert.Equal(t, []string{"a.pdf", "/data/pdfs/a.pdf", "3", "ERROR", "decode failed"}, rows[3])
}

func TestWrite_HeaderOnlyWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(UploadLayout).Write(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, UploadLayout.Headers(), rows[0])

	width, err := f.GetColWidth(SheetName, "D")
	require.NoError(t, err)
	assert.Equal(t, 50.0, width)
}

func TestWriteFile_LongErrorKeepsTruncationMarker(t *testing.T) {
	src := domain.Source{Name: "broken.pdf", Path: "/uploads/broken.pdf"}
	stderr := errors.New(strings.Repeat("x", 60000))
	path := filepath.Join(t.TempDir(), "out.xlsx")

	require.NoError(t, NewWriter(UploadLayout).WriteFile(path, []domain.BarcodeRecord{
		domain.NewFileErrorRecord(src, stderr),
	}))

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	data := rows[1][3]
	assert.Len(t, data, domain.MaxMessageLength)
	assert.True(t, strings.HasSuffix(data, "[truncated]"))
}

func TestWriteFile_RejectsUnsupportedExtension(t *testing.T) {
	err := NewWriter(BatchLayout).WriteFile(filepath.Join(t.TempDir(), "barcodes.txt"), nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeExport))
}

func TestTimestampedName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "barcodes_nf-1700000000123-0f8e2c1a.xlsx", TimestampedName(now, "0f8e2c1a-1111-2222-3333-444455556666"))
	assert.Equal(t, "barcodes_nf-1700000000123.xlsx", TimestampedName(now, ""))
}
