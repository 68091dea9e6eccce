package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/barcode-extractor/internal/domain"
	"github.com/spherical/barcode-extractor/internal/observability"
)

// fakeRasterizer produces pages[base name] images, or fails with errs[base name].
type fakeRasterizer struct {
	t     *testing.T
	pages map[string]int
	errs  map[string]error
	dirs  []string
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string) ([]domain.PageImage, error) {
	entries, err := os.ReadDir(outDir)
	require.NoError(f.t, err)
	assert.Empty(f.t, entries, "scratch directory must be empty before rasterizing")
	f.dirs = append(f.dirs, outDir)

	name := filepath.Base(pdfPath)
	if err := f.errs[name]; err != nil {
		return nil, err
	}

	var images []domain.PageImage
	for i := 1; i <= f.pages[name]; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("%s#page-%d.jpg", name, i))
		require.NoError(f.t, os.WriteFile(path, []byte("jpeg"), 0o644))
		images = append(images, domain.PageImage{PageNumber: i, ImagePath: path})
	}
	return images, nil
}

// fakeDecoder answers by "<pdf name>#page-<n>" key.
type fakeDecoder struct {
	results map[string][]domain.Barcode
	errs    map[string]error
	onCall  func(key string)
}

func (f *fakeDecoder) Decode(ctx context.Context, imagePath string) ([]domain.Barcode, error) {
	key := strings.TrimSuffix(filepath.Base(imagePath), ".jpg")
	if f.onCall != nil {
		f.onCall(key)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.results[key], nil
}

type fakePageCounter struct{ n int }

func (f fakePageCounter) PageCount(string) (int, error) { return f.n, nil }

func makeSources(t *testing.T, names ...string) []domain.Source {
	t.Helper()
	dir := t.TempDir()
	var sources []domain.Source
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
		sources = append(sources, domain.Source{Name: name, Path: path})
	}
	return sources
}

func newTestService(t *testing.T, r domain.Rasterizer, d domain.Decoder) (*Service, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "scratch")
	return NewService(r, d, Options{ScratchRoot: root, Logger: observability.Nop()}), root
}

func pagesOf(records []domain.BarcodeRecord) []int {
	var pages []int
	for _, r := range records {
		pages = append(pages, r.Page)
	}
	return pages
}

func TestProcess_PagesInOrderWithPlaceholders(t *testing.T) {
	sources := makeSources(t, "invoice.pdf")
	r := &fakeRasterizer{t: t, pages: map[string]int{"invoice.pdf": 3}}
	d := &fakeDecoder{results: map[string][]domain.Barcode{
		"invoice.pdf#page-1": {{Type: "EAN13", Data: "0123456789012"}},
		"invoice.pdf#page-3": {{Type: "QRCODE", Data: "abc:def"}, {Type: "CODE128", Data: "X1"}},
	}}
	svc, _ := newTestService(t, r, d)

	result, err := svc.Process(context.Background(), sources, nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 4)
	assert.Equal(t, []int{1, 2, 3, 3}, pagesOf(result.Records))

	assert.Equal(t, domain.RecordBarcode, result.Records[0].Kind)
	assert.Equal(t, "EAN13", result.Records[0].Type)

	placeholder := result.Records[1]
	assert.Equal(t, domain.RecordNoBarcode, placeholder.Kind)
	assert.Empty(t, placeholder.Type)
	assert.Empty(t, placeholder.Data)

	assert.Equal(t, "QRCODE", result.Records[2].Type)
	assert.Equal(t, "abc:def", result.Records[2].Data)
	assert.Equal(t, "CODE128", result.Records[3].Type)

	for _, rec := range result.Records {
		assert.Equal(t, "invoice.pdf", rec.SourceFile)
		assert.Equal(t, sources[0].Path, rec.SourcePath)
	}

	assert.Equal(t, domain.RunStats{Files: 1, Pages: 3, Barcodes: 3, Failures: 0}, result.Stats)
	assert.NotEmpty(t, result.RunID)
}

func TestProcess_RasterizationFailureYieldsSingleRecord(t *testing.T) {
	sources := makeSources(t, "broken.pdf")
	r := &fakeRasterizer{t: t, errs: map[string]error{
		"broken.pdf": domain.RasterizationError("failed to rasterize broken.pdf", errors.New("exit status 1")),
	}}
	svc, _ := newTestService(t, r, &fakeDecoder{})

	result, err := svc.Process(context.Background(), sources, nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, domain.RecordFileError, rec.Kind)
	assert.Equal(t, domain.ErrorPage, rec.PageLabel())
	assert.Equal(t, domain.ErrorMarker, rec.Type)
	assert.Contains(t, rec.Data, "exit status 1")
	assert.Equal(t, domain.StatusFailure, rec.Status())
	assert.Equal(t, 1, result.Stats.Failures)
}

func TestProcess_PageDecodeFailureIsIsolated(t *testing.T) {
	sources := makeSources(t, "scan.pdf")
	r := &fakeRasterizer{t: t, pages: map[string]int{"scan.pdf": 3}}
	d := &fakeDecoder{
		results: map[string][]domain.Barcode{
			"scan.pdf#page-1": {{Type: "EAN13", Data: "1"}},
			"scan.pdf#page-3": {{Type: "EAN13", Data: "3"}},
		},
		errs: map[string]error{"scan.pdf#page-2": domain.DecodeError("zbarimg failed", errors.New("exit status 2"))},
	}
	svc, _ := newTestService(t, r, d)

	result, err := svc.Process(context.Background(), sources, nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 3)
	assert.Equal(t, []int{1, 2, 3}, pagesOf(result.Records))
	assert.Equal(t, domain.RecordPageError, result.Records[1].Kind)
	assert.Equal(t, domain.ErrorMarker, result.Records[1].Type)
	assert.Contains(t, result.Records[1].Data, "exit status 2")
	assert.Equal(t, "3", result.Records[2].Data)
	assert.Equal(t, 1, result.Stats.Failures)
}

func TestProcess_MultipleFilesConcatenateInInputOrder(t *testing.T) {
	sources := makeSources(t, "b.pdf", "a.pdf", "c.pdf")
	r := &fakeRasterizer{
		t:     t,
		pages: map[string]int{"b.pdf": 2, "a.pdf": 1},
		errs:  map[string]error{"c.pdf": errors.New("boom")},
	}
	d := &fakeDecoder{results: map[string][]domain.Barcode{
		"b.pdf#page-2": {{Type: "EAN8", Data: "1"}, {Type: "EAN8", Data: "2"}},
		"a.pdf#page-1": {{Type: "EAN13", Data: "3"}},
	}}
	svc, _ := newTestService(t, r, d)

	result, err := svc.Process(context.Background(), sources, nil)
	require.NoError(t, err)

	var files []string
	for _, rec := range result.Records {
		files = append(files, rec.SourceFile)
	}
	// b: placeholder + 2 barcodes, a: 1 barcode, c: 1 error
	assert.Equal(t, []string{"b.pdf", "b.pdf", "b.pdf", "a.pdf", "c.pdf"}, files)
	assert.Equal(t, 3, result.Stats.Files)
	assert.Equal(t, 3, result.Stats.Pages)
}

func TestProcess_NoPagesIsRecorded(t *testing.T) {
	sources := makeSources(t, "empty.pdf")
	svc, _ := newTestService(t, &fakeRasterizer{t: t}, &fakeDecoder{})

	result, err := svc.Process(context.Background(), sources, nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, domain.RecordFileError, result.Records[0].Kind)
	assert.Contains(t, result.Records[0].Data, "no pages were rasterized")
}

func TestProcess_InvalidSourceIsRecorded(t *testing.T) {
	sources := []domain.Source{{Name: "gone.pdf", Path: filepath.Join(t.TempDir(), "gone.pdf")}}
	r := &fakeRasterizer{t: t}
	svc, _ := newTestService(t, r, &fakeDecoder{})

	result, err := svc.Process(context.Background(), sources, nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, domain.RecordFileError, result.Records[0].Kind)
	assert.Contains(t, result.Records[0].Data, "file does not exist")
	assert.Empty(t, r.dirs, "rasterizer must not run for invalid input")
}

func TestProcess_ScratchDirectoryIsRunScopedAndRemoved(t *testing.T) {
	sources := makeSources(t, "a.pdf", "b.pdf")
	r := &fakeRasterizer{t: t, pages: map[string]int{"a.pdf": 2, "b.pdf": 1}}
	svc, root := newTestService(t, r, &fakeDecoder{})

	ctx := observability.ContextWithRunID(context.Background(), "fixed-run")
	result, err := svc.Process(ctx, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed-run", result.RunID)

	require.Len(t, r.dirs, 2)
	assert.Equal(t, filepath.Join(root, "run-fixed-run"), r.dirs[0])
	assert.Equal(t, r.dirs[0], r.dirs[1])

	_, err = os.Stat(r.dirs[0])
	assert.True(t, os.IsNotExist(err), "scratch directory must be removed after the run")
}

func TestProcess_CancellationStopsTheRun(t *testing.T) {
	sources := makeSources(t, "a.pdf", "b.pdf")
	r := &fakeRasterizer{t: t, pages: map[string]int{"a.pdf": 3, "b.pdf": 1}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := &fakeDecoder{onCall: func(key string) {
		if key == "a.pdf#page-2" {
			cancel()
		}
	}}
	svc, _ := newTestService(t, r, d)

	result, err := svc.Process(ctx, sources, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Records)
	assert.Len(t, r.dirs, 1, "second file must not be started")
}

func TestProcess_EmitsEvents(t *testing.T) {
	sources := makeSources(t, "a.pdf")
	r := &fakeRasterizer{t: t, pages: map[string]int{"a.pdf": 2}}
	svc, _ := newTestService(t, r, &fakeDecoder{})

	eventCh := make(chan domain.StreamEvent, 100)
	_, err := svc.Process(context.Background(), sources, eventCh)
	require.NoError(t, err)
	close(eventCh)

	var types []domain.EventType
	for ev := range eventCh {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventStart,
		domain.EventFileProcessing,
		domain.EventPageProcessing,
		domain.EventPageProcessing,
		domain.EventFileComplete,
		domain.EventComplete,
	}, types)
}

func TestProcess_PageCountMismatchDoesNotChangeRecords(t *testing.T) {
	sources := makeSources(t, "a.pdf")
	r := &fakeRasterizer{t: t, pages: map[string]int{"a.pdf": 1}}
	svc := NewService(r, &fakeDecoder{}, Options{
		ScratchRoot: t.TempDir(),
		PageCounter: fakePageCounter{n: 5},
	})

	result, err := svc.Process(context.Background(), sources, nil)
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
}
