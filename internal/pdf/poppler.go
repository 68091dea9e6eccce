package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/spherical/barcode-extractor/internal/command"
	"github.com/spherical/barcode-extractor/internal/domain"
	"github.com/spherical/barcode-extractor/internal/observability"
)

const (
	// DefaultPopplerBinary is poppler's PDF to image converter.
	DefaultPopplerBinary = "pdftoppm"

	// DefaultDPI is the rendering resolution for page images.
	DefaultDPI = 300

	// outputPrefix names page images "page-<n>.jpg".
	outputPrefix = "page"
)

var pageImagePattern = regexp.MustCompile(`(?i)^page-(\d+)\.(jpeg|jpg)$`)

// PopplerRasterizer implements domain.Rasterizer with pdftoppm
type PopplerRasterizer struct {
	bin    string
	dpi    int
	runner command.Runner
	logger *observability.Logger
}

// NewPopplerRasterizer creates a rasterizer. Zero values fall back to the defaults.
func NewPopplerRasterizer(bin string, dpi int, runner command.Runner, logger *observability.Logger) *PopplerRasterizer {
	if bin == "" {
		bin = DefaultPopplerBinary
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &PopplerRasterizer{
		bin:    bin,
		dpi:    dpi,
		runner: runner,
		logger: logger.WithOperation("rasterize"),
	}
}

// Args returns the pdftoppm arguments for one PDF.
func (p *PopplerRasterizer) Args(pdfPath, outDir string) []string {
	return []string{"-r", strconv.Itoa(p.dpi), "-jpeg", pdfPath, filepath.Join(outDir, outputPrefix)}
}

// Rasterize renders every page of pdfPath as a JPEG inside outDir.
func (p *PopplerRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string) ([]domain.PageImage, error) {
	if _, err := p.runner.Run(ctx, p.bin, p.Args(pdfPath, outDir)...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.RasterizationError(fmt.Sprintf("failed to rasterize %s", filepath.Base(pdfPath)), err)
	}

	images, err := CollectPageImages(outDir)
	if err != nil {
		return nil, err
	}

	if len(images) == 0 {
		p.logger.WithContext(ctx).Warn().
			Str("file", pdfPath).
			Msg("Rasterizer produced no images; the PDF may be protected or unsupported")
	}
	return images, nil
}

// CollectPageImages lists the page images in dir in numeric page order.
// pdftoppm pads the page token to the width of the page count, so plain
// lexicographic order is not reliable across documents; names are ordered by
// the parsed number instead.
func CollectPageImages(dir string) ([]domain.PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot list scratch directory %s", dir), err)
	}

	type candidate struct {
		name string
		num  int
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pageImagePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, candidate{name: e.Name(), num: n})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].num != found[j].num {
			return found[i].num < found[j].num
		}
		return found[i].name < found[j].name
	})

	images := make([]domain.PageImage, 0, len(found))
	for i, c := range found {
		images = append(images, domain.PageImage{
			PageNumber: i + 1,
			ImagePath:  filepath.Join(dir, c.name),
		})
	}
	return images, nil
}
