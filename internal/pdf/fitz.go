package pdf

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/barcode-extractor/internal/domain"
	"github.com/spherical/barcode-extractor/internal/observability"
)

const defaultJPEGQuality = 90

// FitzRasterizer implements domain.Rasterizer in-process with MuPDF
type FitzRasterizer struct {
	dpi     int
	quality int
	logger  *observability.Logger
}

// NewFitzRasterizer creates an in-process rasterizer
func NewFitzRasterizer(dpi int, logger *observability.Logger) *FitzRasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &FitzRasterizer{
		dpi:     dpi,
		quality: defaultJPEGQuality,
		logger:  logger.WithOperation("rasterize"),
	}
}

// Rasterize renders every page of pdfPath as page-<n>.jpg inside outDir
func (f *FitzRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string) ([]domain.PageImage, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.RasterizationError(fmt.Sprintf("failed to open %s", filepath.Base(pdfPath)), err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	images := make([]domain.PageImage, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(pageNum, float64(f.dpi))
		if err != nil {
			return nil, domain.RasterizationError(fmt.Sprintf("failed to render page %d", pageNum+1), err)
		}

		outputPath := filepath.Join(outDir, fmt.Sprintf("%s-%d.jpg", outputPrefix, pageNum+1))
		outputFile, err := os.Create(outputPath)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("failed to create output file for page %d", pageNum+1), err)
		}

		err = jpeg.Encode(outputFile, img, &jpeg.Options{Quality: f.quality})
		closeErr := outputFile.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, domain.RasterizationError(fmt.Sprintf("failed to encode page %d as JPG", pageNum+1), err)
		}

		images = append(images, domain.PageImage{
			PageNumber: pageNum + 1,
			ImagePath:  outputPath,
		})
	}

	if len(images) == 0 {
		f.logger.WithContext(ctx).Warn().Str("file", pdfPath).Msg("PDF has no pages")
	}
	return images, nil
}
