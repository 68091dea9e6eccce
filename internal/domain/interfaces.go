package domain

import "context"

// Rasterizer turns a PDF into one image per page
type Rasterizer interface {
	// Rasterize writes page images for pdfPath into outDir, which must exist
	// and be empty, and returns them in page order.
	Rasterize(ctx context.Context, pdfPath, outDir string) ([]PageImage, error)
}

// Decoder reads barcodes from a single page image
type Decoder interface {
	// Decode returns the barcodes found on the image in reader output order.
	// An image without barcodes yields an empty slice and a nil error.
	Decode(ctx context.Context, imagePath string) ([]Barcode, error)
}

// PageCounter reports the number of pages a PDF declares
type PageCounter interface {
	PageCount(pdfPath string) (int, error)
}
