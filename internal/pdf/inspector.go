package pdf

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Inspector reads PDF structure with pdfcpu, without rendering anything
type Inspector struct{}

// NewInspector creates an inspector. pdfcpu's on-disk configuration
// directory is disabled so inspection never writes to the user's home.
func NewInspector() *Inspector {
	api.DisableConfigDir()
	return &Inspector{}
}

// PageCount returns the number of pages the PDF declares.
func (i *Inspector) PageCount(pdfPath string) (int, error) {
	return api.PageCountFile(pdfPath)
}
