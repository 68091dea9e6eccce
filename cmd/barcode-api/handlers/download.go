package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/barcode-extractor/internal/observability"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DownloadHandler serves generated spreadsheets from the output directory.
type DownloadHandler struct {
	logger    *observability.Logger
	outputDir string
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(logger *observability.Logger, outputDir string) *DownloadHandler {
	return &DownloadHandler{
		logger:    logger.WithOperation("download"),
		outputDir: outputDir,
	}
}

// Download handles GET /download/{filename}.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !isPlainName(name) {
		writeError(w, http.StatusNotFound, "File not found.")
		return
	}

	path := filepath.Join(h.outputDir, name)
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found.")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "File not found.")
		return
	}

	h.logger.WithContext(r.Context()).Debug().Str("file", name).Msg("Serving spreadsheet")

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// isPlainName accepts a single path element only.
func isPlainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}
