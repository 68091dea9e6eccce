package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/spherical/barcode-extractor/internal/domain"
	"github.com/spherical/barcode-extractor/internal/export"
	"github.com/spherical/barcode-extractor/internal/history"
	"github.com/spherical/barcode-extractor/internal/observability"
	"github.com/spherical/barcode-extractor/internal/scratch"
)

// UploadField is the multipart field carrying the PDFs.
const UploadField = "pdfs"

// in-memory part of a multipart form; larger files spill to disk
const maxMemory = 32 << 20

// Pipeline turns sources into records.
type Pipeline interface {
	Process(ctx context.Context, sources []domain.Source, eventCh chan<- domain.StreamEvent) (*domain.RunResult, error)
}

// RunRecorder stores finished runs.
type RunRecorder interface {
	Record(ctx context.Context, run history.Run) error
}

// UploadConfig configures an UploadHandler.
type UploadConfig struct {
	UploadDir         string
	OutputDir         string
	MaxUploadBytes    int64
	MaxConcurrentRuns int64
}

// UploadHandler handles PDF uploads.
type UploadHandler struct {
	logger   *observability.Logger
	pipeline Pipeline
	recorder RunRecorder // nil when history is disabled
	cfg      UploadConfig
	sem      *semaphore.Weighted
	now      func() time.Time
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(logger *observability.Logger, pipeline Pipeline, recorder RunRecorder, cfg UploadConfig) *UploadHandler {
	if cfg.MaxConcurrentRuns < 1 {
		cfg.MaxConcurrentRuns = 1
	}
	return &UploadHandler{
		logger:   logger.WithOperation("upload"),
		pipeline: pipeline,
		recorder: recorder,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		now:      time.Now,
	}
}

// UploadResponseDTO is the success response of an upload.
type UploadResponseDTO struct {
	Message     string `json:"message"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"downloadUrl"`
	RunID       string `json:"runId"`
	Records     int    `json:"records"`
	Failures    int    `json:"failures"`
}

// Upload handles POST /upload-pdfs.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds the limit of %d bytes.", h.cfg.MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "No PDF files were uploaded.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[UploadField]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No PDF files were uploaded.")
		return
	}

	if err := h.sem.Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Request canceled while waiting for a processing slot.")
		return
	}
	defer h.sem.Release(1)

	runID := scratch.NewRunID()
	ctx := observability.ContextWithRunID(r.Context(), runID)
	logger := h.logger.WithContext(ctx)

	// A run over many PDFs can outlast the server's WriteTimeout. Every tool
	// call is bounded by its own timeout and the run stops when the client
	// goes away, so the response deadline is lifted for this request.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug().Err(err).Msg("Cannot clear the write deadline")
	}

	stagingDir := filepath.Join(h.cfg.UploadDir, runID)
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove uploaded files")
		}
	}()

	sources, err := saveUploads(stagingDir, files)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to store uploaded files")
		writeError(w, http.StatusInternalServerError, "Failed to store the uploaded files.")
		return
	}

	logger.Info().Int("files", len(sources)).Msg("Processing upload")

	result, err := h.pipeline.Process(ctx, sources, nil)
	if err != nil {
		h.record(logger, history.NewRun(history.ModeUpload, withRunID(result, runID), "", err))
		logger.Error().Err(err).Msg("Processing failed")
		writeError(w, http.StatusInternalServerError, "Processing was interrupted.")
		return
	}

	filename := export.TimestampedName(h.now(), runID)
	outputPath := filepath.Join(h.cfg.OutputDir, filename)
	if err := export.NewWriter(export.UploadLayout).WriteFile(outputPath, result.Records); err != nil {
		h.record(logger, history.NewRun(history.ModeUpload, result, "", err))
		logger.Error().Err(err).Str("output", outputPath).Msg("Failed to write spreadsheet")
		writeError(w, http.StatusInternalServerError, "Failed to generate the Excel file.")
		return
	}

	h.record(logger, history.NewRun(history.ModeUpload, result, filename, nil))

	logger.Info().
		Str("output", filename).
		Int("records", len(result.Records)).
		Int("failures", result.Stats.Failures).
		Msg("Upload processed")

	writeJSON(w, http.StatusOK, UploadResponseDTO{
		Message:     "Files processed successfully.",
		Filename:    filename,
		DownloadURL: "/download/" + filename,
		RunID:       runID,
		Records:     len(result.Records),
		Failures:    result.Stats.Failures,
	})
}

func (h *UploadHandler) record(logger *observability.Logger, run history.Run) {
	if h.recorder == nil || run.ID == "" {
		return
	}
	// the request context may be gone by now
	if err := h.recorder.Record(context.Background(), run); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run history")
	}
}

func withRunID(result *domain.RunResult, runID string) *domain.RunResult {
	if result == nil {
		return &domain.RunResult{RunID: runID}
	}
	return result
}

// saveUploads copies every uploaded part into its own directory under dir so
// that two uploads with the same name do not collide. The original file name
// is kept as the source name.
func saveUploads(dir string, files []*multipart.FileHeader) ([]domain.Source, error) {
	sources := make([]domain.Source, 0, len(files))
	for i, fh := range files {
		name := uploadName(fh.Filename, i)
		path := filepath.Join(dir, fmt.Sprintf("%03d", i+1), name)

		if err := saveUpload(fh, path); err != nil {
			return nil, err
		}
		sources = append(sources, domain.Source{Name: name, Path: path})
	}
	return sources, nil
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.IOError("cannot create upload directory", err)
	}

	src, err := fh.Open()
	if err != nil {
		return domain.IOError(fmt.Sprintf("cannot read upload %s", fh.Filename), err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return domain.IOError(fmt.Sprintf("cannot create %s", path), err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return domain.IOError(fmt.Sprintf("cannot write %s", path), err)
	}
	return dst.Close()
}

// uploadName reduces a client supplied file name to a plain base name.
func uploadName(filename string, index int) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == ".." || strings.TrimSpace(name) == "" {
		return fmt.Sprintf("upload-%d.pdf", index+1)
	}
	return name
}
