// Package main provides the API router setup.
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/barcode-extractor/cmd/barcode-api/handlers"
	"github.com/spherical/barcode-extractor/cmd/barcode-api/middleware"
	"github.com/spherical/barcode-extractor/cmd/barcode-api/web"
	"github.com/spherical/barcode-extractor/internal/observability"
)

// Deps holds what the routes need.
type Deps struct {
	Pipeline handlers.Pipeline
	Recorder handlers.RunRecorder // nil disables history writes
	Runs     handlers.RunReader   // nil disables the /runs endpoints
	Upload   handlers.UploadConfig
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"barcode-extractor"}`))
	})

	uploadHandler := handlers.NewUploadHandler(logger, deps.Pipeline, deps.Recorder, deps.Upload)
	downloadHandler := handlers.NewDownloadHandler(logger, deps.Upload.OutputDir)
	runsHandler := handlers.NewRunsHandler(logger, deps.Runs)

	r.Get("/", web.Index)
	r.Post("/upload-pdfs", uploadHandler.Upload)
	r.Get("/download/{filename}", downloadHandler.Download)

	r.Route("/runs", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))
		r.Get("/", runsHandler.List)
		r.Get("/{runId}", runsHandler.Get)
	})

	return r
}
