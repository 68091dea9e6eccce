// Package extract runs the barcode pipeline: rasterize each PDF, decode each
// page and aggregate the results into ordered records.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical/barcode-extractor/internal/domain"
	"github.com/spherical/barcode-extractor/internal/observability"
	"github.com/spherical/barcode-extractor/internal/pdf"
	"github.com/spherical/barcode-extractor/internal/scratch"
)

// Options configures a Service
type Options struct {
	ScratchRoot string
	PageCounter domain.PageCounter // optional cross-check of the rendered page count
	Logger      *observability.Logger
}

// Service orchestrates the barcode extraction process
type Service struct {
	rasterizer  domain.Rasterizer
	decoder     domain.Decoder
	validator   *pdf.Validator
	pageCounter domain.PageCounter
	scratchRoot string
	logger      *observability.Logger
}

// NewService creates a new extraction service
func NewService(rasterizer domain.Rasterizer, decoder domain.Decoder, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		rasterizer:  rasterizer,
		decoder:     decoder,
		validator:   pdf.NewValidator(logger),
		pageCounter: opts.PageCounter,
		scratchRoot: opts.ScratchRoot,
		logger:      logger.WithOperation("extract"),
	}
}

// Process runs every source through the pipeline, strictly one at a time.
//
// Rasterization and decode failures are turned into records; only context
// cancellation and scratch directory failures end the run early. On
// cancellation the records gathered so far are returned with ctx.Err().
func (s *Service) Process(ctx context.Context, sources []domain.Source, eventCh chan<- domain.StreamEvent) (*domain.RunResult, error) {
	runID := observability.RunIDFromContext(ctx)
	if runID == "" {
		runID = scratch.NewRunID()
		ctx = observability.ContextWithRunID(ctx, runID)
	}
	logger := s.logger.WithContext(ctx)

	result := &domain.RunResult{
		RunID:     runID,
		StartedAt: time.Now(),
	}

	ws, err := scratch.New(s.scratchRoot, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove scratch directory")
		}
	}()

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventStart,
		FileCount: len(sources),
		Payload:   fmt.Sprintf("Processing %d PDF(s)", len(sources)),
		Timestamp: time.Now(),
	})

	logger.Info().Int("files", len(sources)).Msg("Starting barcode extraction")

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			s.emitError(eventCh, err)
			result.Duration = time.Since(result.StartedAt)
			return result, err
		}

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:      domain.EventFileProcessing,
			FileIndex: i + 1,
			FileCount: len(sources),
			FileName:  src.Name,
			Payload:   fmt.Sprintf("[%d/%d] Processing: %s", i+1, len(sources), src.Name),
			Timestamp: time.Now(),
		})

		records, pages := s.processFile(ctx, ws, src, eventCh)
		if err := ctx.Err(); err != nil {
			s.emitError(eventCh, err)
			result.Duration = time.Since(result.StartedAt)
			return result, err
		}

		result.Records = append(result.Records, records...)
		result.Stats.Files++
		result.Stats.Pages += pages
		for _, r := range records {
			switch r.Kind {
			case domain.RecordBarcode:
				result.Stats.Barcodes++
			case domain.RecordPageError, domain.RecordFileError:
				result.Stats.Failures++
			}
		}

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:      domain.EventFileComplete,
			FileIndex: i + 1,
			FileCount: len(sources),
			FileName:  src.Name,
			Payload:   fmt.Sprintf("Completed %s: %d record(s)", src.Name, len(records)),
			Timestamp: time.Now(),
		})
	}

	result.Duration = time.Since(result.StartedAt)

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventComplete,
		FileCount: len(sources),
		Payload: fmt.Sprintf("Extraction complete: %d file(s), %d record(s), %d failure(s) in %v",
			result.Stats.Files, len(result.Records), result.Stats.Failures, result.Duration.Round(time.Millisecond)),
		Timestamp: time.Now(),
	})

	logger.Info().
		Int("files", result.Stats.Files).
		Int("pages", result.Stats.Pages).
		Int("barcodes", result.Stats.Barcodes).
		Int("failures", result.Stats.Failures).
		Dur("duration", result.Duration).
		Msg("Extraction complete")

	return result, nil
}

// processFile turns one PDF into records and reports how many pages it had.
// The workspace is emptied before and after the file.
func (s *Service) processFile(ctx context.Context, ws *scratch.Workspace, src domain.Source, eventCh chan<- domain.StreamEvent) ([]domain.BarcodeRecord, int) {
	logger := s.logger.WithContext(ctx).With().Str("file", src.Name).Logger()

	fail := func(err error) []domain.BarcodeRecord {
		logger.Error().Err(err).Msg("Failed to process PDF")
		s.emitError(eventCh, fmt.Errorf("%s: %w", src.Name, err))
		return []domain.BarcodeRecord{domain.NewFileErrorRecord(src, err)}
	}

	if err := ws.Reset(); err != nil {
		return fail(err), 0
	}
	defer func() {
		if err := ws.Reset(); err != nil {
			logger.Warn().Err(err).Msg("Failed to clear scratch directory")
		}
	}()

	if err := s.validator.ValidatePDFPath(src.Path); err != nil {
		return fail(err), 0
	}

	logger.Info().Str("path", src.Path).Msg("Rasterizing PDF")
	images, err := s.rasterizer.Rasterize(ctx, src.Path, ws.Dir())
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0
		}
		return fail(err), 0
	}

	s.checkPageCount(logger, src, len(images))

	if len(images) == 0 {
		return fail(domain.RasterizationError("no pages were rasterized", nil)), 0
	}

	records := make([]domain.BarcodeRecord, 0, len(images))
	for _, img := range images {
		if ctx.Err() != nil {
			return records, img.PageNumber - 1
		}

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:       domain.EventPageProcessing,
			FileName:   src.Name,
			PageNumber: img.PageNumber,
			Payload:    fmt.Sprintf("Reading page %d", img.PageNumber),
			Timestamp:  time.Now(),
		})

		barcodes, err := s.decoder.Decode(ctx, img.ImagePath)
		if err != nil {
			if ctx.Err() != nil {
				return records, img.PageNumber - 1
			}
			logger.Error().Err(err).Int("page", img.PageNumber).Msg("Failed to decode page")
			s.emitError(eventCh, fmt.Errorf("%s page %d: %w", src.Name, img.PageNumber, err))
			records = append(records, domain.NewPageErrorRecord(src, img.PageNumber, err))
			continue
		}

		if len(barcodes) == 0 {
			records = append(records, domain.NewNoBarcodeRecord(src, img.PageNumber))
			continue
		}
		for _, bc := range barcodes {
			records = append(records, domain.NewBarcodeRecord(src, img.PageNumber, bc))
		}
	}

	logger.Info().Int("pages", len(images)).Int("records", len(records)).Msg("Processed PDF")
	return records, len(images)
}

// checkPageCount warns when the rasterizer produced a different number of
// images than the document declares.
func (s *Service) checkPageCount(logger *observability.Logger, src domain.Source, rendered int) {
	if s.pageCounter == nil {
		return
	}
	declared, err := s.pageCounter.PageCount(src.Path)
	if err != nil {
		logger.Debug().Err(err).Msg("Could not read declared page count")
		return
	}
	if declared != rendered {
		logger.Warn().
			Int("declared_pages", declared).
			Int("rendered_pages", rendered).
			Msg("Rendered page count differs from the document's page count")
	}
}

// emitEvent sends an event without blocking the pipeline
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
}

// emitError emits an error event
func (s *Service) emitError(eventCh chan<- domain.StreamEvent, err error) {
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventError,
		Payload:   err.Error(),
		Timestamp: time.Now(),
	})
}
