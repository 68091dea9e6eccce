package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spherical/barcode-extractor/cmd/barcode-extractor/ui"
	"github.com/spherical/barcode-extractor/internal/app"
	"github.com/spherical/barcode-extractor/internal/command"
	"github.com/spherical/barcode-extractor/internal/config"
	"github.com/spherical/barcode-extractor/internal/domain"
	"github.com/spherical/barcode-extractor/internal/export"
	"github.com/spherical/barcode-extractor/internal/history"
	"github.com/spherical/barcode-extractor/internal/observability"
	"github.com/spherical/barcode-extractor/internal/pdf"
)

// batchSummary describes a finished batch run. A nil summary with a nil
// error means there was nothing to process.
type batchSummary struct {
	RunID      string
	OutputPath string
	Files      int
	Rows       int
	Failures   int
}

// runBatch scans the input folder, runs the pipeline over every PDF found and
// writes the batch spreadsheet. A nil runner uses the real programs.
func runBatch(ctx context.Context, cfg *config.Config, runner command.Runner, u *ui.UI, logger *observability.Logger) (*batchSummary, error) {
	inputAbs, err := filepath.Abs(cfg.Paths.InputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve input folder: %w", err)
	}

	sources, err := pdf.Discover(inputAbs)
	switch {
	case errors.Is(err, domain.ErrInputDirCreated):
		u.Warning("Input folder not found, created %s", inputAbs)
		u.Info("Put your PDF files in it and run again.")
		return nil, nil
	case errors.Is(err, domain.ErrNoPDFs):
		u.Info("No PDF files found in %s (searched recursively).", inputAbs)
		return nil, nil
	case err != nil:
		return nil, err
	}

	u.Info("Found %d PDF file(s) in %s", len(sources), inputAbs)

	if runner == nil {
		if err := app.MissingTools(app.CheckTools(cfg)); err != nil {
			return nil, err
		}
	}

	components, err := app.Build(cfg, runner, logger)
	if err != nil {
		return nil, err
	}

	store := app.OpenHistory(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
	}

	eventCh := make(chan domain.StreamEvent, 100)
	type outcome struct {
		result *domain.RunResult
		err    error
	}
	doneCh := make(chan outcome, 1)
	go func() {
		result, err := components.Service.Process(ctx, sources, eventCh)
		close(eventCh)
		doneCh <- outcome{result, err}
	}()

	u.Track(eventCh, len(sources))
	out := <-doneCh

	outputAbs, err := filepath.Abs(cfg.Paths.BatchOutput)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}

	if out.err != nil {
		recordRun(store, history.NewRun(history.ModeBatch, out.result, "", out.err), logger)
		if errors.Is(out.err, context.Canceled) {
			u.Warning("Interrupted, no spreadsheet was written.")
		}
		return nil, out.err
	}

	spin := u.NewSpinner("Writing spreadsheet...")
	spin.Start()
	err = export.NewWriter(export.BatchLayout).WriteFile(outputAbs, out.result.Records)
	spin.Stop()

	recordRun(store, history.NewRun(history.ModeBatch, out.result, outputAbs, err), logger)
	if err != nil {
		return nil, err
	}

	summary := &batchSummary{
		RunID:      out.result.RunID,
		OutputPath: outputAbs,
		Files:      out.result.Stats.Files,
		Rows:       len(out.result.Records),
		Failures:   out.result.Stats.Failures,
	}

	u.Section("Summary")
	u.Table([]string{"Metric", "Value"}, [][]string{
		{"Files", fmt.Sprintf("%d", summary.Files)},
		{"Pages", fmt.Sprintf("%d", out.result.Stats.Pages)},
		{"Barcodes", fmt.Sprintf("%d", out.result.Stats.Barcodes)},
		{"Failures", fmt.Sprintf("%d", summary.Failures)},
		{"Duration", ui.FormatDuration(out.result.Duration)},
	})
	if summary.Failures > 0 {
		u.Warning("%d file(s) or page(s) could not be processed, see the ERROR rows.", summary.Failures)
	}
	u.Success("Results saved to %s (rows: %d)", summary.OutputPath, summary.Rows)

	return summary, nil
}

// recordRun stores the run in history. History is best effort.
func recordRun(store *history.Store, run history.Run, logger *observability.Logger) {
	if store == nil || run.ID == "" {
		return
	}
	// the run context may already be canceled
	if err := store.Record(context.Background(), run); err != nil {
		logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record run history")
	}
}
