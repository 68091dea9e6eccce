// Package app wires configuration into the extraction pipeline shared by the
// batch runner and the upload service.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spherical/barcode-extractor/internal/barcode"
	"github.com/spherical/barcode-extractor/internal/command"
	"github.com/spherical/barcode-extractor/internal/config"
	"github.com/spherical/barcode-extractor/internal/domain"
	"github.com/spherical/barcode-extractor/internal/extract"
	"github.com/spherical/barcode-extractor/internal/history"
	"github.com/spherical/barcode-extractor/internal/observability"
	"github.com/spherical/barcode-extractor/internal/pdf"
)

// Components holds the pipeline parts built from a Config.
type Components struct {
	Runner     command.Runner
	Rasterizer domain.Rasterizer
	Decoder    domain.Decoder
	Service    *extract.Service
}

// Build creates the pipeline for cfg. A nil runner uses os/exec.
func Build(cfg *config.Config, runner command.Runner, logger *observability.Logger) (*Components, error) {
	if logger == nil {
		logger = observability.Nop()
	}
	if runner == nil {
		runner = command.NewExecRunner(command.Options{
			Timeout:   cfg.Tools.Timeout,
			MaxOutput: cfg.Tools.MaxOutputBytes,
			Logger:    logger,
		})
	}

	var rasterizer domain.Rasterizer
	switch cfg.Tools.Backend {
	case config.BackendPoppler:
		rasterizer = pdf.NewPopplerRasterizer(cfg.Tools.RasterizerBin, cfg.Tools.DPI, runner, logger)
	case config.BackendFitz:
		rasterizer = pdf.NewFitzRasterizer(cfg.Tools.DPI, logger)
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown rasterizer backend %q", cfg.Tools.Backend), nil)
	}

	decoder := barcode.NewZBarDecoder(cfg.Tools.DecoderBin, runner, logger)

	service := extract.NewService(rasterizer, decoder, extract.Options{
		ScratchRoot: cfg.Paths.ScratchDir,
		PageCounter: pdf.NewInspector(),
		Logger:      logger,
	})

	return &Components{
		Runner:     runner,
		Rasterizer: rasterizer,
		Decoder:    decoder,
		Service:    service,
	}, nil
}

// ToolStatus reports whether one external program is reachable.
type ToolStatus struct {
	Name string
	Path string
	Err  error
}

// CheckTools looks up the external programs the configured backend needs.
func CheckTools(cfg *config.Config) []ToolStatus {
	tools := []ToolStatus{{Name: "zbarimg", Path: cfg.Tools.DecoderBin}}
	if cfg.Tools.Backend == config.BackendPoppler {
		tools = append([]ToolStatus{{Name: "pdftoppm", Path: cfg.Tools.RasterizerBin}}, tools...)
	}
	for i := range tools {
		tools[i].Err = command.Available(tools[i].Path)
	}
	return tools
}

// MissingTools returns an error naming every unreachable program, or nil.
func MissingTools(statuses []ToolStatus) error {
	var missing []string
	for _, s := range statuses {
		if s.Err != nil {
			missing = append(missing, s.Path)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return domain.ConfigError(fmt.Sprintf("required programs not found in PATH: %v", missing), nil)
}

// EnsureDirs creates the given directories if missing.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.IOError(fmt.Sprintf("cannot create directory %s", dir), err)
		}
	}
	return nil
}

// OpenHistory opens the run history store, or returns nil when history is
// disabled. A store that cannot be opened is logged and treated as disabled.
func OpenHistory(ctx context.Context, cfg *config.Config, logger *observability.Logger) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(ctx, cfg.History.SQLitePath)
	if err != nil {
		if logger != nil {
			logger.Warn().Err(err).Str("path", cfg.History.SQLitePath).Msg("Run history disabled")
		}
		return nil
	}
	return store
}
