package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/barcode-extractor/cmd/barcode-extractor/ui"
	"github.com/spherical/barcode-extractor/internal/config"
	"github.com/spherical/barcode-extractor/internal/observability"
)

var (
	cfgFile    string
	verbose    bool
	noColor    bool
	inputDir   string
	outputPath string

	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "barcode-extractor",
	Short: "Extract barcodes from every PDF in a folder into a spreadsheet",
	Long: `barcode-extractor scans a folder (./pdfs by default) recursively for PDF files,
renders every page with pdftoppm, reads the barcodes on each page with zbarimg
and writes one spreadsheet row per barcode to barcodes_exec.xlsx.

Pages without barcodes get an empty row, and files that cannot be rendered get
a single ERROR row, so every input is accounted for in the output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runRoot,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.Flags().StringVarP(&inputDir, "input", "i", "", "folder to scan for PDFs (default from config: pdfs)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "spreadsheet to write (default from config: barcodes_exec.xlsx)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the configuration and applies the command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if inputDir != "" {
		cfg.Paths.InputDir = inputDir
	}
	if outputPath != "" {
		cfg.Paths.BatchOutput = outputPath
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *observability.Logger {
	logCfg := cfg.LogConfig()
	if verbose {
		logCfg.Level = "debug"
	}
	return observability.NewLogger(logCfg)
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u := ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), noColor, verbose)
	_, err = runBatch(ctx, cfg, nil, u, newLogger(cfg))
	return err
}
