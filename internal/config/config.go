// Package config provides unified configuration loading for the barcode extractor.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/barcode-extractor/internal/observability"
)

// Rasterizer backends.
const (
	BackendPoppler = "poppler"
	BackendFitz    = "fitz"
)

// Config holds all configuration for the batch runner and the upload service.
type Config struct {
	Paths         PathsConfig         `yaml:"paths"`
	Tools         ToolsConfig         `yaml:"tools"`
	Server        ServerConfig        `yaml:"server"`
	History       HistoryConfig       `yaml:"history"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PathsConfig holds the working directories.
type PathsConfig struct {
	InputDir    string `yaml:"input_dir"`    // scanned by the batch runner
	UploadDir   string `yaml:"upload_dir"`   // upload service staging area
	ScratchDir  string `yaml:"scratch_dir"`  // root for per-run page images
	OutputDir   string `yaml:"output_dir"`   // upload service spreadsheets
	BatchOutput string `yaml:"batch_output"` // batch runner spreadsheet
}

// ToolsConfig holds the external program settings.
type ToolsConfig struct {
	RasterizerBin  string        `yaml:"rasterizer_bin"`
	DecoderBin     string        `yaml:"decoder_bin"`
	Backend        string        `yaml:"backend"` // poppler or fitz
	DPI            int           `yaml:"dpi"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"` // not applied to uploads
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	GracefulShutdown  time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	MaxConcurrentRuns int64         `yaml:"max_concurrent_runs"`
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// An empty path falls back to CONFIG_PATH; with neither set only defaults and
// the environment are used.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			InputDir:    "pdfs",
			UploadDir:   "uploads",
			ScratchDir:  "temp_images",
			OutputDir:   "output",
			BatchOutput: "barcodes_exec.xlsx",
		},
		Tools: ToolsConfig{
			RasterizerBin:  "pdftoppm",
			DecoderBin:     "zbarimg",
			Backend:        BackendPoppler,
			DPI:            300,
			Timeout:        2 * time.Minute,
			MaxOutputBytes: 10 * 1024 * 1024,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3000,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      10 * time.Minute,
			IdleTimeout:       120 * time.Second,
			GracefulShutdown:  30 * time.Second,
			MaxUploadBytes:    200 * 1024 * 1024,
			MaxConcurrentRuns: 2,
		},
		History: HistoryConfig{
			Enabled:    true,
			SQLitePath: "barcode-history.db",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "barcode-extractor",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Tools.Backend != BackendPoppler && c.Tools.Backend != BackendFitz {
		return fmt.Errorf("invalid rasterizer backend: %s", c.Tools.Backend)
	}

	if c.Tools.DPI < 36 || c.Tools.DPI > 1200 {
		return fmt.Errorf("dpi must be between 36 and 1200")
	}

	if c.Tools.Timeout <= 0 {
		return fmt.Errorf("tools timeout must be positive")
	}

	if c.Tools.Backend == BackendPoppler && c.Tools.RasterizerBin == "" {
		return fmt.Errorf("rasterizer_bin is required for the poppler backend")
	}

	if c.Tools.DecoderBin == "" {
		return fmt.Errorf("decoder_bin is required")
	}

	if c.Server.MaxConcurrentRuns < 1 {
		return fmt.Errorf("max_concurrent_runs must be at least 1")
	}

	if c.History.Enabled && c.History.SQLitePath == "" {
		return fmt.Errorf("history sqlite_path is required when history is enabled")
	}

	for name, dir := range map[string]string{
		"input_dir":    c.Paths.InputDir,
		"upload_dir":   c.Paths.UploadDir,
		"scratch_dir":  c.Paths.ScratchDir,
		"output_dir":   c.Paths.OutputDir,
		"batch_output": c.Paths.BatchOutput,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("paths.%s must not be empty", name)
		}
	}

	return nil
}

// Addr returns the listen address of the upload service.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LogConfig converts the observability section for observability.NewLogger.
func (c *Config) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:       c.Observability.LogLevel,
		Format:      c.Observability.LogFormat,
		ServiceName: c.Observability.ServiceName,
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BARCODE_INPUT_DIR"); v != "" {
		cfg.Paths.InputDir = v
	}

	if v := os.Getenv("BARCODE_OUTPUT_DIR"); v != "" {
		cfg.Paths.OutputDir = v
	}

	if v := os.Getenv("BARCODE_SCRATCH_DIR"); v != "" {
		cfg.Paths.ScratchDir = v
	}

	if v := os.Getenv("BARCODE_UPLOAD_DIR"); v != "" {
		cfg.Paths.UploadDir = v
	}

	if v := os.Getenv("PDFTOPPM_PATH"); v != "" {
		cfg.Tools.RasterizerBin = v
	}

	if v := os.Getenv("ZBARIMG_PATH"); v != "" {
		cfg.Tools.DecoderBin = v
	}

	if v := os.Getenv("RASTERIZER_BACKEND"); v != "" {
		cfg.Tools.Backend = strings.ToLower(v)
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("HISTORY_DB"); v != "" {
		cfg.History.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
