package barcode

import (
	"context"
	"fmt"

	"github.com/spherical/barcode-extractor/internal/command"
	"github.com/spherical/barcode-extractor/internal/domain"
	"github.com/spherical/barcode-extractor/internal/observability"
)

// DefaultBinary is the zbar command line scanner.
const DefaultBinary = "zbarimg"

// exitNoSymbols is zbarimg's exit status when an image holds no barcode.
const exitNoSymbols = 4

// ZBarDecoder implements domain.Decoder with `zbarimg --raw -q <image>`
type ZBarDecoder struct {
	bin    string
	runner command.Runner
	logger *observability.Logger
}

// NewZBarDecoder creates a decoder. An empty bin means DefaultBinary.
func NewZBarDecoder(bin string, runner command.Runner, logger *observability.Logger) *ZBarDecoder {
	if bin == "" {
		bin = DefaultBinary
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &ZBarDecoder{
		bin:    bin,
		runner: runner,
		logger: logger.WithOperation("decode"),
	}
}

// Args returns the decoder arguments for one image.
func Args(imagePath string) []string {
	return []string{"--raw", "-q", imagePath}
}

// Decode runs the decoder on imagePath and parses its output.
func (d *ZBarDecoder) Decode(ctx context.Context, imagePath string) ([]domain.Barcode, error) {
	out, err := d.runner.Run(ctx, d.bin, Args(imagePath)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if command.ExitCodeOf(err) == exitNoSymbols && len(ParseOutput(string(out))) == 0 {
			return nil, nil
		}
		return nil, domain.DecodeError(fmt.Sprintf("failed to read barcodes from %s", imagePath), err)
	}

	barcodes := ParseOutput(string(out))
	d.logger.WithContext(ctx).Debug().
		Str("image", imagePath).
		Int("barcodes", len(barcodes)).
		Msg("Decoded page image")
	return barcodes, nil
}
