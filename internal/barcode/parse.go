// Package barcode reads barcodes from page images with zbarimg.
package barcode

import (
	"strings"

	"github.com/spherical/barcode-extractor/internal/domain"
)

// ParseOutput parses the decoder's text output.
//
// Grammar, one symbol per line:
//
//	line    = type ":" payload
//	type    = any text up to the first ":"
//	payload = the rest of the line, colons included
//
// Both parts are trimmed of surrounding whitespace. Blank lines are skipped.
// A line without a colon yields an empty type and the whole line as payload.
func ParseOutput(output string) []domain.Barcode {
	var barcodes []domain.Barcode
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		barcodes = append(barcodes, ParseLine(line))
	}
	return barcodes
}

// ParseLine splits a single decoder line on its first colon.
func ParseLine(line string) domain.Barcode {
	symbology, payload, found := strings.Cut(line, ":")
	if !found {
		return domain.Barcode{Data: strings.TrimSpace(line)}
	}
	return domain.Barcode{
		Type: strings.TrimSpace(symbology),
		Data: strings.TrimSpace(payload),
	}
}
