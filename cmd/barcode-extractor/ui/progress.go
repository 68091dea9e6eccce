package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"

	"github.com/spherical/barcode-extractor/internal/domain"
)

// ProgressBar wraps a progressbar instance for deterministic progress display.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a progress bar with the given total and description.
func NewProgressBar(w io.Writer, total int64, description string) *ProgressBar {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pdf"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar}
}

// Set moves the bar to current.
func (p *ProgressBar) Set(current int64) {
	_ = p.bar.Set64(current)
}

// Describe replaces the description shown next to the bar.
func (p *ProgressBar) Describe(description string) {
	p.bar.Describe(description)
}

// Finish completes the progress bar.
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

// Spinner wraps a spinner instance for indeterminate progress display.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a spinner with the given message.
func NewSpinner(w io.Writer, message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	s.spinner.Start()
}

// Stop stops the spinner animation.
func (s *Spinner) Stop() {
	s.spinner.Stop()
}

// NewSpinner creates a spinner on the UI's progress stream.
func (u *UI) NewSpinner(message string) *Spinner {
	return NewSpinner(u.errOut, message)
}

// Track renders pipeline events until events is closed and returns the
// number of error events seen.
func (u *UI) Track(events <-chan domain.StreamEvent, total int) int {
	bar := NewProgressBar(u.errOut, int64(total), "Extracting barcodes")
	errorsSeen := 0
	finished := false

	for ev := range events {
		switch ev.Type {
		case domain.EventFileProcessing:
			bar.Set(int64(ev.FileIndex - 1))
			bar.Describe(fmt.Sprintf("[%d/%d] %s", ev.FileIndex, ev.FileCount, ev.FileName))
			u.Detail("[%d/%d] Processing: %s", ev.FileIndex, ev.FileCount, ev.FileName)
		case domain.EventPageProcessing:
			u.Detail("%s: reading page %d", ev.FileName, ev.PageNumber)
		case domain.EventFileComplete:
			bar.Set(int64(ev.FileIndex))
		case domain.EventError:
			errorsSeen++
			u.Detail("error: %v", ev.Payload)
		case domain.EventComplete:
			bar.Finish()
			finished = true
		}
	}

	// completion events can be dropped when the channel is full
	if !finished {
		bar.Finish()
	}
	return errorsSeen
}
