// Package ui provides terminal output for the barcode-extractor CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

// UI writes user-facing messages. Structured logs go elsewhere.
type UI struct {
	out     io.Writer
	errOut  io.Writer
	noColor bool
	verbose bool
}

// New creates a UI writing messages to out and progress to errOut.
func New(out, errOut io.Writer, noColor, verbose bool) *UI {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &UI{out: out, errOut: errOut, noColor: noColor, verbose: verbose}
}

// Verbose reports whether verbose output was requested.
func (u *UI) Verbose() bool {
	return u.verbose
}

func (u *UI) print(w io.Writer, attr color.Attribute, symbol, format string, args ...interface{}) {
	line := fmt.Sprintf("%s %s\n", symbol, fmt.Sprintf(format, args...))
	if u.noColor {
		fmt.Fprint(w, line)
		return
	}
	color.New(attr).Fprint(w, line)
}

// Success prints a success message.
func (u *UI) Success(format string, args ...interface{}) {
	u.print(u.out, color.FgGreen, "✓", format, args...)
}

// Error prints an error message to the error stream.
func (u *UI) Error(format string, args ...interface{}) {
	u.print(u.errOut, color.FgRed, "✗", format, args...)
}

// Warning prints a warning.
func (u *UI) Warning(format string, args ...interface{}) {
	u.print(u.out, color.FgYellow, "⚠", format, args...)
}

// Info prints an informational message.
func (u *UI) Info(format string, args ...interface{}) {
	u.print(u.out, color.FgCyan, "ℹ", format, args...)
}

// Step prints a progress step.
func (u *UI) Step(format string, args ...interface{}) {
	u.print(u.out, color.FgBlue, "→", format, args...)
}

// Detail prints a message only in verbose mode.
func (u *UI) Detail(format string, args ...interface{}) {
	if !u.verbose {
		return
	}
	fmt.Fprintf(u.out, "  %s\n", fmt.Sprintf(format, args...))
}

// Section prints a section header.
func (u *UI) Section(title string) {
	fmt.Fprintf(u.out, "\n%s\n%s\n\n", title, strings.Repeat("=", len(title)))
}

// Table prints rows aligned under headers.
func (u *UI) Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(u.out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))

	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	_ = w.Flush()
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
