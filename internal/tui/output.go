package tui

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Output prints command results. Text output is styled; JSON output only
// carries JSON documents and errors.
type Output interface {
	Success(msg string)
	Error(err error)
	Warning(msg string)
	Info(msg string)
	// JSON writes v as indented JSON in either format.
	JSON(v any) error
}

// FormatJSON selects machine-readable output.
const FormatJSON = "json"

// Printer is the Output used by every command.
type Printer struct {
	w      io.Writer
	json   bool
	quiet  bool
	styles *OutputStyles
}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithQuiet drops success and info lines. Warnings and errors still print.
func WithQuiet(quiet bool) PrinterOption {
	return func(p *Printer) { p.quiet = quiet }
}

// NewOutput creates a Printer for format ("text" or "json").
func NewOutput(w io.Writer, format string, opts ...PrinterOption) Output {
	p := &Printer{w: w, json: format == FormatJSON, styles: NewOutputStyles()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Success prints "✓ msg".
func (p *Printer) Success(msg string) {
	if p.quiet {
		return
	}
	p.line(p.styles.Success.Render("✓ " + msg))
}

// Error prints "✗ err", or {"error": ...} in JSON mode.
func (p *Printer) Error(err error) {
	if p.json {
		_ = writeJSON(p.w, map[string]string{"error": err.Error()})
		return
	}
	p.line(p.styles.Error.Render("✗ " + err.Error()))
}

// Warning prints "⚠ msg".
func (p *Printer) Warning(msg string) {
	p.line(p.styles.Warning.Render("⚠ " + msg))
}

// Info prints msg.
func (p *Printer) Info(msg string) {
	if p.quiet {
		return
	}
	p.line(p.styles.Info.Render(msg))
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	return writeJSON(p.w, v)
}

// line writes s unless the printer is in JSON mode, where only documents go
// to the output.
func (p *Printer) line(s string) {
	if p.json {
		return
	}
	_, _ = fmt.Fprintln(p.w, s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
