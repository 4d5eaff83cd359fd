// Package output renders command results as human text or JSON and owns
// the CLI's table and structured error presentation.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format names an output rendering mode.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// ANSI color codes used for text output highlights.
const (
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

// Formatter renders command results as either human text or JSON.
type Formatter struct {
	mode  Format
	out   io.Writer
	color bool
}

// NewFormatter returns a formatter writing to w in the given format.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{mode: format, out: w}
}

// Format reports the mode this formatter renders in.
func (f *Formatter) Format() Format {
	return f.mode
}

// Writer exposes the underlying writer.
func (f *Formatter) Writer() io.Writer {
	return f.out
}

// IsJSON reports whether results render as JSON.
func (f *Formatter) IsJSON() bool {
	return f.mode == FormatJSON
}

// SetColor enables or disables ANSI colors in text output.
func (f *Formatter) SetColor(enabled bool) {
	f.color = enabled
}

// Colorize wraps s in the given ANSI color when colors are enabled and the
// format is text. JSON output never carries escape codes.
func (f *Formatter) Colorize(color, s string) string {
	if !f.color || f.mode == FormatJSON {
		return s
	}
	return color + s + colorReset
}

// Print renders v in the active format. Text mode prints v's natural
// string form, which picks up fmt.Stringer when v has one.
func (f *Formatter) Print(v any) error {
	if f.mode == FormatJSON {
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(f.out, v)
	return err
}

// Printf writes printf-style text straight to the writer.
func (f *Formatter) Printf(format string, args ...any) error {
	_, err := fmt.Fprintf(f.out, format, args...)
	return err
}

// Println writes its arguments as one line of text.
func (f *Formatter) Println(args ...any) error {
	_, err := fmt.Fprintln(f.out, args...)
	return err
}

// DetectFormat resolves the auto format: text when w is a terminal,
// JSON when output is piped. Explicit text or json pass through.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit == FormatAuto {
		if isTerminal(w) {
			return FormatText
		}
		return FormatJSON
	}
	return explicit
}

// DetectColor decides whether text output should carry ANSI colors.
// Color requires an explicit opt-in from config, a TTY, and no NO_COLOR
// environment override (https://no-color.org).
func DetectColor(w io.Writer, configured bool) bool {
	if !configured || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
}

// ParseFormat parses a format string, defaulting to auto.
func ParseFormat(s string) Format {
	parsed := Format(strings.ToLower(strings.TrimSpace(s)))
	if parsed == FormatJSON || parsed == FormatText {
		return parsed
	}
	return FormatAuto
}
